package conversation

import (
	"context"
	"fmt"
	"sort"

	"github.com/kalambet/leaveflow/internal/storage"
)

const maxSuggestions = 3

// ResponsibleSuggestion is a colleague who could cover for the requester.
type ResponsibleSuggestion struct {
	UserID     int64  `json:"user_id"`
	FullName   string `json:"full_name"`
	Position   string `json:"position"`
	MatchScore int    `json:"match_score"`
}

// suggestResponsible proposes colleagues to take over during the leave.
// Same position scores 100, same department 80; colleagues already on
// approved leave during the period are skipped.
func (s *Service) suggestResponsible(ctx context.Context, user *storage.User, start, end storage.Date) ([]ResponsibleSuggestion, error) {
	colleagues, err := s.store.ListColleagues(*user)
	if err != nil {
		return nil, fmt.Errorf("listing colleagues: %w", err)
	}

	var suggestions []ResponsibleSuggestion
	for _, c := range colleagues {
		overlapping, err := s.store.CountApprovedOverlapping(c.ID, start, end)
		if err != nil {
			return nil, fmt.Errorf("checking availability for %s: %w", c.Username, err)
		}
		if overlapping > 0 {
			continue
		}

		score := 80
		if c.Position == user.Position {
			score = 100
		}
		suggestions = append(suggestions, ResponsibleSuggestion{
			UserID:     c.ID,
			FullName:   c.FullName,
			Position:   c.Position,
			MatchScore: score,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].MatchScore > suggestions[j].MatchScore
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}
