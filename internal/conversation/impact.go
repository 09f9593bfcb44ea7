package conversation

import (
	"fmt"

	"github.com/kalambet/leaveflow/internal/storage"
)

// TeamImpact grades how disruptive a leave period would be for the
// requester's department.
type TeamImpact struct {
	Score               int    `json:"score"`
	Level               string `json:"level"`
	OverlappingLeaves   int    `json:"overlapping_leaves"`
	DurationDays        int    `json:"duration_days"`
	MonthBoundaryCrunch bool   `json:"month_boundary_crunch"`
}

// teamImpact scores the request: each colleague already out in the same
// period adds 20, long durations add 30 (over 5 days) or 50 (over 10),
// month-boundary dates add 15. Score is capped at 100.
func (s *Service) teamImpact(user *storage.User, start, end storage.Date) (TeamImpact, error) {
	colleagues, err := s.store.ListColleagues(*user)
	if err != nil {
		return TeamImpact{}, fmt.Errorf("listing colleagues: %w", err)
	}

	overlapping := 0
	for _, c := range colleagues {
		n, err := s.store.CountApprovedOverlapping(c.ID, start, end)
		if err != nil {
			return TeamImpact{}, fmt.Errorf("counting overlaps for %s: %w", c.Username, err)
		}
		if n > 0 {
			overlapping++
		}
	}

	duration := start.InclusiveDays(end)

	score := overlapping * 20
	switch {
	case duration > 10:
		score += 50
	case duration > 5:
		score += 30
	}

	crunch := start.Day() >= 25 || start.Day() <= 5 || end.Day() >= 25 || end.Day() <= 5
	if crunch {
		score += 15
	}

	if score > 100 {
		score = 100
	}

	level := "LOW"
	switch {
	case score >= 70:
		level = "HIGH"
	case score >= 40:
		level = "MEDIUM"
	}

	return TeamImpact{
		Score:               score,
		Level:               level,
		OverlappingLeaves:   overlapping,
		DurationDays:        duration,
		MonthBoundaryCrunch: crunch,
	}, nil
}
