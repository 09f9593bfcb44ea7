package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one prior turn sent back to the server as context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnResponse is the decoded body of POST /conversation.
type TurnResponse struct {
	Response string         `json:"response"`
	Intent   string         `json:"intent"`
	Data     map[string]any `json:"data,omitempty"`
	UIState  *UIState       `json:"ui_state,omitempty"`
	Actions  []string       `json:"actions,omitempty"`
}

// LeaveSubmission is the payload for POST /employees/leaves.
type LeaveSubmission struct {
	LeaveType string `json:"leave_type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
}

// SubmitResult is the decoded response of a leave submission.
type SubmitResult struct {
	LeaveID int64  `json:"id"`
	Status  string `json:"status"`
}

// Backend is the server the session talks to.
type Backend interface {
	Converse(ctx context.Context, message string, history []Message) (TurnResponse, error)
	SubmitLeave(ctx context.Context, req LeaveSubmission) (SubmitResult, error)
}

var (
	// ErrBusy is returned while a send or submit is already in flight.
	ErrBusy = errors.New("a request is already in flight")
	// ErrNoDraft is returned when there is nothing to submit.
	ErrNoDraft = errors.New("no leave draft to submit")
)

const (
	transportErrorText  = "Sorry, I couldn't reach the server. Please try again."
	submitFailurePrefix = "Couldn't submit your leave request"
)

// Draft is the pending leave request shown on the confirmation card.
type Draft struct {
	LeaveType    string
	StartDate    string
	EndDate      string
	Reason       string
	DurationDays int
}

// Session drives one conversation against a Backend. It is not safe for
// concurrent use; the single in-flight guarantee comes from the ErrBusy
// guards.
type Session struct {
	backend    Backend
	transcript Transcript
	inFlight   bool
	submitting bool
	draft      *Draft
}

// NewSession creates a Session over the given backend.
func NewSession(backend Backend) *Session {
	return &Session{backend: backend}
}

// Transcript exposes the conversation log for rendering.
func (s *Session) Transcript() *Transcript {
	return &s.transcript
}

// Busy reports whether a send or submit is in flight (input disabled).
func (s *Session) Busy() bool {
	return s.inFlight || s.submitting
}

// Draft returns the pending leave draft, or nil.
func (s *Session) Draft() *Draft {
	return s.draft
}

// Send submits one user message. Whitespace-only input is a no-op returning
// (nil, nil). On transport failure the transcript gains a fixed-text error
// bubble, the draft and active widget survive, and the error is returned.
func (s *Session) Send(ctx context.Context, text string) (*Entry, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	if s.Busy() {
		return nil, ErrBusy
	}
	s.inFlight = true
	defer func() { s.inFlight = false }()

	history := s.history()
	s.transcript.Append(Entry{Role: RoleUser, Content: trimmed})

	resp, err := s.backend.Converse(ctx, trimmed, history)
	if err != nil {
		entry := s.transcript.Append(Entry{
			Role:    RoleAssistant,
			Content: transportErrorText,
			IsError: true,
		})
		return &entry, err
	}

	entry := s.transcript.Append(Entry{
		Role:    RoleAssistant,
		Content: resp.Response,
		Intent:  resp.Intent,
		Data:    resp.Data,
		UIState: resp.UIState,
		Actions: resp.Actions,
	})

	if entry.Widget() == WidgetConfirmationCard {
		s.draft = draftFromData(resp.Data)
	}

	return &entry, nil
}

// SubmitLeave posts the pending draft. Success appends a plain confirmation
// entry and clears the draft (deactivating the card); failure appends an
// error bubble with the server detail and keeps the draft for retry.
func (s *Session) SubmitLeave(ctx context.Context) (*Entry, error) {
	if s.Busy() {
		return nil, ErrBusy
	}
	if s.draft == nil {
		return nil, ErrNoDraft
	}
	s.submitting = true
	defer func() { s.submitting = false }()

	result, err := s.backend.SubmitLeave(ctx, LeaveSubmission{
		LeaveType: s.draft.LeaveType,
		StartDate: s.draft.StartDate,
		EndDate:   s.draft.EndDate,
		Reason:    s.draft.Reason,
	})
	if err != nil {
		entry := s.transcript.Append(Entry{
			Role:    RoleAssistant,
			Content: fmt.Sprintf("%s: %v", submitFailurePrefix, err),
			IsError: true,
		})
		return &entry, err
	}

	s.draft = nil
	entry := s.transcript.Append(Entry{
		Role:    RoleAssistant,
		Content: fmt.Sprintf("Your leave request #%d has been submitted for approval.", result.LeaveID),
	})
	return &entry, nil
}

// history returns the non-error transcript as wire messages.
func (s *Session) history() []Message {
	msgs := make([]Message, 0, s.transcript.Len())
	for _, e := range s.transcript.Entries() {
		if e.IsError {
			continue
		}
		msgs = append(msgs, Message{Role: e.Role, Content: e.Content})
	}
	return msgs
}

// draftFromData builds a Draft from confirmation card data. Values arrive
// as decoded JSON, so numbers are float64.
func draftFromData(data map[string]any) *Draft {
	d := &Draft{
		LeaveType: stringField(data, "leave_type"),
		StartDate: stringField(data, "start_date"),
		EndDate:   stringField(data, "end_date"),
		Reason:    stringField(data, "reason"),
	}
	switch v := data["duration_days"].(type) {
	case float64:
		d.DurationDays = int(v)
	case int:
		d.DurationDays = v
	}
	return d
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}
