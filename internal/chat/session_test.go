package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/leaveflow/internal/storage"
)

// scriptedBackend returns queued responses in order.
type scriptedBackend struct {
	responses []TurnResponse
	errs      []error
	calls     int

	submitResult SubmitResult
	submitErr    error
	submits      []LeaveSubmission
	history      [][]Message
}

func (b *scriptedBackend) Converse(ctx context.Context, message string, history []Message) (TurnResponse, error) {
	b.history = append(b.history, history)
	i := b.calls
	b.calls++
	var err error
	if i < len(b.errs) {
		err = b.errs[i]
	}
	if err != nil {
		return TurnResponse{}, err
	}
	if i < len(b.responses) {
		return b.responses[i], nil
	}
	return TurnResponse{Response: "ok", Intent: "GENERAL"}, nil
}

func (b *scriptedBackend) SubmitLeave(ctx context.Context, req LeaveSubmission) (SubmitResult, error) {
	b.submits = append(b.submits, req)
	if b.submitErr != nil {
		return SubmitResult{}, b.submitErr
	}
	return b.submitResult, nil
}

func date(t *testing.T, s string) storage.Date {
	t.Helper()
	d, err := storage.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%s) = %v", s, err)
	}
	return d
}

func widgetResponse(component, text string) TurnResponse {
	return TurnResponse{
		Response: text,
		Intent:   "REQUEST_LEAVE",
		UIState:  &UIState{Component: component},
	}
}

func confirmationResponse() TurnResponse {
	return TurnResponse{
		Response: "Please confirm.",
		Intent:   "REQUEST_LEAVE",
		UIState:  &UIState{Component: "CONFIRMATION_CARD", Stage: "confirm"},
		Data: map[string]any{
			"leave_type":    "SICK",
			"start_date":    "2025-01-10",
			"end_date":      "2025-01-12",
			"duration_days": float64(3),
		},
	}
}

func TestTranscriptAlternationAndIndexes(t *testing.T) {
	backend := &scriptedBackend{responses: []TurnResponse{
		{Response: "a", Intent: "GENERAL"},
		{Response: "b", Intent: "GENERAL"},
		{Response: "c", Intent: "GENERAL"},
	}}
	s := NewSession(backend)

	for _, msg := range []string{"one", "two", "three"} {
		if _, err := s.Send(context.Background(), msg); err != nil {
			t.Fatalf("Send(%s) = %v", msg, err)
		}
	}

	entries := s.Transcript().Entries()
	if len(entries) != 6 {
		t.Fatalf("len(entries) = %d, want 6", len(entries))
	}
	for i, e := range entries {
		if e.Index != i {
			t.Fatalf("entries[%d].Index = %d", i, e.Index)
		}
		wantRole := RoleUser
		if i%2 == 1 {
			wantRole = RoleAssistant
		}
		if e.Role != wantRole {
			t.Fatalf("entries[%d].Role = %s, want %s", i, e.Role, wantRole)
		}
	}
}

func TestEmptySendIsNoOp(t *testing.T) {
	backend := &scriptedBackend{}
	s := NewSession(backend)

	entry, err := s.Send(context.Background(), "   \n\t ")
	if err != nil {
		t.Fatalf("Send = %v", err)
	}
	if entry != nil {
		t.Fatalf("entry = %+v, want nil", entry)
	}
	if s.Transcript().Len() != 0 {
		t.Fatalf("transcript grew on empty send")
	}
	if backend.calls != 0 {
		t.Fatal("backend was called for empty input")
	}
}

func TestActivePointerFollowsLatestWidget(t *testing.T) {
	backend := &scriptedBackend{responses: []TurnResponse{
		widgetResponse("TYPE_SELECTOR", "pick a type"),
		widgetResponse("DATE_PICKER", "pick dates"),
	}}
	s := NewSession(backend)

	if _, err := s.Send(context.Background(), "I need leave"); err != nil {
		t.Fatalf("Send = %v", err)
	}
	if got := s.Transcript().ActivePointer(); got != 1 {
		t.Fatalf("pointer = %d, want 1", got)
	}

	if _, err := s.Send(context.Background(), "Sick Leave"); err != nil {
		t.Fatalf("Send = %v", err)
	}
	if got := s.Transcript().ActivePointer(); got != 3 {
		t.Fatalf("pointer = %d, want 3", got)
	}

	// Older widget is inert even though it still renders.
	if s.Transcript().Entries()[1].Widget() != WidgetTypeSelector {
		t.Fatal("old entry lost its widget")
	}
}

func TestPlainReplyClearsPointer(t *testing.T) {
	backend := &scriptedBackend{responses: []TurnResponse{
		widgetResponse("DATE_PICKER", "pick dates"),
		{Response: "noted", Intent: "GENERAL"},
	}}
	s := NewSession(backend)

	s.Send(context.Background(), "leave please")
	s.Send(context.Background(), "thanks")

	if got := s.Transcript().ActivePointer(); got != -1 {
		t.Fatalf("pointer = %d, want -1 after plain reply", got)
	}
}

func TestTransportFailureKeepsPointer(t *testing.T) {
	backend := &scriptedBackend{
		responses: []TurnResponse{widgetResponse("DATE_PICKER", "pick dates"), {}},
		errs:      []error{nil, fmt.Errorf("connection refused")},
	}
	s := NewSession(backend)

	s.Send(context.Background(), "leave please")
	before := s.Transcript().ActivePointer()

	entry, err := s.Send(context.Background(), "From 2025-01-10 to 2025-01-12")
	if err == nil {
		t.Fatal("Send succeeded, want transport error")
	}
	if entry == nil || !entry.IsError {
		t.Fatalf("entry = %+v, want error bubble", entry)
	}
	if entry.Content != transportErrorText {
		t.Fatalf("error text = %q", entry.Content)
	}
	if entry.UIState != nil {
		t.Fatal("error bubble carries a UIState")
	}

	if got := s.Transcript().ActivePointer(); got != before {
		t.Fatalf("pointer = %d, want unchanged %d", got, before)
	}
}

func TestUnknownComponentRendersPlainBubble(t *testing.T) {
	backend := &scriptedBackend{responses: []TurnResponse{
		{Response: "new thing", Intent: "GENERAL", UIState: &UIState{Component: "HOLOGRAM"}},
	}}
	s := NewSession(backend)

	entry, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send = %v", err)
	}
	if entry.Widget() != WidgetUnknown {
		t.Fatalf("widget = %v, want WidgetUnknown", entry.Widget())
	}
}

func TestMissingUIStateIsPlainEntry(t *testing.T) {
	backend := &scriptedBackend{responses: []TurnResponse{{Response: "hello", Intent: "GENERAL"}}}
	s := NewSession(backend)

	entry, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send = %v", err)
	}
	if entry.Widget() != WidgetNone {
		t.Fatalf("widget = %v, want WidgetNone", entry.Widget())
	}
	if s.Transcript().ActivePointer() != -1 {
		t.Fatal("pointer set without a widget")
	}
}

func TestDatePickerClicksCommute(t *testing.T) {
	a := date(t, "2025-01-12")
	b := date(t, "2025-01-10")

	var p1, p2 DatePicker
	p1.Click(a)
	p1.Click(b)
	p2.Click(b)
	p2.Click(a)

	s1, e1 := p1.Range()
	s2, e2 := p2.Range()
	if s1 != s2 || e1 != e2 {
		t.Fatalf("ranges differ: %s..%s vs %s..%s", s1, e1, s2, e2)
	}
	if s1.String() != "2025-01-10" || e1.String() != "2025-01-12" {
		t.Fatalf("range = %s..%s", s1, e1)
	}
	if p1.Days() != 3 {
		t.Fatalf("Days = %d, want 3", p1.Days())
	}
}

func TestDatePickerThirdClickResets(t *testing.T) {
	var p DatePicker
	p.Click(date(t, "2025-01-10"))
	p.Click(date(t, "2025-01-12"))
	p.Click(date(t, "2025-01-20"))

	start, end := p.Range()
	if start.String() != "2025-01-20" || end.String() != "2025-01-20" {
		t.Fatalf("range = %s..%s, want single day 2025-01-20", start, end)
	}
	if p.Days() != 1 {
		t.Fatalf("Days = %d, want 1", p.Days())
	}
}

func TestRangePhrase(t *testing.T) {
	got := RangePhrase(date(t, "2025-01-10"), date(t, "2025-01-12"))
	if got != "From 2025-01-10 to 2025-01-12" {
		t.Fatalf("phrase = %q", got)
	}
	single := RangePhrase(date(t, "2025-01-10"), date(t, "2025-01-10"))
	if single != "From 2025-01-10 to 2025-01-10" {
		t.Fatalf("phrase = %q", single)
	}
	if EditPhrase() != "edit" {
		t.Fatalf("EditPhrase = %q", EditPhrase())
	}
	if QuickActionPhrase("Check my balance") != "Check my balance" {
		t.Fatal("quick action label not verbatim")
	}
}

func TestConfirmationCapturesDraft(t *testing.T) {
	backend := &scriptedBackend{responses: []TurnResponse{confirmationResponse()}}
	s := NewSession(backend)

	s.Send(context.Background(), "From 2025-01-10 to 2025-01-12")

	d := s.Draft()
	if d == nil {
		t.Fatal("no draft captured")
	}
	if d.LeaveType != "SICK" || d.StartDate != "2025-01-10" || d.EndDate != "2025-01-12" {
		t.Fatalf("draft = %+v", d)
	}
	if d.DurationDays != 3 {
		t.Fatalf("duration = %d, want 3", d.DurationDays)
	}
}

func TestSubmitSuccessClearsDraftAndPointer(t *testing.T) {
	backend := &scriptedBackend{
		responses:    []TurnResponse{confirmationResponse()},
		submitResult: SubmitResult{LeaveID: 7, Status: "PENDING"},
	}
	s := NewSession(backend)
	s.Send(context.Background(), "From 2025-01-10 to 2025-01-12")

	entry, err := s.SubmitLeave(context.Background())
	if err != nil {
		t.Fatalf("SubmitLeave = %v", err)
	}
	if entry.UIState != nil || entry.IsError {
		t.Fatalf("entry = %+v, want plain confirmation", entry)
	}
	if s.Draft() != nil {
		t.Fatal("draft survives successful submit")
	}
	if got := s.Transcript().ActivePointer(); got != -1 {
		t.Fatalf("pointer = %d, want -1 after submit", got)
	}

	// No draft left; a second submit is rejected.
	if _, err := s.SubmitLeave(context.Background()); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("second submit err = %v, want ErrNoDraft", err)
	}
	if len(backend.submits) != 1 {
		t.Fatalf("submits = %d, want 1", len(backend.submits))
	}
}

func TestSubmitFailureKeepsDraftAndPointer(t *testing.T) {
	backend := &scriptedBackend{
		responses: []TurnResponse{confirmationResponse()},
		submitErr: fmt.Errorf("insufficient balance"),
	}
	s := NewSession(backend)
	s.Send(context.Background(), "From 2025-01-10 to 2025-01-12")
	before := s.Transcript().ActivePointer()

	entry, err := s.SubmitLeave(context.Background())
	if err == nil {
		t.Fatal("SubmitLeave succeeded, want error")
	}
	if entry == nil || !entry.IsError {
		t.Fatalf("entry = %+v, want error bubble", entry)
	}
	if want := "insufficient balance"; !strings.Contains(entry.Content, want) {
		t.Fatalf("error text %q missing server detail %q", entry.Content, want)
	}
	if s.Draft() == nil {
		t.Fatal("draft lost on failed submit")
	}
	if got := s.Transcript().ActivePointer(); got != before {
		t.Fatalf("pointer = %d, want unchanged %d", got, before)
	}

	// Draft intact; retry goes through.
	backend.submitErr = nil
	backend.submitResult = SubmitResult{LeaveID: 9}
	if _, err := s.SubmitLeave(context.Background()); err != nil {
		t.Fatalf("retry SubmitLeave = %v", err)
	}
}

func TestSubmitWithoutDraft(t *testing.T) {
	s := NewSession(&scriptedBackend{})
	if _, err := s.SubmitLeave(context.Background()); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("err = %v, want ErrNoDraft", err)
	}
}

func TestHistoryExcludesErrorBubbles(t *testing.T) {
	backend := &scriptedBackend{
		responses: []TurnResponse{{}, {Response: "ok"}},
		errs:      []error{fmt.Errorf("boom"), nil},
	}
	s := NewSession(backend)

	s.Send(context.Background(), "first")
	s.Send(context.Background(), "second")

	last := backend.history[len(backend.history)-1]
	for _, m := range last {
		if m.Content == transportErrorText {
			t.Fatal("history includes transport error bubble")
		}
	}
}

func TestSickLeaveEndToEnd(t *testing.T) {
	backend := &scriptedBackend{
		responses: []TurnResponse{
			widgetResponse("TYPE_SELECTOR", "What type of leave?"),
			widgetResponse("DATE_PICKER", "Which dates?"),
			confirmationResponse(),
		},
		submitResult: SubmitResult{LeaveID: 3, Status: "PENDING"},
	}
	s := NewSession(backend)
	ctx := context.Background()

	if _, err := s.Send(ctx, "I need some leave"); err != nil {
		t.Fatalf("Send = %v", err)
	}
	if s.Transcript().Entries()[s.Transcript().ActivePointer()].Widget() != WidgetTypeSelector {
		t.Fatal("expected type selector")
	}

	// Quick action label goes through verbatim.
	if _, err := s.Send(ctx, QuickActionPhrase("Sick Leave")); err != nil {
		t.Fatalf("Send = %v", err)
	}
	if s.Transcript().Entries()[s.Transcript().ActivePointer()].Widget() != WidgetDatePicker {
		t.Fatal("expected date picker")
	}

	var p DatePicker
	p.Click(date(t, "2025-01-12"))
	p.Click(date(t, "2025-01-10"))
	if _, err := s.Send(ctx, p.Phrase()); err != nil {
		t.Fatalf("Send = %v", err)
	}
	if s.Transcript().Entries()[s.Transcript().ActivePointer()].Widget() != WidgetConfirmationCard {
		t.Fatal("expected confirmation card")
	}
	if s.Draft().DurationDays != 3 {
		t.Fatalf("duration = %d, want 3", s.Draft().DurationDays)
	}

	entry, err := s.SubmitLeave(ctx)
	if err != nil {
		t.Fatalf("SubmitLeave = %v", err)
	}
	if !strings.Contains(entry.Content, "#3") {
		t.Fatalf("confirmation = %q, want request id", entry.Content)
	}
	if s.Transcript().ActivePointer() != -1 {
		t.Fatal("widget still active after submission")
	}
	if backend.submits[0].LeaveType != "SICK" || backend.submits[0].StartDate != "2025-01-10" {
		t.Fatalf("submitted = %+v", backend.submits[0])
	}
}
