package intent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/leaveflow/internal/llm"
	"github.com/kalambet/leaveflow/internal/storage"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []llm.Message, jsonMode bool) (string, error) {
	return m.response, m.err
}

func testToday(t *testing.T) storage.Date {
	t.Helper()
	d, err := storage.ParseDate("2025-01-10")
	if err != nil {
		t.Fatalf("ParseDate = %v", err)
	}
	return d
}

func TestExtract_RequestLeave(t *testing.T) {
	mock := &mockChatter{
		response: `{"intent":"REQUEST_LEAVE","leave_type":"SICK","start_date":"2025-01-11","reason":"fever"}`,
	}
	e := NewExtractor(mock, "llama-3.3-70b")
	got := e.Extract(context.Background(), "I have a fever, need tomorrow off", nil, UserContext{Today: testToday(t)})

	if got.Intent != RequestLeave {
		t.Fatalf("intent = %q, want %q", got.Intent, RequestLeave)
	}
	if got.LeaveType != "SICK" || got.StartDate != "2025-01-11" || got.Reason != "fever" {
		t.Fatalf("got %+v", got)
	}
}

func TestExtract_StripsCodeFences(t *testing.T) {
	mock := &mockChatter{
		response: "```json\n{\"intent\":\"CHECK_BALANCE\"}\n```",
	}
	e := NewExtractor(mock, "m")
	got := e.Extract(context.Background(), "how many days left", nil, UserContext{Today: testToday(t)})

	if got.Intent != CheckBalance {
		t.Fatalf("intent = %q, want %q", got.Intent, CheckBalance)
	}
}

func TestExtract_FallbackOnError(t *testing.T) {
	mock := &mockChatter{err: fmt.Errorf("connection refused")}
	e := NewExtractor(mock, "m")
	got := e.Extract(context.Background(), "I want sick leave tomorrow", nil, UserContext{Today: testToday(t)})

	if got.Intent != RequestLeave {
		t.Fatalf("intent = %q, want %q", got.Intent, RequestLeave)
	}
	if got.LeaveType != string(storage.LeaveSick) {
		t.Fatalf("leave type = %q, want SICK", got.LeaveType)
	}
	if got.StartDate != "2025-01-11" {
		t.Fatalf("start = %q, want 2025-01-11", got.StartDate)
	}
}

func TestExtract_FallbackOnMalformedJSON(t *testing.T) {
	mock := &mockChatter{response: "sorry, I cannot help with that"}
	e := NewExtractor(mock, "m")
	got := e.Extract(context.Background(), "show my leave history", nil, UserContext{Today: testToday(t)})

	if got.Intent != QueryLeaves {
		t.Fatalf("intent = %q, want %q", got.Intent, QueryLeaves)
	}
}

func TestExtract_UnknownIntentFallsBack(t *testing.T) {
	mock := &mockChatter{response: `{"intent":"SOMETHING_ELSE"}`}
	e := NewExtractor(mock, "m")
	got := e.Extract(context.Background(), "hello there", nil, UserContext{Today: testToday(t)})

	if got.Intent != General {
		t.Fatalf("intent = %q, want %q", got.Intent, General)
	}
}

func TestExtract_EmptyMessage(t *testing.T) {
	e := NewExtractor(&mockChatter{}, "m")
	got := e.Extract(context.Background(), "   ", nil, UserContext{Today: testToday(t)})
	if got.Intent != General {
		t.Fatalf("intent = %q, want %q", got.Intent, General)
	}
}

func TestParseFallback_Approve(t *testing.T) {
	got := ParseFallback("approve request #42", nil, testToday(t))
	if got.Intent != ApproveReject || got.Action != ActionApprove {
		t.Fatalf("got %+v", got)
	}
	if got.LeaveID != 42 {
		t.Fatalf("leave id = %d, want 42", got.LeaveID)
	}
}

func TestParseFallback_Pending(t *testing.T) {
	got := ParseFallback("show me pending requests", nil, testToday(t))
	if got.Intent != ApproveReject || got.Action != ActionCheckPending {
		t.Fatalf("got %+v", got)
	}
}

func TestParseFallback_ISODates(t *testing.T) {
	got := ParseFallback("I need annual leave from 2025-03-01 to 2025-03-05", nil, testToday(t))
	if got.Intent != RequestLeave || got.LeaveType != string(storage.LeaveAnnual) {
		t.Fatalf("got %+v", got)
	}
	if got.StartDate != "2025-03-01" || got.EndDate != "2025-03-05" {
		t.Fatalf("dates = %q..%q", got.StartDate, got.EndDate)
	}
}

func TestParseFallback_HistoryCompletesRequest(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "I need some time off"},
		{Role: "assistant", Content: "What type of leave would you like to request?"},
		{Role: "user", Content: "Sick Leave"},
		{Role: "assistant", Content: "Which dates do you need for your sick leave?"},
	}
	got := ParseFallback("From 2025-02-10 to 2025-02-12", history, testToday(t))
	if got.Intent != RequestLeave || got.LeaveType != string(storage.LeaveSick) {
		t.Fatalf("got %+v", got)
	}
	if got.StartDate != "2025-02-10" || got.EndDate != "2025-02-12" {
		t.Fatalf("dates = %q..%q", got.StartDate, got.EndDate)
	}
}

func TestParseFallback_CurrentMessageWinsOverHistory(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "I was sick last month"},
	}
	got := ParseFallback("annual leave from 2025-03-01 to 2025-03-02", history, testToday(t))
	if got.LeaveType != string(storage.LeaveAnnual) {
		t.Fatalf("leave type = %q, want ANNUAL", got.LeaveType)
	}
}

func TestParseFallback_EditReopensDates(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "Sick Leave"},
		{Role: "user", Content: "From 2025-02-10 to 2025-02-12"},
	}
	got := ParseFallback("edit", history, testToday(t))
	if got.Intent != RequestLeave || got.LeaveType != string(storage.LeaveSick) {
		t.Fatalf("got %+v", got)
	}
	if got.StartDate != "" || got.EndDate != "" {
		t.Fatalf("dates = %q..%q, want empty after edit", got.StartDate, got.EndDate)
	}
}

func TestParseFallback_Greeting(t *testing.T) {
	got := ParseFallback("good morning!", nil, testToday(t))
	if got.Intent != General {
		t.Fatalf("intent = %q, want GENERAL", got.Intent)
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	today := testToday(t)
	history := make([]llm.Message, 8)
	for i := range history {
		history[i] = llm.Message{Role: "user", Content: fmt.Sprintf("m%d", i)}
	}

	msgs := BuildPrompt("hi", history, UserContext{
		FullName:   "Jane Doe",
		Role:       storage.RoleManager,
		Department: "Engineering",
		Today:      today,
	})

	// system + capped history + user message
	if len(msgs) != 1+maxHistoryMessages+1 {
		t.Fatalf("len(msgs) = %d, want %d", len(msgs), 1+maxHistoryMessages+1)
	}
	if msgs[0].Role != "system" {
		t.Fatalf("first role = %q, want system", msgs[0].Role)
	}
	sys := msgs[0].Content
	for _, want := range []string{"Jane Doe", "Engineering", today.String()} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if msgs[len(msgs)-1].Content != "hi" {
		t.Fatalf("last message = %q, want hi", msgs[len(msgs)-1].Content)
	}
}
