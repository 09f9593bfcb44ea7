package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/leaveflow/internal/chat"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestConverseSendsMessageAndHistory(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /conversation": `{"response":"Hi!","intent":"GENERAL","ui_state":{"component":"GREETING"}}`,
	})

	turn, err := ts.client().Converse(ctx, "hello", []chat.Message{
		{Role: "user", Content: "earlier"},
	})
	if err != nil {
		t.Fatalf("Converse = %v", err)
	}
	if turn.UIState == nil || turn.UIState.Component != "GREETING" {
		t.Fatalf("turn = %+v", turn)
	}

	req := ts.requests[0]
	if req.Auth != "Bearer test-token" {
		t.Fatalf("auth = %q", req.Auth)
	}
	var body struct {
		Message     string         `json:"message"`
		ChatHistory []chat.Message `json:"chat_history"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Message != "hello" || len(body.ChatHistory) != 1 {
		t.Fatalf("body = %+v", body)
	}
}

func TestConverseEmptyHistoryIsArray(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /conversation": `{"response":"Hi!","intent":"GENERAL"}`,
	})

	if _, err := ts.client().Converse(ctx, "hello", nil); err != nil {
		t.Fatalf("Converse = %v", err)
	}
	if !bytes.Contains([]byte(ts.requests[0].Body), []byte(`"chat_history":[]`)) {
		t.Fatalf("body = %s", ts.requests[0].Body)
	}
}

func TestSubmitLeave(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /employees/leaves": `{"id":42,"status":"PENDING"}`,
	})

	result, err := ts.client().SubmitLeave(ctx, chat.LeaveSubmission{
		LeaveType: "SICK",
		StartDate: "2025-01-10",
		EndDate:   "2025-01-12",
	})
	if err != nil {
		t.Fatalf("SubmitLeave = %v", err)
	}
	if result.LeaveID != 42 || result.Status != "PENDING" {
		t.Fatalf("result = %+v", result)
	}
}

func TestErrorMessageExtracted(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := ts.client().SubmitLeave(ctx, chat.LeaveSubmission{LeaveType: "SICK"})
	if err == nil {
		t.Fatal("SubmitLeave succeeded against 404")
	}
	if err.Error() != "not found" {
		t.Fatalf("err = %q, want extracted message", err)
	}
}

func TestActionByNumber(t *testing.T) {
	actions := []string{"Request leave", "Check my balance", "View my requests"}

	if got, ok := actionByNumber(actions, "2"); !ok || got != "Check my balance" {
		t.Fatalf("actionByNumber(2) = %q, %v", got, ok)
	}
	if _, ok := actionByNumber(actions, "4"); ok {
		t.Fatal("out-of-range number accepted")
	}
	if _, ok := actionByNumber(actions, "0"); ok {
		t.Fatal("zero accepted")
	}
	if _, ok := actionByNumber(actions, "balance"); ok {
		t.Fatal("non-number accepted")
	}
}

func TestStringSlice(t *testing.T) {
	got := stringSlice([]any{"a", "b", 3})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("stringSlice = %v", got)
	}
	if stringSlice("not a slice") != nil {
		t.Fatal("non-slice input should yield nil")
	}
}

// chatScriptBackend replays canned turns for chatUI tests.
type chatScriptBackend struct {
	responses []chat.TurnResponse
	messages  []string
}

func (b *chatScriptBackend) Converse(ctx context.Context, message string, history []chat.Message) (chat.TurnResponse, error) {
	b.messages = append(b.messages, message)
	if len(b.responses) == 0 {
		return chat.TurnResponse{Response: "ok", Intent: "GENERAL"}, nil
	}
	resp := b.responses[0]
	b.responses = b.responses[1:]
	return resp, nil
}

func (b *chatScriptBackend) SubmitLeave(ctx context.Context, req chat.LeaveSubmission) (chat.SubmitResult, error) {
	return chat.SubmitResult{LeaveID: 1, Status: "PENDING"}, nil
}

func TestChatUINumberSelectsQuickAction(t *testing.T) {
	backend := &chatScriptBackend{responses: []chat.TurnResponse{
		{
			Response: "What would you like to do?",
			Intent:   "GENERAL",
			UIState:  &chat.UIState{Component: "TYPE_SELECTOR"},
			Actions:  []string{"Sick Leave", "Annual Leave"},
		},
		{Response: "Got it.", Intent: "REQUEST_LEAVE"},
	}}
	ui := &chatUI{session: chat.NewSession(backend)}

	if err := ui.send("I need leave"); err != nil {
		t.Fatalf("send = %v", err)
	}
	if err := ui.handle("1"); err != nil {
		t.Fatalf("handle = %v", err)
	}

	// The quick-action label is sent verbatim.
	if got := backend.messages[len(backend.messages)-1]; got != "Sick Leave" {
		t.Fatalf("sent %q, want the action label", got)
	}
}

func TestChatUIDateRangeSendsPhrase(t *testing.T) {
	backend := &chatScriptBackend{responses: []chat.TurnResponse{
		{
			Response: "Which dates?",
			Intent:   "REQUEST_LEAVE",
			UIState:  &chat.UIState{Component: "DATE_PICKER"},
		},
		{Response: "Confirmed range.", Intent: "REQUEST_LEAVE"},
	}}
	ui := &chatUI{session: chat.NewSession(backend)}

	if err := ui.send("sick leave"); err != nil {
		t.Fatalf("send = %v", err)
	}

	// Clicks arrive out of order; the phrase is still min..max.
	if handled, err := ui.handleDateInput("2025-01-12"); !handled || err != nil {
		t.Fatalf("first click handled=%v err=%v", handled, err)
	}
	if handled, err := ui.handleDateInput("2025-01-10"); !handled || err != nil {
		t.Fatalf("second click handled=%v err=%v", handled, err)
	}

	if got := backend.messages[len(backend.messages)-1]; got != "From 2025-01-10 to 2025-01-12" {
		t.Fatalf("sent %q", got)
	}
	if ui.picker.HasSelection() {
		t.Fatal("picker not reset after send")
	}
}

func TestChatUISingleDayDone(t *testing.T) {
	backend := &chatScriptBackend{responses: []chat.TurnResponse{
		{
			Response: "Which dates?",
			Intent:   "REQUEST_LEAVE",
			UIState:  &chat.UIState{Component: "DATE_PICKER"},
		},
		{Response: "One day noted.", Intent: "REQUEST_LEAVE"},
	}}
	ui := &chatUI{session: chat.NewSession(backend)}

	if err := ui.send("sick leave"); err != nil {
		t.Fatalf("send = %v", err)
	}
	if handled, _ := ui.handleDateInput("2025-01-10"); !handled {
		t.Fatal("date not handled")
	}
	if handled, _ := ui.handleDateInput("done"); !handled {
		t.Fatal("done not handled")
	}

	if got := backend.messages[len(backend.messages)-1]; got != "From 2025-01-10 to 2025-01-10" {
		t.Fatalf("sent %q", got)
	}
}

func TestChatUINonDateInputFallsThrough(t *testing.T) {
	ui := &chatUI{session: chat.NewSession(&chatScriptBackend{})}

	handled, err := ui.handleDateInput("next tuesday")
	if handled || err != nil {
		t.Fatalf("handled=%v err=%v, want fall-through", handled, err)
	}
}
