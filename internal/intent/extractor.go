// Package intent turns free-form chat messages into structured leave-domain
// intents, using an LLM with a deterministic rule-based fallback.
package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/leaveflow/internal/llm"
	"github.com/kalambet/leaveflow/internal/storage"
)

const extractionTimeout = 15 * time.Second

// Intent type values.
const (
	RequestLeave  = "REQUEST_LEAVE"
	ApproveReject = "APPROVE_REJECT"
	QueryLeaves   = "QUERY_LEAVES"
	CheckBalance  = "CHECK_BALANCE"
	TeamStatus    = "TEAM_STATUS"
	Analytics     = "ANALYTICS"
	General       = "GENERAL"
)

// Action values for APPROVE_REJECT intents.
const (
	ActionApprove      = "APPROVE"
	ActionReject       = "REJECT"
	ActionCheckPending = "CHECK_PENDING"
)

// Chatter is the chat completion interface the extractor depends on.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message, jsonMode bool) (string, error)
}

// Intent holds the structured extraction result for one user message.
type Intent struct {
	Intent       string `json:"intent"`
	LeaveType    string `json:"leave_type,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Action       string `json:"action,omitempty"`
	LeaveID      int64  `json:"leave_id,omitempty"`
	EmployeeName string `json:"employee_name,omitempty"`
	Status       string `json:"status,omitempty"`
	Department   string `json:"department,omitempty"`
}

// UserContext describes the requesting user, included in the extraction
// prompt so the model resolves "my", "me" and role-specific phrasing.
type UserContext struct {
	FullName   string
	Role       storage.UserRole
	Department string
	Today      storage.Date
}

// Extractor parses user messages into Intents.
type Extractor struct {
	client Chatter
	model  string
}

func NewExtractor(client Chatter, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract analyses the message and recent history. On any LLM failure
// (timeout, malformed JSON, transport error) it falls back to rule-based
// parsing so the conversation never dead-ends.
func (e *Extractor) Extract(ctx context.Context, message string, history []llm.Message, user UserContext) Intent {
	if strings.TrimSpace(message) == "" {
		return Intent{Intent: General}
	}

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	messages := BuildPrompt(message, history, user)

	raw, err := e.client.Chat(ctx, e.model, messages, true)
	if err != nil {
		slog.Warn("intent extraction chat failed, using fallback parser", "error", err)
		return ParseFallback(message, history, user.Today)
	}

	var result Intent
	if err := json.Unmarshal([]byte(stripFences(raw)), &result); err != nil {
		slog.Warn("failed to unmarshal intent from LLM response, using fallback parser", "error", err, "response", raw)
		return ParseFallback(message, history, user.Today)
	}
	if !validIntent(result.Intent) {
		return ParseFallback(message, history, user.Today)
	}
	result.LeaveType = strings.ToUpper(strings.TrimSpace(result.LeaveType))
	result.Action = strings.ToUpper(strings.TrimSpace(result.Action))
	result.Status = strings.ToUpper(strings.TrimSpace(result.Status))
	return result
}

func validIntent(s string) bool {
	switch s {
	case RequestLeave, ApproveReject, QueryLeaves, CheckBalance, TeamStatus, Analytics, General:
		return true
	}
	return false
}

// stripFences removes a markdown code fence wrapper, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
