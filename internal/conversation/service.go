// Package conversation routes parsed chat intents to leave-domain handlers
// and shapes the assistant responses, including the widget state the client
// renders.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/leaveflow/internal/intent"
	"github.com/kalambet/leaveflow/internal/llm"
	"github.com/kalambet/leaveflow/internal/policy"
	"github.com/kalambet/leaveflow/internal/storage"
)

// Widget component tags understood by clients.
const (
	ComponentGreeting         = "GREETING"
	ComponentTypeSelector     = "TYPE_SELECTOR"
	ComponentDatePicker       = "DATE_PICKER"
	ComponentConfirmationCard = "CONFIRMATION_CARD"
)

// UIState tells the client which widget to render for an assistant turn.
type UIState struct {
	Component string `json:"component"`
	Stage     string `json:"stage,omitempty"`
}

// Response is the assistant's reply for one user message.
type Response struct {
	Response string         `json:"response"`
	Intent   string         `json:"intent"`
	Data     map[string]any `json:"data,omitempty"`
	UIState  *UIState       `json:"ui_state,omitempty"`
	Actions  []string       `json:"actions,omitempty"`
}

// IntentParser extracts a structured intent from a user message.
type IntentParser interface {
	Extract(ctx context.Context, message string, history []llm.Message, user intent.UserContext) intent.Intent
}

// ComplianceChecker validates a leave request against company policy.
type ComplianceChecker interface {
	Check(ctx context.Context, req policy.Request) (policy.Result, error)
}

// Chatter generates free-form reply text. Optional.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message, jsonMode bool) (string, error)
}

// Service handles conversation turns.
type Service struct {
	store   *storage.Store
	parser  IntentParser
	checker ComplianceChecker
	chatter Chatter
	model   string
	today   func() storage.Date
}

// NewService creates a Service. checker and chatter may be nil; without them
// compliance reports a warning and small talk uses canned text.
func NewService(store *storage.Store, parser IntentParser, checker ComplianceChecker, chatter Chatter, model string) *Service {
	return &Service{
		store:   store,
		parser:  parser,
		checker: checker,
		chatter: chatter,
		model:   model,
		today:   storage.Today,
	}
}

// Handle processes one user message and returns the assistant response.
func (s *Service) Handle(ctx context.Context, user *storage.User, message string, history []llm.Message) (Response, error) {
	it := s.parser.Extract(ctx, message, history, intent.UserContext{
		FullName:   user.FullName,
		Role:       user.Role,
		Department: user.Department,
		Today:      s.today(),
	})

	it = correctForRole(it, user)

	switch it.Intent {
	case intent.RequestLeave:
		return s.handleRequestLeave(ctx, user, it)
	case intent.ApproveReject:
		return s.handleApproveReject(ctx, user, it)
	case intent.QueryLeaves:
		return s.handleQueryLeaves(ctx, user, it)
	case intent.CheckBalance:
		return s.handleCheckBalance(ctx, user)
	case intent.TeamStatus:
		return s.handleTeamStatus(ctx, user)
	case intent.Analytics:
		return s.handleAnalytics(ctx, user)
	default:
		return s.handleGeneral(ctx, user, message)
	}
}

// correctForRole rewrites intents the user's role cannot act on into the
// closest query they are allowed to run.
func correctForRole(it intent.Intent, user *storage.User) intent.Intent {
	switch it.Intent {
	case intent.ApproveReject:
		if !user.Role.IsManager() {
			return intent.Intent{
				Intent:       intent.QueryLeaves,
				Status:       string(storage.StatusPending),
				EmployeeName: user.FullName,
			}
		}
	case intent.TeamStatus:
		if !user.Role.IsManager() {
			return intent.Intent{Intent: intent.QueryLeaves}
		}
	case intent.Analytics:
		if user.Role != storage.RoleHR {
			return intent.Intent{Intent: intent.QueryLeaves}
		}
	}
	return it
}

var greetingWords = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "greetings"}

func isGreeting(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	lower = strings.TrimRight(lower, "!. ")
	for _, w := range greetingWords {
		if lower == w || strings.HasPrefix(lower, w+" ") || strings.HasPrefix(lower, w+",") {
			return true
		}
	}
	return false
}

func (s *Service) handleGeneral(ctx context.Context, user *storage.User, message string) (Response, error) {
	if isGreeting(message) {
		return Response{
			Response: fmt.Sprintf("Hello %s! I can help you request leave, check balances and review your requests. What would you like to do?", firstName(user.FullName)),
			Intent:   intent.General,
			UIState:  &UIState{Component: ComponentGreeting, Stage: "welcome"},
			Actions:  roleActions(user.Role),
		}, nil
	}

	if s.chatter != nil {
		reply, err := s.chatter.Chat(ctx, s.model, []llm.Message{
			{Role: "system", Content: "You are a concise, friendly leave management assistant. Answer in one or two sentences and steer the user towards leave requests, balances, approvals or team status."},
			{Role: "user", Content: message},
		}, false)
		if err == nil && strings.TrimSpace(reply) != "" {
			return Response{Response: reply, Intent: intent.General, Actions: roleActions(user.Role)}, nil
		}
		if err != nil {
			slog.Warn("general reply generation failed", "error", err)
		}
	}

	return Response{
		Response: "I can help with leave requests, balances, approvals and team status. Try \"I need sick leave tomorrow\" or \"check my balance\".",
		Intent:   intent.General,
		Actions:  roleActions(user.Role),
	}, nil
}

// roleActions returns the quick-action labels offered for a role.
func roleActions(role storage.UserRole) []string {
	actions := []string{"Request leave", "Check my balance", "My leave requests"}
	if role.IsManager() {
		actions = append(actions, "Pending approvals", "Team status")
	}
	if role == storage.RoleHR {
		actions = append(actions, "Leave analytics")
	}
	return actions
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
