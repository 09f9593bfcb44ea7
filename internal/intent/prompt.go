package intent

import (
	"fmt"
	"strings"

	"github.com/kalambet/leaveflow/internal/llm"
)

const maxHistoryMessages = 5

const systemPromptTemplate = `You are an intent extraction engine for a leave management assistant. Analyze the user's message and conversation history. Your output must be ONLY a single valid JSON object. Do not include any other text, prose, or markdown.

Fields:
- "intent": one of REQUEST_LEAVE, APPROVE_REJECT, QUERY_LEAVES, CHECK_BALANCE, TEAM_STATUS, ANALYTICS, GENERAL
- "leave_type": one of CASUAL, SICK, ANNUAL, MATERNITY, PATERNITY, UNPAID, if mentioned
- "start_date", "end_date": ISO dates (YYYY-MM-DD), if mentioned; resolve relative dates against today's date
- "reason": the user's stated reason, if any
- "action": for APPROVE_REJECT, one of APPROVE, REJECT, CHECK_PENDING
- "leave_id": the numeric request id, if the user names one
- "employee_name": the employee the user asks about, if not themselves
- "status": PENDING, APPROVED, REJECTED or CANCELLED when the user filters by status
- "department": a department name, for team or analytics questions

Rules:
- "I need leave", "take a day off", "I'm sick tomorrow" are REQUEST_LEAVE.
- "approve", "reject", "pending requests" are APPROVE_REJECT.
- "my leaves", "my requests", "leave history" are QUERY_LEAVES.
- "how many days do I have left" is CHECK_BALANCE.
- "who is out", "team calendar" are TEAM_STATUS.
- "leave trends", "department statistics" are ANALYTICS.
- Greetings and anything else are GENERAL.
- Omit fields the user did not state; never invent dates.`

// BuildPrompt constructs the chat messages for intent extraction. Only the
// last few history messages are included.
func BuildPrompt(message string, history []llm.Message, user UserContext) []llm.Message {
	var sb strings.Builder
	sb.WriteString(systemPromptTemplate)

	fmt.Fprintf(&sb, "\n\nToday's date: %s", user.Today)
	if user.FullName != "" {
		fmt.Fprintf(&sb, "\nUser: %s (%s, %s department)", user.FullName, user.Role, user.Department)
	}

	messages := []llm.Message{
		{Role: "system", Content: sb.String()},
	}

	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	messages = append(messages, history...)

	messages = append(messages, llm.Message{
		Role:    "user",
		Content: message,
	})

	return messages
}
