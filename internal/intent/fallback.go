package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kalambet/leaveflow/internal/llm"
	"github.com/kalambet/leaveflow/internal/storage"
)

var (
	isoDateRE = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	leaveIDRE = regexp.MustCompile(`\b(?:request|leave|id)\s*#?\s*(\d+)\b`)
)

// ParseFallback extracts an intent with keyword rules when the LLM is
// unavailable or returns garbage. Widget phrases arrive one fragment per
// turn ("Sick Leave", then a date range), so a partial leave request is
// completed from recent user turns in the history.
func ParseFallback(message string, history []llm.Message, today storage.Date) Intent {
	lower := strings.ToLower(message)

	result := Intent{Intent: General}

	switch {
	case containsAny(lower, "approve", "reject", "deny", "pending request", "pending leaves", "pending approvals"):
		result.Intent = ApproveReject
		switch {
		case strings.Contains(lower, "approve"):
			result.Action = ActionApprove
		case containsAny(lower, "reject", "deny"):
			result.Action = ActionReject
		default:
			result.Action = ActionCheckPending
		}
		if m := leaveIDRE.FindStringSubmatch(lower); m != nil {
			if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				result.LeaveID = id
			}
		}
	case containsAny(lower, "balance", "days left", "days do i have", "remaining"):
		result.Intent = CheckBalance
	case containsAny(lower, "who is out", "who's out", "team status", "team calendar", "on leave today"):
		result.Intent = TeamStatus
	case containsAny(lower, "analytics", "trends", "statistics", "report"):
		result.Intent = Analytics
	case containsAny(lower, "my leaves", "my requests", "my leave requests", "leave history", "status of my"):
		result.Intent = QueryLeaves
	case containsAny(lower, "leave", "day off", "days off", "vacation", "time off", "sick", "holiday"):
		result.Intent = RequestLeave
	case strings.TrimSpace(lower) == "edit":
		// Confirmation-card edit reopens the date selection.
		result.Intent = RequestLeave
	case isoDateRE.MatchString(lower):
		// Bare date phrases come from the date picker ("From X to Y").
		result.Intent = RequestLeave
	}

	if result.Intent == RequestLeave {
		result.LeaveType = detectLeaveType(lower)
		result.StartDate, result.EndDate = detectDates(lower, today)
		backfillFromHistory(&result, history, today, strings.TrimSpace(lower) == "edit")
	}

	return result
}

// backfillFromHistory fills the missing pieces of a leave request from the
// last few user turns. "edit" reopens date selection, so dates are never
// recovered for it.
func backfillFromHistory(result *Intent, history []llm.Message, today storage.Date, editing bool) {
	scanned := 0
	for i := len(history) - 1; i >= 0 && scanned < maxHistoryMessages; i-- {
		if history[i].Role != "user" {
			continue
		}
		scanned++
		lower := strings.ToLower(history[i].Content)
		if result.LeaveType == "" {
			result.LeaveType = detectLeaveType(lower)
		}
		if result.StartDate == "" && !editing {
			result.StartDate, result.EndDate = detectDates(lower, today)
		}
	}
}

func detectLeaveType(lower string) string {
	switch {
	case containsAny(lower, "sick", "ill", "unwell", "fever", "doctor"):
		return string(storage.LeaveSick)
	case containsAny(lower, "annual", "vacation", "holiday"):
		return string(storage.LeaveAnnual)
	case strings.Contains(lower, "maternity"):
		return string(storage.LeaveMaternity)
	case strings.Contains(lower, "paternity"):
		return string(storage.LeavePaternity)
	case strings.Contains(lower, "unpaid"):
		return string(storage.LeaveUnpaid)
	case containsAny(lower, "casual", "personal"):
		return string(storage.LeaveCasual)
	}
	return ""
}

func detectDates(lower string, today storage.Date) (start, end string) {
	if dates := isoDateRE.FindAllString(lower, 2); len(dates) > 0 {
		start = dates[0]
		if len(dates) > 1 {
			end = dates[1]
		}
		return start, end
	}

	switch {
	case strings.Contains(lower, "today"):
		start = today.String()
	case strings.Contains(lower, "tomorrow"):
		start = today.AddDays(1).String()
	case strings.Contains(lower, "next week"):
		start = today.AddDays(7).String()
	}
	return start, end
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
