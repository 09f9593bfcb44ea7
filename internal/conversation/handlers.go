package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/leaveflow/internal/intent"
	"github.com/kalambet/leaveflow/internal/policy"
	"github.com/kalambet/leaveflow/internal/storage"
)

func (s *Service) handleRequestLeave(ctx context.Context, user *storage.User, it intent.Intent) (Response, error) {
	leaveType, typeErr := storage.ParseLeaveType(it.LeaveType)
	if it.LeaveType == "" || typeErr != nil {
		return Response{
			Response: "What type of leave would you like to request?",
			Intent:   intent.RequestLeave,
			UIState:  &UIState{Component: ComponentTypeSelector, Stage: "select_type"},
			Actions:  leaveTypeLabels(),
		}, nil
	}

	start, startErr := storage.ParseDate(it.StartDate)
	if it.StartDate == "" || startErr != nil {
		return Response{
			Response: fmt.Sprintf("Which dates do you need for your %s?", strings.ToLower(leaveTypeLabel(leaveType))),
			Intent:   intent.RequestLeave,
			Data:     map[string]any{"leave_type": leaveType},
			UIState:  &UIState{Component: ComponentDatePicker, Stage: "select_dates"},
		}, nil
	}

	end := start
	if it.EndDate != "" {
		if parsed, err := storage.ParseDate(it.EndDate); err == nil {
			end = parsed
		}
	}
	if end.Before(start.Time) {
		start, end = end, start
	}

	duration := start.InclusiveDays(end)

	data := map[string]any{
		"leave_type":    leaveType,
		"start_date":    start.String(),
		"end_date":      end.String(),
		"duration_days": duration,
	}
	if it.Reason != "" {
		data["reason"] = it.Reason
	}

	balance, err := s.store.GetEmployeeBalance(user.ID, start.Year(), leaveType)
	var balanceNote string
	switch {
	case err == nil:
		data["balance_available"] = balance.Available
		if balance.Available < duration {
			balanceNote = fmt.Sprintf(" Note: you have only %d %s days available.", balance.Available, strings.ToLower(leaveTypeLabel(leaveType)))
		}
	case errors.Is(err, storage.ErrNotFound):
		// No allocation row yet; HR may not have seeded this year.
	default:
		return Response{}, fmt.Errorf("loading balance: %w", err)
	}

	if suggestions, err := s.suggestResponsible(ctx, user, start, end); err != nil {
		slog.Warn("responsible person suggestion failed", "error", err)
	} else if len(suggestions) > 0 {
		data["suggested_responsible"] = suggestions
	}

	if impact, err := s.teamImpact(user, start, end); err != nil {
		slog.Warn("team impact computation failed", "error", err)
	} else {
		data["team_impact"] = impact
	}

	if s.checker != nil {
		result, err := s.checker.Check(ctx, policy.Request{
			LeaveType: leaveType,
			StartDate: start,
			EndDate:   end,
			Today:     s.today(),
		})
		if err != nil {
			slog.Warn("compliance check failed", "error", err)
		} else {
			data["policy_compliance"] = result
		}
	}

	dayWord := "days"
	if duration == 1 {
		dayWord = "day"
	}
	return Response{
		Response: fmt.Sprintf("Here's your request: %s from %s to %s (%d %s). Please confirm.%s",
			leaveTypeLabel(leaveType), start, end, duration, dayWord, balanceNote),
		Intent:  intent.RequestLeave,
		Data:    data,
		UIState: &UIState{Component: ComponentConfirmationCard, Stage: "confirm"},
	}, nil
}

func (s *Service) handleApproveReject(ctx context.Context, user *storage.User, it intent.Intent) (Response, error) {
	if it.LeaveID != 0 && (it.Action == intent.ActionApprove || it.Action == intent.ActionReject) {
		return s.decideLeave(ctx, user, it)
	}
	return s.listPending(ctx, user)
}

func (s *Service) decideLeave(ctx context.Context, user *storage.User, it intent.Intent) (Response, error) {
	leave, err := s.store.GetLeave(it.LeaveID)
	if errors.Is(err, storage.ErrNotFound) {
		return Response{
			Response: fmt.Sprintf("I couldn't find leave request #%d.", it.LeaveID),
			Intent:   intent.ApproveReject,
		}, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("loading leave: %w", err)
	}

	if leave.Status != storage.StatusPending {
		return Response{
			Response: fmt.Sprintf("Request #%d has already been %s.", leave.ID, strings.ToLower(string(leave.Status))),
			Intent:   intent.ApproveReject,
		}, nil
	}

	if ok, err := s.manages(user, leave.EmployeeID); err != nil {
		return Response{}, err
	} else if !ok {
		return Response{
			Response: fmt.Sprintf("Request #%d belongs to someone outside your team.", leave.ID),
			Intent:   intent.ApproveReject,
		}, nil
	}

	if it.Action == intent.ActionApprove && s.checker != nil {
		result, err := s.checker.Check(ctx, policy.Request{
			LeaveType: leave.LeaveType,
			StartDate: leave.StartDate,
			EndDate:   leave.EndDate,
			Today:     s.today(),
		})
		if err != nil {
			slog.Warn("compliance check failed", "error", err)
		} else if !result.Compliant {
			return Response{
				Response: fmt.Sprintf("Request #%d violates company policy and cannot be approved: %s",
					leave.ID, strings.Join(result.Violations, "; ")),
				Intent: intent.ApproveReject,
				Data:   map[string]any{"policy_compliance": result, "leave": leave},
			}, nil
		}
	}

	status := storage.StatusRejected
	if it.Action == intent.ActionApprove {
		status = storage.StatusApproved
	}
	if err := s.store.DecideLeave(leave.ID, status, user.ID, it.Reason); err != nil {
		return Response{}, fmt.Errorf("recording decision: %w", err)
	}

	if status == storage.StatusApproved {
		days := leave.Duration()
		if err := s.store.ConsumeBalance(leave.EmployeeID, leave.StartDate.Year(), leave.LeaveType, days); err != nil {
			slog.Warn("balance update after approval failed", "leave_id", leave.ID, "error", err)
		}
	}

	verb := "rejected"
	if status == storage.StatusApproved {
		verb = "approved"
	}
	return Response{
		Response: fmt.Sprintf("Request #%d has been %s.", leave.ID, verb),
		Intent:   intent.ApproveReject,
		Data:     map[string]any{"leave_id": leave.ID, "status": status},
	}, nil
}

func (s *Service) listPending(ctx context.Context, user *storage.User) (Response, error) {
	employeeIDs, err := s.teamIDs(user)
	if err != nil {
		return Response{}, err
	}
	if len(employeeIDs) == 0 {
		return Response{
			Response: "You have no team members with pending requests.",
			Intent:   intent.ApproveReject,
		}, nil
	}

	leaves, err := s.store.ListLeaves(storage.LeaveFilter{
		EmployeeIDs: employeeIDs,
		Status:      storage.StatusPending,
	})
	if err != nil {
		return Response{}, fmt.Errorf("listing pending leaves: %w", err)
	}

	if len(leaves) == 0 {
		return Response{
			Response: "No pending leave requests right now.",
			Intent:   intent.ApproveReject,
		}, nil
	}

	actions := make([]string, 0, len(leaves))
	for _, l := range leaves {
		actions = append(actions, fmt.Sprintf("Approve request #%d", l.ID))
	}
	return Response{
		Response: fmt.Sprintf("You have %d pending leave request(s).", len(leaves)),
		Intent:   intent.ApproveReject,
		Data:     map[string]any{"pending_leaves": leaves},
		Actions:  actions,
	}, nil
}

func (s *Service) handleQueryLeaves(ctx context.Context, user *storage.User, it intent.Intent) (Response, error) {
	target := user
	if it.EmployeeName != "" && user.Role.IsManager() && !strings.EqualFold(it.EmployeeName, user.FullName) {
		found, err := s.store.FindUserByName(it.EmployeeName)
		if errors.Is(err, storage.ErrNotFound) {
			return Response{
				Response: fmt.Sprintf("I couldn't find an employee named %q.", it.EmployeeName),
				Intent:   intent.QueryLeaves,
			}, nil
		}
		if err != nil {
			return Response{}, fmt.Errorf("finding employee: %w", err)
		}
		target = &found
	}

	filter := storage.LeaveFilter{EmployeeIDs: []int64{target.ID}}
	if it.Status != "" {
		filter.Status = storage.LeaveStatus(it.Status)
	}

	leaves, err := s.store.ListLeaves(filter)
	if err != nil {
		return Response{}, fmt.Errorf("listing leaves: %w", err)
	}

	whose := "You have"
	if target.ID != user.ID {
		whose = target.FullName + " has"
	}
	if len(leaves) == 0 {
		return Response{
			Response: fmt.Sprintf("%s no leave requests%s.", whose, statusSuffix(filter.Status)),
			Intent:   intent.QueryLeaves,
		}, nil
	}

	return Response{
		Response: fmt.Sprintf("%s %d leave request(s)%s.", whose, len(leaves), statusSuffix(filter.Status)),
		Intent:   intent.QueryLeaves,
		Data:     map[string]any{"leaves": leaves},
	}, nil
}

func statusSuffix(status storage.LeaveStatus) string {
	if status == "" {
		return ""
	}
	return " with status " + strings.ToLower(string(status))
}

func (s *Service) handleCheckBalance(ctx context.Context, user *storage.User) (Response, error) {
	year := s.today().Year()
	balances, err := s.store.ListBalances(year, []int64{user.ID})
	if err != nil {
		return Response{}, fmt.Errorf("listing balances: %w", err)
	}

	if len(balances) == 0 {
		return Response{
			Response: fmt.Sprintf("No leave balances have been allocated for you in %d yet. Ask HR to set them up.", year),
			Intent:   intent.CheckBalance,
		}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Your %d leave balances:", year)
	for _, b := range balances {
		fmt.Fprintf(&sb, " %s %d/%d available;", leaveTypeLabel(b.LeaveType), b.Available, b.TotalAllocated)
	}
	return Response{
		Response: strings.TrimSuffix(sb.String(), ";"),
		Intent:   intent.CheckBalance,
		Data:     map[string]any{"balances": balances, "year": year},
	}, nil
}

func (s *Service) handleTeamStatus(ctx context.Context, user *storage.User) (Response, error) {
	employeeIDs, err := s.teamIDs(user)
	if err != nil {
		return Response{}, err
	}
	if len(employeeIDs) == 0 {
		return Response{Response: "You have no team members.", Intent: intent.TeamStatus}, nil
	}

	today := s.today()
	leaves, err := s.store.ListLeaves(storage.LeaveFilter{
		EmployeeIDs:   employeeIDs,
		Status:        storage.StatusApproved,
		OverlapsStart: today,
		OverlapsEnd:   today.AddDays(7),
	})
	if err != nil {
		return Response{}, fmt.Errorf("listing team leaves: %w", err)
	}

	outToday := 0
	for _, l := range leaves {
		if !l.StartDate.After(today.Time) && !l.EndDate.Before(today.Time) {
			outToday++
		}
	}

	return Response{
		Response: fmt.Sprintf("%d of %d team members are out today; %d absence(s) in the next 7 days.",
			outToday, len(employeeIDs), len(leaves)),
		Intent: intent.TeamStatus,
		Data:   map[string]any{"team_size": len(employeeIDs), "out_today": outToday, "upcoming_leaves": leaves},
	}, nil
}

func (s *Service) handleAnalytics(ctx context.Context, user *storage.User) (Response, error) {
	year := s.today().Year()

	months, err := s.store.MonthlyLeaveDistribution(year)
	if err != nil {
		return Response{}, fmt.Errorf("monthly distribution: %w", err)
	}
	departments, err := s.store.DepartmentLeaveStats(year)
	if err != nil {
		return Response{}, fmt.Errorf("department stats: %w", err)
	}

	total := 0
	for _, m := range months {
		total += m.Count
	}

	return Response{
		Response: fmt.Sprintf("In %d there have been %d leave requests across %d department(s).", year, total, len(departments)),
		Intent:   intent.Analytics,
		Data: map[string]any{
			"year":           year,
			"monthly":        months,
			"departments":    departments,
			"total_requests": total,
		},
	}, nil
}

// teamIDs returns the employee IDs the user oversees: HR sees everyone,
// managers see their direct reports.
func (s *Service) teamIDs(user *storage.User) ([]int64, error) {
	var members []storage.User
	var err error
	if user.Role == storage.RoleHR {
		members, err = s.store.ListUsers()
	} else {
		members, err = s.store.ListTeam(user.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing team: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.ID != user.ID {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (s *Service) manages(user *storage.User, employeeID int64) (bool, error) {
	if user.Role == storage.RoleHR {
		return true, nil
	}
	employee, err := s.store.GetUser(employeeID)
	if err != nil {
		return false, fmt.Errorf("loading employee: %w", err)
	}
	return employee.ManagerID != nil && *employee.ManagerID == user.ID, nil
}

func leaveTypeLabels() []string {
	labels := make([]string, len(storage.LeaveTypes))
	for i, t := range storage.LeaveTypes {
		labels[i] = leaveTypeLabel(t)
	}
	return labels
}

func leaveTypeLabel(t storage.LeaveType) string {
	word := strings.ToLower(string(t))
	if word == "" {
		return ""
	}
	return strings.ToUpper(word[:1]) + word[1:] + " Leave"
}
