package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kalambet/leaveflow/internal/policy"
	"github.com/kalambet/leaveflow/internal/storage"
)

func teamMembers(deps AppDeps, user *storage.User) ([]storage.User, error) {
	if user.Role == storage.RoleHR {
		return deps.Store.ListUsers()
	}
	return deps.Store.ListTeam(user.ID)
}

func teamIDs(members []storage.User) []int64 {
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

func handlePendingLeaves(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		members, err := teamMembers(deps, currentUser(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing team: %v", err)
			return
		}
		if len(members) == 0 {
			writeJSON(w, http.StatusOK, []storage.Leave{})
			return
		}
		leaves, err := deps.Store.ListLeaves(storage.LeaveFilter{
			EmployeeIDs: teamIDs(members),
			Status:      storage.StatusPending,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing pending leaves: %v", err)
			return
		}
		if leaves == nil {
			leaves = []storage.Leave{}
		}
		writeJSON(w, http.StatusOK, leaves)
	}
}

type decisionRequest struct {
	Comments string `json:"comments"`
}

func handleDecideLeave(deps AppDeps, decision storage.LeaveStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid leave id")
			return
		}

		var req decisionRequest
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
			json.NewDecoder(r.Body).Decode(&req)
		}

		leave, err := deps.Store.GetLeave(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "leave request not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading leave: %v", err)
			return
		}
		if leave.Status != storage.StatusPending {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "request already %s", strings.ToLower(string(leave.Status)))
			return
		}

		user := currentUser(r)
		employee, err := deps.Store.GetUser(leave.EmployeeID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading employee: %v", err)
			return
		}
		if user.Role != storage.RoleHR && (employee.ManagerID == nil || *employee.ManagerID != user.ID) {
			httpError(w, http.StatusForbidden, "permission_error", "employee is not on your team")
			return
		}

		// Approvals are blocked while the request violates active policy.
		if decision == storage.StatusApproved && deps.Checker != nil {
			result, err := deps.Checker.Check(r.Context(), policy.Request{
				LeaveType: leave.LeaveType,
				StartDate: leave.StartDate,
				EndDate:   leave.EndDate,
				Today:     storage.Today(),
			})
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "checking compliance: %v", err)
				return
			}
			if len(result.Violations) > 0 {
				httpError(w, http.StatusBadRequest, "policy_violation",
					"cannot approve: %s", strings.Join(result.Violations, "; "))
				return
			}
		}

		if err := deps.Store.DecideLeave(id, decision, user.ID, req.Comments); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording decision: %v", err)
			return
		}
		if decision == storage.StatusApproved {
			err := deps.Store.ConsumeBalance(leave.EmployeeID, leave.StartDate.Year(), leave.LeaveType, leave.Duration())
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusInternalServerError, "api_error", "updating balance: %v", err)
				return
			}
		}

		leave, err = deps.Store.GetLeave(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reloading leave: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, leave)
	}
}

type teamMemberStatus struct {
	User    storage.User    `json:"user"`
	OnLeave bool            `json:"on_leave"`
	Leaves  []storage.Leave `json:"leaves"`
}

func handleTeamOverview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		members, err := teamMembers(deps, currentUser(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing team: %v", err)
			return
		}

		today := storage.Today()
		overview := make([]teamMemberStatus, 0, len(members))
		for _, m := range members {
			leaves, err := deps.Store.ListLeaves(storage.LeaveFilter{
				EmployeeIDs:   []int64{m.ID},
				Status:        storage.StatusApproved,
				OverlapsStart: today,
				OverlapsEnd:   today,
			})
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "listing leaves: %v", err)
				return
			}
			overview = append(overview, teamMemberStatus{
				User:    m,
				OnLeave: len(leaves) > 0,
				Leaves:  leaves,
			})
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

func handleTeamCalendar(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		members, err := teamMembers(deps, currentUser(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing team: %v", err)
			return
		}

		days := parseIntParam(r, "days", 30, 365)
		today := storage.Today()
		if len(members) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{
				"from":   today,
				"to":     today.AddDays(days),
				"leaves": []storage.Leave{},
			})
			return
		}
		leaves, err := deps.Store.ListLeaves(storage.LeaveFilter{
			EmployeeIDs:   teamIDs(members),
			Status:        storage.StatusApproved,
			OverlapsStart: today,
			OverlapsEnd:   today.AddDays(days),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing leaves: %v", err)
			return
		}
		if leaves == nil {
			leaves = []storage.Leave{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"from":   today,
			"to":     today.AddDays(days),
			"leaves": leaves,
		})
	}
}
