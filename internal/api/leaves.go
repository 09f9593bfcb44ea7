package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kalambet/leaveflow/internal/storage"
)

type createLeaveRequest struct {
	LeaveType           string `json:"leave_type"`
	StartDate           string `json:"start_date"`
	EndDate             string `json:"end_date"`
	Reason              string `json:"reason"`
	ResponsiblePersonID *int64 `json:"responsible_person_id"`
}

func handleCreateLeave(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req createLeaveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		leaveType, err := storage.ParseLeaveType(req.LeaveType)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid leave type %q", req.LeaveType)
			return
		}
		start, err := storage.ParseDate(req.StartDate)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid start_date: %v", err)
			return
		}
		end := start
		if req.EndDate != "" {
			end, err = storage.ParseDate(req.EndDate)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid end_date: %v", err)
				return
			}
		}
		if end.Before(start.Time) {
			start, end = end, start
		}

		user := currentUser(r)
		days := start.InclusiveDays(end)

		balance, err := deps.Store.GetEmployeeBalance(user.ID, start.Year(), leaveType)
		if err == nil && balance.Available < days {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"insufficient balance: %d days available, %d requested", balance.Available, days)
			return
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "checking balance: %v", err)
			return
		}

		leave, err := deps.Store.CreateLeave(storage.Leave{
			EmployeeID:          user.ID,
			LeaveType:           leaveType,
			StartDate:           start,
			EndDate:             end,
			Reason:              req.Reason,
			ResponsiblePersonID: req.ResponsiblePersonID,
			Status:              storage.StatusPending,
			ManagerID:           user.ManagerID,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating leave: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, leave)
	}
}

func handleListOwnLeaves(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		filter := storage.LeaveFilter{EmployeeIDs: []int64{user.ID}}
		if s := r.URL.Query().Get("status"); s != "" {
			filter.Status = storage.LeaveStatus(s)
		}
		leaves, err := deps.Store.ListLeaves(filter)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing leaves: %v", err)
			return
		}
		if leaves == nil {
			leaves = []storage.Leave{}
		}
		writeJSON(w, http.StatusOK, leaves)
	}
}

func handleGetLeave(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid leave id")
			return
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
		user := currentUser(r)
		if leave.EmployeeID != user.ID && !user.Role.IsManager() {
			httpError(w, http.StatusForbidden, "permission_error", "not your leave request")
			return
		}
		writeJSON(w, http.StatusOK, leave)
	}
}

func handleCancelLeave(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid leave id")
			return
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
		user := currentUser(r)
		if leave.EmployeeID != user.ID {
			httpError(w, http.StatusForbidden, "permission_error", "not your leave request")
			return
		}
		if leave.Status != storage.StatusPending {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "only pending requests can be cancelled")
			return
		}
		if err := deps.Store.DecideLeave(id, storage.StatusCancelled, user.ID, "cancelled by employee"); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "cancelling leave: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func handleOwnBalances(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		year := parseIntParam(r, "year", time.Now().UTC().Year(), 0)
		balances, err := deps.Store.ListBalances(year, []int64{user.ID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing balances: %v", err)
			return
		}
		if balances == nil {
			balances = []storage.LeaveBalance{}
		}
		writeJSON(w, http.StatusOK, balances)
	}
}
