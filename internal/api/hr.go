package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kalambet/leaveflow/internal/storage"
)

func handleListUsers(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			users []storage.User
			err   error
		)
		if role := r.URL.Query().Get("role"); role != "" {
			users, err = deps.Store.ListUsersByRole(storage.UserRole(role))
		} else {
			users, err = deps.Store.ListUsers()
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing users: %v", err)
			return
		}
		if users == nil {
			users = []storage.User{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func handleUpdateRole(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user id")
			return
		}
		var req struct {
			Role storage.UserRole `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		switch req.Role {
		case storage.RoleEmployee, storage.RoleManager, storage.RoleHR:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid role %q", req.Role)
			return
		}
		if err := deps.Store.UpdateUserRole(id, req.Role); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "user not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "updating role: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleUpdateManager(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user id")
			return
		}
		var req struct {
			ManagerID *int64 `json:"manager_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ManagerID != nil {
			manager, err := deps.Store.GetUser(*req.ManagerID)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "manager not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "loading manager: %v", err)
				return
			}
			if !manager.Role.IsManager() {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "user %d is not a manager", manager.ID)
				return
			}
		}
		if err := deps.Store.UpdateUserManager(id, req.ManagerID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "user not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "updating manager: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleSetActive(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid user id")
			return
		}
		var req struct {
			IsActive bool `json:"is_active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Store.SetUserActive(id, req.IsActive); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "user not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "updating user: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleListBalances(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year := parseIntParam(r, "year", time.Now().UTC().Year(), 0)
		var employeeIDs []int64
		if v := parseIntParam(r, "employee_id", 0, 0); v > 0 {
			employeeIDs = []int64{int64(v)}
		}
		balances, err := deps.Store.ListBalances(year, employeeIDs)
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

type balanceRequest struct {
	EmployeeID     int64  `json:"employee_id"`
	Year           int    `json:"year"`
	LeaveType      string `json:"leave_type"`
	TotalAllocated int    `json:"total_allocated"`
}

func (req balanceRequest) toBalance() (storage.LeaveBalance, error) {
	leaveType, err := storage.ParseLeaveType(req.LeaveType)
	if err != nil {
		return storage.LeaveBalance{}, err
	}
	year := req.Year
	if year == 0 {
		year = time.Now().UTC().Year()
	}
	return storage.LeaveBalance{
		EmployeeID:     req.EmployeeID,
		Year:           year,
		LeaveType:      leaveType,
		TotalAllocated: req.TotalAllocated,
		Available:      req.TotalAllocated,
	}, nil
}

func handleUpsertBalance(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req balanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		b, err := req.toBalance()
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid leave type %q", req.LeaveType)
			return
		}
		saved, err := deps.Store.UpsertBalance(b)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving balance: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

// handleBulkBalances allocates the same set of balances to every active user,
// typically at the start of a leave year.
func handleBulkBalances(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Year       int            `json:"year"`
			Allocation map[string]int `json:"allocation"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Allocation) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "allocation is required")
			return
		}
		if req.Year == 0 {
			req.Year = time.Now().UTC().Year()
		}

		users, err := deps.Store.ListUsers()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing users: %v", err)
			return
		}

		created := 0
		for _, u := range users {
			if !u.IsActive {
				continue
			}
			for typeName, days := range req.Allocation {
				leaveType, err := storage.ParseLeaveType(typeName)
				if err != nil {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid leave type %q", typeName)
					return
				}
				_, err = deps.Store.UpsertBalance(storage.LeaveBalance{
					EmployeeID:     u.ID,
					Year:           req.Year,
					LeaveType:      leaveType,
					TotalAllocated: days,
					Available:      days,
				})
				if err != nil {
					httpError(w, http.StatusInternalServerError, "api_error", "saving balance for user %d: %v", u.ID, err)
					return
				}
				created++
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"created": created})
	}
}
