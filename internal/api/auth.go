package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kalambet/leaveflow/internal/auth"
	"github.com/kalambet/leaveflow/internal/storage"
)

type contextKey string

const userContextKey contextKey = "user"

// BearerAuth verifies the Authorization header and loads the authenticated
// user into the request context.
func BearerAuth(deps AppDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			username, err := deps.Tokens.Verify(header[len(prefix):])
			if err != nil {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or expired token")
				return
			}
			user, err := deps.Store.GetUserByUsername(username)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "unknown user")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "loading user: %v", err)
				return
			}
			if !user.IsActive {
				httpError(w, http.StatusForbidden, "permission_error", "account is deactivated")
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey, &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func currentUser(r *http.Request) *storage.User {
	u, _ := r.Context().Value(userContextKey).(*storage.User)
	return u
}

// RequireManager gates routes to managers and HR.
func RequireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := currentUser(r); u == nil || !u.Role.IsManager() {
			httpError(w, http.StatusForbidden, "permission_error", "manager role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireHR gates routes to HR only.
func RequireHR(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := currentUser(r); u == nil || u.Role != storage.RoleHR {
			httpError(w, http.StatusForbidden, "permission_error", "HR role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type registerRequest struct {
	Email      string `json:"email"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	Password   string `json:"password"`
	Department string `json:"department"`
	Position   string `json:"position"`
}

func handleRegister(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Email == "" || req.Username == "" || req.Password == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "email, username and password are required")
			return
		}
		if _, err := deps.Store.GetUserByUsername(req.Username); err == nil {
			httpError(w, http.StatusConflict, "invalid_request_error", "username already registered")
			return
		}
		if _, err := deps.Store.GetUserByEmail(req.Email); err == nil {
			httpError(w, http.StatusConflict, "invalid_request_error", "email already registered")
			return
		}

		hashed, err := auth.HashPassword(req.Password)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "hashing password: %v", err)
			return
		}

		// New hires report to the default HR manager until reassigned.
		managerID, err := deps.Store.DefaultHRManagerID()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resolving default manager: %v", err)
			return
		}

		user, err := deps.Store.CreateUser(storage.User{
			Email:          req.Email,
			Username:       req.Username,
			FullName:       req.FullName,
			HashedPassword: hashed,
			Role:           storage.RoleEmployee,
			Department:     req.Department,
			Position:       req.Position,
			ManagerID:      managerID,
			IsActive:       true,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating user: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func handleLogin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		user, err := deps.Store.GetUserByUsername(req.Username)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && !auth.VerifyPassword(req.Password, user.HashedPassword)) {
			httpError(w, http.StatusUnauthorized, "authentication_error", "incorrect username or password")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading user: %v", err)
			return
		}
		if !user.IsActive {
			httpError(w, http.StatusForbidden, "permission_error", "account is deactivated")
			return
		}

		token, err := deps.Tokens.Issue(user.Username)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "issuing token: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
	}
}

func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, currentUser(r))
	}
}
