package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/leaveflow/internal/auth"
	"github.com/kalambet/leaveflow/internal/conversation"
	"github.com/kalambet/leaveflow/internal/policy"
	"github.com/kalambet/leaveflow/internal/retrieval"
	"github.com/kalambet/leaveflow/internal/storage"
)

const maxRequestBodySize = 1 << 20   // 1MB
const maxPolicyUploadSize = 10 << 20 // 10MB

// PolicyRetriever abstracts semantic policy search for the API layer.
type PolicyRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.PolicyChunk, error)
}

// ComplianceChecker validates a leave request against the policy corpus.
type ComplianceChecker interface {
	Check(ctx context.Context, req policy.Request) (policy.Result, error)
}

// ChunkDeleter removes a policy's chunks from the vector store.
type ChunkDeleter interface {
	DeleteByPolicy(policyID int64) error
}

type AppDeps struct {
	Store        *storage.Store
	Tokens       *auth.TokenIssuer
	Conversation *conversation.Service
	Retriever    PolicyRetriever   // optional; if nil, policy query returns an error
	Checker      ComplianceChecker // optional; if nil, compliance endpoint degrades to compliant
	Vectors      ChunkDeleter      // optional; if nil, vector cleanup is skipped on delete
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/auth/register", handleRegister(deps))
	r.Post("/auth/login", handleLogin(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps))

		r.Get("/auth/me", handleMe())
		r.Post("/conversation", handleConversation(deps))

		r.Post("/employees/leaves", handleCreateLeave(deps))
		r.Get("/employees/leaves", handleListOwnLeaves(deps))
		r.Get("/employees/leaves/{id}", handleGetLeave(deps))
		r.Delete("/employees/leaves/{id}", handleCancelLeave(deps))
		r.Get("/employees/leave-balances", handleOwnBalances(deps))

		r.Group(func(r chi.Router) {
			r.Use(RequireManager)

			r.Get("/managers/pending-leaves", handlePendingLeaves(deps))
			r.Post("/managers/leaves/{id}/approve", handleDecideLeave(deps, storage.StatusApproved))
			r.Post("/managers/leaves/{id}/reject", handleDecideLeave(deps, storage.StatusRejected))
			r.Get("/managers/team-overview", handleTeamOverview(deps))
			r.Get("/managers/team-calendar", handleTeamCalendar(deps))
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireHR)

			r.Get("/hr/users", handleListUsers(deps))
			r.Patch("/hr/users/{id}/role", handleUpdateRole(deps))
			r.Patch("/hr/users/{id}/manager", handleUpdateManager(deps))
			r.Patch("/hr/users/{id}/activate", handleSetActive(deps))
			r.Get("/hr/leave-balances", handleListBalances(deps))
			r.Post("/hr/leave-balances", handleUpsertBalance(deps))
			r.Post("/hr/leave-balances/bulk", handleBulkBalances(deps))

			r.Post("/policies", handleUploadPolicy(deps))
			r.Get("/policies", handleListPolicies(deps))
			r.Delete("/policies/{id}", handleDeletePolicy(deps))
		})

		r.Post("/policies/query", handleQueryPolicies(deps))
		r.Post("/policies/check-compliance", handleCheckCompliance(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
