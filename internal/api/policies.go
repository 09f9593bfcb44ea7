package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kalambet/leaveflow/internal/ingest"
	"github.com/kalambet/leaveflow/internal/policy"
	"github.com/kalambet/leaveflow/internal/retrieval"
	"github.com/kalambet/leaveflow/internal/storage"
)

func handleUploadPolicy(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxPolicyUploadSize)
		if err := r.ParseMultipartForm(maxPolicyUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading file: %v", err)
			return
		}

		text, err := policy.ExtractText(header.Filename, data)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "extracting text: %v", err)
			return
		}

		policyType := strings.ToUpper(r.FormValue("policy_type"))
		saved, err := deps.Store.CreatePolicy(storage.Policy{
			Filename:      header.Filename,
			FileType:      strings.TrimPrefix(filepath.Ext(header.Filename), "."),
			UploadedBy:    currentUser(r).ID,
			IsActive:      true,
			ExtractedText: text,
			PolicyType:    policyType,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving policy: %v", err)
			return
		}

		job, err := ingest.NewEmbedJob(saved.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating embed job: %v", err)
			return
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "enqueueing embed job: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func handleListPolicies(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policies, err := deps.Store.ListPolicies()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing policies: %v", err)
			return
		}
		if policies == nil {
			policies = []storage.Policy{}
		}
		writeJSON(w, http.StatusOK, policies)
	}
}

func handleDeletePolicy(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid policy id")
			return
		}
		if deps.Vectors != nil {
			if err := deps.Vectors.DeleteByPolicy(id); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "removing policy chunks: %v", err)
				return
			}
		}
		err = deps.Store.DeletePolicy(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "policy not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting policy: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

type policyQueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func handleQueryPolicies(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Retriever == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "policy search is not configured")
			return
		}
		var req policyQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		topK := req.TopK
		if topK <= 0 {
			topK = 5
		}
		if topK > 20 {
			topK = 20
		}
		chunks, err := deps.Retriever.Retrieve(r.Context(), req.Query, topK)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "searching policies: %v", err)
			return
		}
		if chunks == nil {
			chunks = []retrieval.PolicyChunk{}
		}
		writeJSON(w, http.StatusOK, chunks)
	}
}

type complianceRequest struct {
	LeaveType string `json:"leave_type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func handleCheckCompliance(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req complianceRequest
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
			if end, err = storage.ParseDate(req.EndDate); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid end_date: %v", err)
				return
			}
		}

		if deps.Checker == nil {
			writeJSON(w, http.StatusOK, policy.Result{
				Compliant: true,
				Warnings:  []string{"Compliance checking is not configured."},
			})
			return
		}

		result, err := deps.Checker.Check(r.Context(), policy.Request{
			LeaveType: leaveType,
			StartDate: start,
			EndDate:   end,
			Today:     storage.Today(),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "checking compliance: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
