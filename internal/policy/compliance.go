package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/kalambet/leaveflow/internal/llm"
	"github.com/kalambet/leaveflow/internal/retrieval"
	"github.com/kalambet/leaveflow/internal/storage"
)

const probeTopK = 3

// ChunkRetriever is the policy search interface the Checker depends on.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.PolicyChunk, error)
}

// Chatter is the chat completion interface used for compliance analysis.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message, jsonMode bool) (string, error)
}

// Request describes a leave request to validate against policy.
type Request struct {
	LeaveType storage.LeaveType
	StartDate storage.Date
	EndDate   storage.Date
	Today     storage.Date
}

// Result is the outcome of a compliance check. Violations block approval;
// warnings are advisory.
type Result struct {
	Compliant        bool     `json:"compliant"`
	Violations       []string `json:"violations"`
	Warnings         []string `json:"warnings"`
	RelevantPolicies []string `json:"relevant_policies"`
}

// Checker validates leave requests against the ingested policy corpus.
type Checker struct {
	retriever ChunkRetriever
	chatter   Chatter
	model     string
}

// NewChecker creates a Checker. chatter may be nil, in which case only the
// deterministic rule checks run.
func NewChecker(retriever ChunkRetriever, chatter Chatter, model string) *Checker {
	return &Checker{retriever: retriever, chatter: chatter, model: model}
}

// Check retrieves policy text relevant to the request and evaluates it.
// A missing or empty policy corpus yields a compliant result with a warning.
func (c *Checker) Check(ctx context.Context, req Request) (Result, error) {
	chunks, err := c.probe(ctx, req.LeaveType)
	if err != nil {
		return Result{}, err
	}

	if len(chunks) == 0 {
		return Result{
			Compliant: true,
			Warnings:  []string{"No policy documents found; request not validated against company policy."},
		}, nil
	}

	if c.chatter != nil {
		result, err := c.analyze(ctx, req, chunks)
		if err == nil {
			return result, nil
		}
		slog.Warn("llm compliance analysis failed, using rule checks", "error", err)
	}

	return ruleCheck(req, chunks), nil
}

// probe runs the standard policy queries for a leave type and dedupes results.
func (c *Checker) probe(ctx context.Context, leaveType storage.LeaveType) ([]retrieval.PolicyChunk, error) {
	lt := strings.ToLower(string(leaveType))
	queries := []string{
		fmt.Sprintf("%s leave policy", lt),
		fmt.Sprintf("notice period for %s leave", lt),
		fmt.Sprintf("maximum duration %s leave", lt),
		fmt.Sprintf("approval requirements %s leave", lt),
	}

	seen := make(map[string]bool)
	var chunks []retrieval.PolicyChunk
	for _, q := range queries {
		found, err := c.retriever.Retrieve(ctx, q, probeTopK)
		if err != nil {
			return nil, fmt.Errorf("retrieving policy text: %w", err)
		}
		for _, ch := range found {
			if !seen[ch.ID] {
				seen[ch.ID] = true
				chunks = append(chunks, ch)
			}
		}
	}
	return chunks, nil
}

const analysisPrompt = `You are a leave policy compliance checker. Given policy excerpts and a leave request, decide whether the request complies. Your output must be ONLY a single valid JSON object with fields:
- "compliant": boolean
- "violations": array of strings, rules the request breaks (blocking)
- "warnings": array of strings, advisory notes

Only report violations that the excerpts clearly support. If the excerpts do not cover the request, return compliant with no violations.`

func (c *Checker) analyze(ctx context.Context, req Request, chunks []retrieval.PolicyChunk) (Result, error) {
	var sb strings.Builder
	sb.WriteString("Policy excerpts:\n")
	for _, ch := range chunks {
		if ch.SectionTitle != "" {
			fmt.Fprintf(&sb, "\n[%s]\n", ch.SectionTitle)
		}
		sb.WriteString(ch.Text)
		sb.WriteString("\n")
	}
	days := req.StartDate.InclusiveDays(req.EndDate)
	notice := req.Today.DaysUntil(req.StartDate)
	fmt.Fprintf(&sb, "\nLeave request: type %s, from %s to %s (%d days), submitted %d days before start.",
		req.LeaveType, req.StartDate, req.EndDate, days, notice)

	raw, err := c.chatter.Chat(ctx, c.model, []llm.Message{
		{Role: "system", Content: analysisPrompt},
		{Role: "user", Content: sb.String()},
	}, true)
	if err != nil {
		return Result{}, err
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, fmt.Errorf("decoding compliance response: %w", err)
	}
	if len(result.Violations) > 0 {
		result.Compliant = false
	}
	result.RelevantPolicies = sectionTitles(chunks)
	return result, nil
}

var (
	noticeRE      = regexp.MustCompile(`(\d+)\s+(?:calendar\s+|working\s+)?days?'?\s+(?:advance\s+)?notice`)
	maxDurationRE = regexp.MustCompile(`maximum\s+(?:of\s+)?(\d+)\s+(?:consecutive\s+)?days`)
)

// ruleCheck applies deterministic notice-period and max-duration rules
// extracted from the policy text.
func ruleCheck(req Request, chunks []retrieval.PolicyChunk) Result {
	result := Result{Compliant: true, RelevantPolicies: sectionTitles(chunks)}

	days := req.StartDate.InclusiveDays(req.EndDate)
	notice := req.Today.DaysUntil(req.StartDate)

	for _, ch := range chunks {
		lower := strings.ToLower(ch.Text)

		if m := noticeRE.FindStringSubmatch(lower); m != nil {
			required, _ := strconv.Atoi(m[1])
			if notice < required {
				result.Violations = append(result.Violations,
					fmt.Sprintf("Requires %d days advance notice; request gives %d.", required, notice))
			}
		}
		if m := maxDurationRE.FindStringSubmatch(lower); m != nil {
			maxDays, _ := strconv.Atoi(m[1])
			if days > maxDays {
				result.Violations = append(result.Violations,
					fmt.Sprintf("Exceeds maximum duration of %d days (requested %d).", maxDays, days))
			}
		}
	}

	if len(result.Violations) > 0 {
		result.Compliant = false
	}
	return result
}

func sectionTitles(chunks []retrieval.PolicyChunk) []string {
	seen := make(map[string]bool)
	var titles []string
	for _, ch := range chunks {
		if ch.SectionTitle != "" && !seen[ch.SectionTitle] {
			seen[ch.SectionTitle] = true
			titles = append(titles, ch.SectionTitle)
		}
	}
	return titles
}
