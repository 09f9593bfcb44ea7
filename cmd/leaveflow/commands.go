package main

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/leaveflow/internal/config"
	"github.com/kalambet/leaveflow/internal/storage"
)

var cmdCtx = context.Background()

// --- login / logout / whoami ---

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and cache an access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]

		fmt.Fprint(os.Stderr, "Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := &apiClient{
			baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
			httpClient: &http.Client{Timeout: 30 * time.Second},
		}

		resp, err := client.post(cmdCtx, "/auth/login", map[string]string{
			"username": username,
			"password": string(password),
		})
		if err != nil {
			return err
		}

		var token struct {
			AccessToken string `json:"access_token"`
		}
		if err := decodeJSON(resp, &token); err != nil {
			return err
		}
		if err := writeTokenFile(token.AccessToken); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}

		printSuccess("Logged in as %s", username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the cached access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		removeTokenFile()
		printSuccess("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmdCtx, "/auth/me")
		if err != nil {
			return err
		}

		var user storage.User
		if err := decodeJSON(resp, &user); err != nil {
			return err
		}

		printStatus("User", "%s (%s)", user.FullName, user.Username)
		printStatus("Role", "%s", user.Role)
		printStatus("Department", "%s", user.Department)
		printStatus("Position", "%s", user.Position)
		return nil
	},
}

// --- leaves / balance ---

var leavesCmd = &cobra.Command{
	Use:   "leaves",
	Short: "List your leave requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/employees/leaves"
		if status != "" {
			path += "?status=" + status
		}
		resp, err := client.get(cmdCtx, path)
		if err != nil {
			return err
		}

		var leaves []storage.Leave
		if err := decodeJSON(resp, &leaves); err != nil {
			return err
		}

		if len(leaves) == 0 {
			fmt.Println("No leave requests found.")
			return nil
		}
		for _, l := range leaves {
			printLeaveRow(l)
		}
		return nil
	},
}

func printLeaveRow(l storage.Leave) {
	statusColor := colorYellow
	switch l.Status {
	case storage.StatusApproved:
		statusColor = colorGreen
	case storage.StatusRejected, storage.StatusCancelled:
		statusColor = colorRed
	}
	fmt.Printf("#%-4d %-10s %s to %s (%d days)  %s\n",
		l.ID, l.LeaveType, l.StartDate, l.EndDate, l.Duration(),
		colorize(statusColor, string(l.Status)))
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show your leave balances for the current year",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmdCtx, "/employees/leave-balances")
		if err != nil {
			return err
		}

		var balances []storage.LeaveBalance
		if err := decodeJSON(resp, &balances); err != nil {
			return err
		}

		if len(balances) == 0 {
			fmt.Println("No balances allocated yet.")
			return nil
		}
		for _, b := range balances {
			fmt.Printf("%-10s %2d of %2d days available (%d used)\n",
				b.LeaveType, b.Available, b.TotalAllocated, b.Used)
		}
		return nil
	},
}

// --- manager commands ---

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending leave requests on your team",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmdCtx, "/managers/pending-leaves")
		if err != nil {
			return err
		}

		var leaves []storage.Leave
		if err := decodeJSON(resp, &leaves); err != nil {
			return err
		}

		if len(leaves) == 0 {
			fmt.Println("No pending requests.")
			return nil
		}
		for _, l := range leaves {
			printLeaveRow(l)
		}
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending leave request",
	Args:  cobra.ExactArgs(1),
	RunE:  decideRunE("approve"),
}

var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending leave request",
	Args:  cobra.ExactArgs(1),
	RunE:  decideRunE("reject"),
}

func decideRunE(action string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		comments, _ := cmd.Flags().GetString("comments")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/managers/leaves/%s/%s", args[0], action)
		resp, err := client.post(cmdCtx, path, map[string]string{"comments": comments})
		if err != nil {
			return err
		}

		var leave storage.Leave
		if err := decodeJSON(resp, &leave); err != nil {
			return err
		}

		printSuccess("Request #%d is now %s", leave.ID, leave.Status)
		return nil
	}
}

func init() {
	leavesCmd.Flags().String("status", "", "filter by status (PENDING, APPROVED, REJECTED, CANCELLED)")
	approveCmd.Flags().String("comments", "", "manager comments")
	rejectCmd.Flags().String("comments", "", "manager comments")
}

// --- policy ---

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage company leave policies",
}

var policyUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a policy document (PDF, TXT, or MD)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policyType, _ := cmd.Flags().GetString("type")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
		if policyType != "" {
			mw.WriteField("policy_type", policyType)
		}
		mw.Close()

		req, err := http.NewRequestWithContext(cmdCtx, "POST", client.baseURL+"/policies", &buf)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+client.token)

		resp, err := client.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("server not reachable; is leaveflow running? (%w)", err)
		}

		var saved storage.Policy
		if err := decodeJSON(resp, &saved); err != nil {
			return err
		}

		printSuccess("Uploaded %s (version %d); embedding queued", saved.Filename, saved.Version)
		return nil
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded policy documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmdCtx, "/policies")
		if err != nil {
			return err
		}

		var policies []storage.Policy
		if err := decodeJSON(resp, &policies); err != nil {
			return err
		}

		if len(policies) == 0 {
			fmt.Println("No policies uploaded.")
			return nil
		}
		for _, p := range policies {
			fmt.Printf("#%-3d %-30s v%d  %s  %s\n",
				p.ID, p.Filename, p.Version, p.EmbeddingStatus, p.UploadDate.Format("2006-01-02"))
		}
		return nil
	},
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a policy document and its index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmdCtx, "/policies/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Policy %s deleted", args[0])
		return nil
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <leave-type> <start-date> [end-date]",
	Short: "Check a proposed leave against company policy",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{
			"leave_type": args[0],
			"start_date": args[1],
		}
		if len(args) == 3 {
			body["end_date"] = args[2]
		}

		resp, err := client.post(cmdCtx, "/policies/check-compliance", body)
		if err != nil {
			return err
		}

		var result struct {
			Compliant        bool     `json:"compliant"`
			Violations       []string `json:"violations"`
			Warnings         []string `json:"warnings"`
			RelevantPolicies []string `json:"relevant_policies"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printComplianceBadge(result.Compliant, result.Violations, result.Warnings)
		for _, p := range result.RelevantPolicies {
			printStatus("Policy", "%s", p)
		}
		return nil
	},
}

func printComplianceBadge(compliant bool, violations, warnings []string) {
	if compliant {
		fmt.Println(colorize(colorGreen, "✓ COMPLIANT"))
	} else {
		fmt.Println(colorize(colorRed, "✗ NON-COMPLIANT"))
	}
	for _, v := range violations {
		fmt.Printf("  %s %s\n", colorize(colorRed, "✗"), v)
	}
	for _, w := range warnings {
		fmt.Printf("  %s %s\n", colorize(colorYellow, "⚠"), w)
	}
}

var policyQueryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Semantic search over the policy corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		resp, err := client.post(cmdCtx, "/policies/query", map[string]any{
			"query": query,
			"top_k": limit,
		})
		if err != nil {
			return err
		}

		var results []struct {
			SectionTitle string  `json:"section_title"`
			Text         string  `json:"text"`
			Score        float32 `json:"score"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No matching policy text found.")
			return nil
		}
		for i, r := range results {
			fmt.Printf("\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Score)
			if r.SectionTitle != "" {
				fmt.Printf("  Section: %s\n", r.SectionTitle)
			}
			text := r.Text
			if len(text) > 500 {
				text = text[:500] + "..."
			}
			fmt.Printf("  %s\n", text)
		}
		return nil
	},
}

func init() {
	policyUploadCmd.Flags().String("type", "", "policy type label (e.g. SICK, ANNUAL)")
	policyQueryCmd.Flags().Int("limit", 5, "maximum number of results")
	policyCmd.AddCommand(policyUploadCmd)
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyDeleteCmd)
	policyCmd.AddCommand(policyCheckCmd)
	policyCmd.AddCommand(policyQueryCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and modify configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, info := range config.ShowAll(cfg) {
			fmt.Printf("%-26s %-34s %s\n", info.Key, info.Value, colorize(colorCyan, info.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List valid config keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Println(k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
}
