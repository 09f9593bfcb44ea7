package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/leaveflow/internal/api"
	"github.com/kalambet/leaveflow/internal/auth"
	"github.com/kalambet/leaveflow/internal/config"
	"github.com/kalambet/leaveflow/internal/conversation"
	"github.com/kalambet/leaveflow/internal/ingest"
	"github.com/kalambet/leaveflow/internal/intent"
	"github.com/kalambet/leaveflow/internal/llm"
	"github.com/kalambet/leaveflow/internal/policy"
	"github.com/kalambet/leaveflow/internal/retrieval"
	"github.com/kalambet/leaveflow/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the leaveflow server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running leaveflow server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show leaveflow system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "leaveflow.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// fallbackParser extracts intents without an LLM. Used when no API key is
// configured so the server still answers deterministically.
type fallbackParser struct{}

func (fallbackParser) Extract(ctx context.Context, message string, history []llm.Message, user intent.UserContext) intent.Intent {
	return intent.ParseFallback(message, history, user.Today)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "leaveflow version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start twice. The health probe catches stale PID files.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("leaveflow is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("leaveflow is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)

	// Build the conversation stack. Without an API key the server falls back
	// to deterministic intent parsing and skips embeddings and compliance.
	var (
		parser      conversation.IntentParser = fallbackParser{}
		chatter     conversation.Chatter
		checker     *policy.Checker
		retriever   *retrieval.Retriever
		vectorStore *retrieval.SQLiteStore
		embedder    *retrieval.Embedder
	)
	vectorStore = retrieval.NewSQLiteStore(store.DB())
	if cfg.LLM.APIKey != "" {
		client := llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL)
		parser = intent.NewExtractor(client, cfg.LLM.ChatModel)
		chatter = client
		embedder = retrieval.NewEmbedder(client, cfg.LLM.EmbedModel)
		retriever = retrieval.NewRetriever(embedder, vectorStore)
		checker = policy.NewChecker(retriever, client, cfg.LLM.ChatModel)
	} else {
		slog.Warn("no LLM API key configured; using deterministic intent parsing, policy search disabled")
	}

	convo := conversation.NewService(store, parser, checkerOrNil(checker), chatter, cfg.LLM.ChatModel)

	deps := api.AppDeps{
		Store:        store,
		Tokens:       tokens,
		Conversation: convo,
		Vectors:      vectorStore,
	}
	if retriever != nil {
		deps.Retriever = retriever
	}
	if checker != nil {
		deps.Checker = checker
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewAppHandler(deps),
	}

	// Policy embedding worker. Without an embedder, uploads stay PENDING
	// until the server is restarted with an API key.
	if embedder != nil {
		worker := ingest.NewWorker(store, embedder, vectorStore, 500*time.Millisecond)
		go worker.Run(ctx)
	}

	// MCP server over stdio for external agents.
	mcpDeps := api.MCPDeps{Store: store}
	if retriever != nil {
		mcpDeps.Retriever = retriever
	}
	if checker != nil {
		mcpDeps.Checker = checker
	}
	stdioSrv := server.NewStdioServer(api.NewMCPServer(mcpDeps))
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "leaveflow listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// checkerOrNil avoids a non-nil interface wrapping a nil pointer.
func checkerOrNil(c *policy.Checker) conversation.ComplianceChecker {
	if c == nil {
		return nil
	}
	return c
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("leaveflow is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop leaveflow (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to leaveflow (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.LLM.APIKey != "" {
		printStatus("LLM", "configured (%s)", cfg.LLM.BaseURL)
		printStatus("Chat model", "%s", cfg.LLM.ChatModel)
		printStatus("Embed model", "%s", cfg.LLM.EmbedModel)
	} else {
		printStatus("LLM", "not configured (deterministic parsing)")
	}

	if _, err := readTokenFile(); err == nil {
		printStatus("Session", "logged in")
	} else {
		printStatus("Session", "not logged in")
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
