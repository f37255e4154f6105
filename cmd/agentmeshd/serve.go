package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmesh/core/internal/config"
	"github.com/agentmesh/core/internal/facade"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	var llmBaseURL string
	var llmAPIKeyEnv string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load a config file and run the node until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, llmBaseURL, llmAPIKeyEnv)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "agentmesh.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&llmBaseURL, "llm-base-url", "http://localhost:11434", "base URL of an OpenAI-compatible chat completions endpoint")
	cmd.Flags().StringVar(&llmAPIKeyEnv, "llm-api-key-env", "AGENTMESH_LLM_API_KEY", "environment variable holding the LLM provider API key, if any")
	return cmd
}

// runServe mirrors the teacher's handlers_serve.go runServe: config load,
// composition-root construction, signal-driven run loop, graceful stop
// under a bounded shutdown timeout.
func runServe(ctx context.Context, configPath, llmBaseURL, llmAPIKeyEnv string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}

	baseURL := llmBaseURL
	if cfg.LLM.DefaultBaseURL != "" {
		baseURL = cfg.LLM.DefaultBaseURL
	}
	llm := newHTTPLLMClient(baseURL, envOrEmpty(llmAPIKeyEnv))

	logger := slog.Default()
	f, err := facade.FromConfig(ctx, cfg, llm, logger)
	if err != nil {
		return fmt.Errorf("serve: build facade: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := f.Run(ctx); err != nil {
		return fmt.Errorf("serve: start facade: %w", err)
	}
	logger.Info("agentmesh node started", "org", f.Organization().ID, "agents", len(f.Organization().Agents))

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("serve: stop facade: %w", err)
	}
	if err := facade.ShutdownObservability(shutdownCtx); err != nil {
		logger.Warn("failed to shut down observability cleanly", "error", err)
	}

	logger.Info("agentmesh node stopped")
	return nil
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
