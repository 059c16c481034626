package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/arq-village/internal/config"
	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/logger"
	"github.com/jwebster45206/arq-village/internal/services"
)

var (
	inferTier   string
	inferSystem string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe Ollama and the hosted key and print the router state",
	Long: `Probe the provider chain the way the API and worker do at startup.

Uses the same environment (.env, OLLAMA_URL, OLLAMA_MODEL, ANTHROPIC_API_KEY, ...)
and prints the resulting state as JSON.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

var inferCmd = &cobra.Command{
	Use:   "infer <prompt>",
	Short: "Run one prompt through the provider chain",
	Long: `Run one prompt through local -> haiku -> sonnet -> fallback and print
which provider answered. Every attempt is listed so a misconfigured tier is
easy to spot.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfer,
}

func init() {
	inferCmd.Flags().StringVarP(&inferTier, "tier", "t", string(inference.TierChat), "Tier budget: fast, chat or task")
	inferCmd.Flags().StringVarP(&inferSystem, "system", "s", "You are Arq, a friendly villager. Answer in one or two sentences.", "System prompt")
}

func cliLogger(cfg *config.Config) *slog.Logger {
	if !verbose {
		return logger.Discard()
	}
	cfg.LogLevel = slog.LevelDebug
	return logger.Setup(cfg)
}

func newRouter(cfg *config.Config, log *slog.Logger) *inference.Router {
	return inference.NewRouter(
		services.NewOllamaService(cfg.OllamaURL, log),
		services.NewAnthropicService(cfg.AnthropicAPIKey, log),
		inference.Config{
			LocalModel:   cfg.OllamaModel,
			LocalFamily:  cfg.OllamaModelFamily,
			FastModel:    cfg.AnthropicFastModel,
			QualityModel: cfg.AnthropicQualityModel,
		},
		log,
	)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	router := newRouter(cfg, cliLogger(cfg))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	st := router.Init(ctx)

	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func runInfer(cmd *cobra.Command, args []string) error {
	tier, err := inference.ParseTier(inferTier)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	router := newRouter(cfg, cliLogger(cfg))
	return infer(cmd, router, tier, strings.Join(args, " "))
}

// infer runs one prompt and prints each attempt followed by the answer.
func infer(cmd *cobra.Command, router *inference.Router, tier inference.Tier, prompt string) error {
	out := cmd.OutOrStdout()
	remove := router.OnAttempt(func(_ context.Context, a inference.Attempt) {
		line := fmt.Sprintf("  %-8s %-12s", a.Source, a.Outcome)
		if a.Model != "" {
			line += " " + a.Model
		}
		if a.Duration > 0 {
			line += fmt.Sprintf(" (%dms)", a.Duration.Milliseconds())
		}
		if a.Err != nil {
			line += " error: " + a.Err.Error()
		}
		fmt.Fprintln(out, line)
	})
	defer remove()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	fmt.Fprintf(out, "Attempts (%s tier):\n", tier)
	result := router.Infer(ctx, inferSystem, prompt, tier)
	fmt.Fprintln(out)

	if !result.OK() {
		return fmt.Errorf("no provider answered")
	}
	fmt.Fprintf(out, "[%s] %s\n", result.Source, result.Response)
	return nil
}
