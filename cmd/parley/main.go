package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"parley/internal/agent"
	"parley/internal/completion"
	"parley/internal/config"
	"parley/internal/contextstore"
	"parley/internal/logging"
	"parley/internal/repl"
	"parley/internal/sandbox"
	"parley/internal/session"
)

// Version is stamped by the build.
var Version = "dev"

var (
	verbose   bool
	agentsDir string
	provider  string
	model     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "parley - recursive retrieval query engine over analyzed meeting records",
	Long: `parley loads independently-analyzed meeting records ("agents") and answers
natural-language questions that require synthesizing across them.

Questions are turned into analysis code by a language model, executed in a
sandboxed interpreter against the loaded records, and the results are folded
back into a structured memory that persists across questions in a session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question across all loaded agents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents found in the agents directory",
	RunE:  runAgents,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("parley %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&agentsDir, "agents-dir", "", "directory of agent JSON/YAML files (overrides config)")
	askCmd.Flags().StringVar(&provider, "provider", "", "completion provider: anthropic or gemini (overrides config)")
	askCmd.Flags().StringVar(&model, "model", "", "model name (overrides config)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadAgentsDir(dir string) ([]agent.Agent, error) {
	return agent.LoadDir(dir)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if agentsDir != "" {
		cfg.AgentsDir = agentsDir
	}
	if provider != "" {
		cfg.Provider = provider
	}
	if model != "" {
		cfg.Model = model
	}
	return cfg, nil
}

func buildService(ctx context.Context, cfg config.Config) (completion.Service, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "gemini":
		return completion.NewGeminiClient(ctx, completion.GeminiConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
	default:
		return completion.NewAnthropicClient(completion.AnthropicConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
	}
}

func buildController(cfg config.Config) *repl.Controller {
	sandboxCfg := sandbox.DefaultConfig()
	sandboxCfg.ReadyTimeout = cfg.ReadyTimeout
	sandboxCfg.ExecTimeout = cfg.ExecTimeout
	return repl.New(
		repl.Config{ExecTimeout: cfg.ExecTimeout},
		func() repl.Environment { return sandbox.New(sandboxCfg) },
	)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	agents, err := loadAgentsDir(cfg.AgentsDir)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return fmt.Errorf("no agents found in %s", cfg.AgentsDir)
	}

	svc, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}

	sess := session.New(session.Config{
		TokenBudget:   cfg.TokenBudget,
		ExecTimeout:   cfg.ExecTimeout,
		MaxSubQueries: cfg.MaxSubQueries,
	}, svc, buildController(cfg))
	defer sess.Close()

	sess.LoadAgents(agents)

	if cfg.TokenEncoding != "" {
		est, err := contextstore.NewTiktokenEstimator(cfg.TokenEncoding)
		if err != nil {
			return fmt.Errorf("token encoding %s: %w", cfg.TokenEncoding, err)
		}
		sess.Context.SetEstimator(est)
	}

	query := ""
	for i, a := range args {
		if i > 0 {
			query += " "
		}
		query += a
	}

	ans, err := sess.Ask(ctx, query)
	if err != nil {
		return err
	}

	fmt.Println(ans.Text)
	if verbose {
		fmt.Fprintf(os.Stderr, "\n[tokens: %d prompt, %d completion; sub-queries: %d; memory slices: %d]\n",
			ans.Usage.PromptTokens, ans.Usage.CompletionTokens, ans.SubQueriesResolved, ans.SlicesStored)
		fmt.Fprintf(os.Stderr, "[context: %d agent(s) included, %d skipped, %d tokens, %d budget remaining]\n",
			len(ans.ContextIncluded), len(ans.ContextSkipped), ans.ContextTokens, ans.ContextRemaining)
	}
	return nil
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	agents, err := loadAgentsDir(cfg.AgentsDir)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Printf("No agents found in %s\n", cfg.AgentsDir)
		return nil
	}

	for _, a := range agents {
		status := "enabled"
		if !a.Enabled {
			status = "disabled"
		}
		line := fmt.Sprintf("%-10s %s", status, a.Name())
		if a.Date != "" {
			line += fmt.Sprintf("  (%s)", a.Date)
		}
		fmt.Println(line)
	}
	return nil
}
