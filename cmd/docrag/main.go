package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/command"
	"github.com/xxxsen/docrag/internal/config"
)

type globalFlags struct {
	configPath string
	quiet      bool
}

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "docrag",
		Short:         "ingest documentation and answer questions about it",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.json or config.yaml")
	rootCmd.PersistentFlags().BoolVar(&flags.quiet, "quiet", false, "only log warnings and errors")

	var prune bool
	ingestCmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "load, split, embed and store documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, command.IngestCommand{Paths: args, Prune: prune})
		},
	}
	ingestCmd.Flags().BoolVar(&prune, "prune", false, "remove records of edited and deleted files")

	search := command.SearchCommand{}
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "print the stored segments most relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			search.Query = strings.Join(args, " ")
			return run(cmd, flags, search)
		},
	}
	searchCmd.Flags().IntVar(&search.Limit, "limit", 5, "max results")
	searchCmd.Flags().Float64Var(&search.MinScore, "min-score", 0.6, "minimum relevance score in [0, 1]")
	searchCmd.Flags().StringVar(&search.Format, "format", command.FormatText, "output format: text or json")

	chatCmd := &cobra.Command{
		Use:   "chat <question>",
		Short: "answer a question from the stored documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, command.ChatCommand{Question: strings.Join(args, " ")})
		},
	}

	var force bool
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "delete every stored record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, command.ResetCommand{Force: force})
		},
	}
	resetCmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")

	stats := command.StatsCommand{}
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "print record counts per source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, stats)
		},
	}
	statsCmd.Flags().StringVar(&stats.Format, "format", command.FormatText, "output format: text or json")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the http api and scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, command.ServeCommand{})
		},
	}

	rootCmd.AddCommand(ingestCmd, searchCmd, chatCmd, resetCmd, statsCmd, serveCmd)
	return rootCmd
}

func run(cmd *cobra.Command, flags *globalFlags, c command.Command) error {
	if err := c.Validate(); err != nil {
		return err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.quiet {
		cfg.LogConfig.Level = "warn"
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Debug("config loaded", zap.String("config", flags.configPath))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	d := command.NewDispatcher(a.rag, cmd.OutOrStdout(),
		command.WithInput(cmd.InOrStdin()),
		command.WithTable(cfg.VectorStore.Table),
		command.WithServe(a.serve),
	)
	return d.Dispatch(ctx, c)
}
