package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	verbose  bool
	provider string
	model    string
}

func (o *rootOptions) logLevel() slog.Level {
	if o.verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// newLogger returns a text or JSON logger at the level chosen by --verbose.
func (o *rootOptions) newLogger(w io.Writer, json bool) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: o.logLevel()}
	if json {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "scanhelper",
		Short: "Homework helper that streams step-by-step solutions for photographed problems",
		Long: `Scanhelper crops a photographed homework problem and asks a vision-capable
LLM (OpenAI, Ollama or Gemini) for a step-by-step solution, streaming the
answer as it is generated.

Solutions are saved per device and can be bookmarked, listed and exported.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			slog.SetDefault(opts.newLogger(os.Stderr, false))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.provider, "provider", "", "LLM provider: openai, ollama or gemini (default from SCANHELPER_PROVIDER)")
	cmd.PersistentFlags().StringVar(&opts.model, "model", "", "Model name (default depends on provider)")

	// Add subcommands
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSolveCmd(opts))
	cmd.AddCommand(newTranscribeCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))

	return cmd
}
