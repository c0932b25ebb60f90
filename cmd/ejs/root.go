package main

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"
	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
)

type rootFlags struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "ejs",
		Short: "Render embedded-script templates",
		Long: `ejs compiles templates that mix literal text with <% code %>,
<%= escaped output %> and <%- raw output %> tags, and renders them
against locals read from YAML or JSON files.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(
		newRenderCmd(flags),
		newParseCmd(),
		newVersionCmd(),
	)
	return cmd
}

func (f *rootFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "ejs %s\n", Version)
			_, _ = fmt.Fprintf(out, "Template language: %s\n", ejs.Version)
			_, _ = fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
			_, _ = fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
		},
	}
}
