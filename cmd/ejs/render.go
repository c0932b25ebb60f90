package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type renderFlags struct {
	locals        string
	set           []string
	cache         bool
	debug         bool
	out           string
	maxIterations int
}

func newRenderCmd(root *rootFlags) *cobra.Command {
	flags := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a template file",
		Long: `Render a template file and print the result.

Locals are read from a YAML (.yaml, .yml) or JSON file and may be
overridden with --set. Values given with --set are strings.

Examples:
  # Render with locals from a file
  ejs render page.ejs --locals page.yaml

  # Override a local and write the output atomically
  ejs render page.ejs --locals page.json --set title=Draft --out page.html

  # Log the generated program
  ejs render page.ejs --debug -v`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, root, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.locals, "locals", "l", "", "YAML or JSON file with template locals")
	cmd.Flags().StringArrayVar(&flags.set, "set", nil, "set a string local (key=value), repeatable")
	cmd.Flags().BoolVar(&flags.cache, "cache", false, "cache the compiled template under the file path")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "log the generated program")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().IntVar(&flags.maxIterations, "max-iterations", ejs.DefaultConfig().MaxLoopIterations, "loop iteration limit per render, 0 disables")
	return cmd
}

func runRender(cmd *cobra.Command, root *rootFlags, flags *renderFlags, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	locals, err := loadLocals(flags.locals)
	if err != nil {
		return err
	}
	for _, kv := range flags.set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		locals[key] = value
	}

	filename, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve template path: %w", err)
	}

	config := ejs.Config{MaxLoopIterations: flags.maxIterations}
	renderer := ejs.NewRenderer(root.logger(cmd.ErrOrStderr()), nil, &config)
	out, err := renderer.Render(string(src), ejs.Options{
		Locals:   locals,
		Cache:    flags.cache,
		Filename: filename,
		Debug:    flags.debug,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if flags.out != "" {
		if err = atomic.WriteFile(flags.out, strings.NewReader(out)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

// loadLocals reads a locals file. Files ending in .yaml or .yml are decoded
// as YAML, everything else as JSON. An empty path yields empty locals.
func loadLocals(path string) (map[string]any, error) {
	locals := make(map[string]any)
	if path == "" {
		return locals, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locals: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &locals)
	default:
		err = json.Unmarshal(data, &locals)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse locals %s: %w", path, err)
	}
	if locals == nil {
		locals = make(map[string]any)
	}
	return locals, nil
}
