package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	chordcraft "github.com/cbegin/chordcraft-go"
	"github.com/cbegin/chordcraft-go/internal/dsl"
	"github.com/cbegin/chordcraft-go/internal/project"
)

var (
	verbose bool
	logger  = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "chordcraft",
	Short: "Compose music as text",
	Long: `chordcraft works with ChordCraft compositions: plain DSL text or
project bundles (*` + project.Extension + `). A path of "-" reads standard input.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// openStudio loads path into a new studio. Bundles are recognised by their
// extension; anything else is read as DSL text.
func openStudio(path string, opts ...chordcraft.StudioOption) (*chordcraft.Studio, []dsl.Diagnostic, error) {
	s := chordcraft.NewStudio(append([]chordcraft.StudioOption{chordcraft.WithLogger(logger)}, opts...)...)
	if strings.HasSuffix(path, project.Extension) {
		diags, err := s.Open(path)
		return s, diags, err
	}
	data, err := readInput(path)
	if err != nil {
		return nil, nil, err
	}
	return s, s.SetText(string(data)), nil
}

// requireClean prints diagnostics and fails when any of them is an error.
func requireClean(w io.Writer, name string, diags []dsl.Diagnostic) error {
	printDiagnostics(w, name, diags)
	if (dsl.Result{Diagnostics: diags}).HasErrors() {
		return fmt.Errorf("%s has errors", name)
	}
	return nil
}

func createOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
