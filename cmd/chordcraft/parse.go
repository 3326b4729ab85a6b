package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cbegin/chordcraft-go/internal/dsl"
	"github.com/cbegin/chordcraft-go/internal/playback"
)

func init() {
	rootCmd.AddCommand(parseCmd, fmtCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Check a composition and summarise it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, diags, err := openStudio(args[0])
		if err != nil {
			return err
		}
		printDiagnostics(os.Stderr, args[0], diags)
		m := s.Model()
		events := s.Schedule()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %g bpm, %s, %s\n", styles.Label.Render("header"), m.Tempo(), m.Key(), m.TimeSignature())
		fmt.Fprintf(out, "%s %d on %d tracks\n", styles.Label.Render("notes "), len(m.Notes()), len(m.Tracks()))
		fmt.Fprintf(out, "%s %.2fs\n", styles.Label.Render("length"), playback.Length(events))
		if fx := s.Effects(); len(fx) > 0 {
			fmt.Fprintf(out, "%s %v\n", styles.Label.Render("fx    "), fx)
		}
		if (dsl.Result{Diagnostics: diags}).HasErrors() {
			return fmt.Errorf("%s has errors", args[0])
		}
		return nil
	},
}

var fmtCmd = &cobra.Command{
	Use:   "fmt <file>",
	Short: "Print the canonical text of a composition",
	Long: `fmt parses a composition and prints the text the editor would generate
for its notes. Effects are not carried over. Files with errors are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args[0])
		if err != nil {
			return err
		}
		res := dsl.Parse(string(data))
		if err := requireClean(os.Stderr, args[0], res.Diagnostics); err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), dsl.Generate(res.Notes, res.Header))
		return err
	},
}
