package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chordcraft "github.com/cbegin/chordcraft-go"
	"github.com/cbegin/chordcraft-go/internal/project"
)

var (
	midiOut   string
	midiTitle string
)

func init() {
	exportMIDICmd.Flags().StringVarP(&midiOut, "output", "o", "", "MIDI file to write (default stdout)")
	importMIDICmd.Flags().StringVarP(&midiOut, "output", "o", "", "write a project bundle (*"+project.Extension+") instead of printing text")
	importMIDICmd.Flags().StringVar(&midiTitle, "title", "", "bundle title")
	rootCmd.AddCommand(exportMIDICmd, importMIDICmd)
}

var exportMIDICmd = &cobra.Command{
	Use:   "export-midi <file>",
	Short: "Write a composition as a standard MIDI file",
	Long: `export-midi writes one MIDI track per timeline track. Drum tracks use
channel 10. Mute and solo are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, diags, err := openStudio(args[0])
		if err != nil {
			return err
		}
		if err := requireClean(os.Stderr, args[0], diags); err != nil {
			return err
		}
		w, err := createOutput(midiOut)
		if err != nil {
			return err
		}
		if err := s.ExportMIDI(w); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	},
}

var importMIDICmd = &cobra.Command{
	Use:   "import-midi <file.mid>",
	Short: "Convert a standard MIDI file to ChordCraft text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		s := chordcraft.NewStudio(chordcraft.WithLogger(logger))
		diags, err := s.ImportMIDI(f)
		if err != nil {
			return err
		}
		printDiagnostics(os.Stderr, args[0], diags)
		if midiOut != "" {
			if err := s.Save(midiOut, midiTitle); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s (%d notes, %d tracks)\n", midiOut, len(s.Model().Notes()), len(s.Model().Tracks()))
			return nil
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), s.Model().Text())
		return err
	},
}
