package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chordcraft "github.com/cbegin/chordcraft-go"
)

var (
	renderOut        string
	renderSampleRate int
	renderSeconds    float64
)

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "output", "o", "", "WAV file to write (default stdout)")
	renderCmd.Flags().IntVar(&renderSampleRate, "sample-rate", chordcraft.DefaultSampleRate, "output sample rate")
	renderCmd.Flags().Float64Var(&renderSeconds, "seconds", 0, "length to render; 0 renders to the end of the last note")
	rootCmd.AddCommand(renderCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render a composition to a 32-bit float stereo WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, diags, err := openStudio(args[0], chordcraft.WithSampleRate(renderSampleRate))
		if err != nil {
			return err
		}
		if err := requireClean(os.Stderr, args[0], diags); err != nil {
			return err
		}
		samples, err := s.Render(renderSeconds)
		if err != nil {
			return err
		}
		w, err := createOutput(renderOut)
		if err != nil {
			return err
		}
		if _, err := w.Write(chordcraft.EncodeWAVFloat32LE(samples, s.SampleRate(), 2)); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		logger.Info("rendered", "frames", len(samples)/2, "sampleRate", s.SampleRate())
		if renderOut != "" {
			fmt.Fprintf(os.Stderr, "wrote %s (%.2fs)\n", renderOut, float64(len(samples)/2)/float64(s.SampleRate()))
		}
		return nil
	},
}
