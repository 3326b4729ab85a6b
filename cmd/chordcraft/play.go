package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	chordcraft "github.com/cbegin/chordcraft-go"
	"github.com/cbegin/chordcraft-go/internal/audio"
	"github.com/cbegin/chordcraft-go/internal/music"
	"github.com/cbegin/chordcraft-go/internal/playback"
)

var (
	playSampleRate int
	playFrom       float64
	playTrace      bool
)

func init() {
	playCmd.Flags().IntVar(&playSampleRate, "sample-rate", audio.DefaultSampleRate, "output sample rate")
	playCmd.Flags().Float64Var(&playFrom, "from", 0, "start position in seconds")
	playCmd.Flags().BoolVar(&playTrace, "trace", false, "print each note as it triggers")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play a composition on the default audio device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := audio.NewEngine(audio.WithSampleRate(playSampleRate), audio.WithLogger(logger))
		s, diags, err := openStudio(args[0], chordcraft.WithEngine(engine))
		if err != nil {
			return err
		}
		if err := requireClean(os.Stderr, args[0], diags); err != nil {
			return err
		}
		if err := engine.SetEffects(s.Effects()); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		events := s.Watch()
		if err := s.Seek(playFrom); err != nil {
			return err
		}
		if err := s.Play(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "playing %d notes (%.1fs)\n", len(s.Schedule()), playback.Length(s.Schedule()))
		go func() {
			for ev := range events {
				switch ev.Kind {
				case chordcraft.EventTrigger:
					if playTrace {
						e := ev.Event
						fmt.Fprintf(out, "%7.3fs %s %s\n", e.Offset+playFrom, styles.Label.Render(e.TrackID), music.PitchName(e.Pitch))
					}
				case chordcraft.EventWarning:
					fmt.Fprintln(os.Stderr, styles.Warning.Render("warning:")+" "+ev.Message)
				}
			}
		}()
		if err := s.Wait(ctx); err != nil && ctx.Err() != nil {
			s.Stop()
			fmt.Fprintln(out, "stopped")
			return nil
		}
		s.Stop()
		fmt.Fprintln(out, "playback completed")
		return nil
	},
}
