package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/spf13/cobra"

	chordcraft "github.com/cbegin/chordcraft-go"
	"github.com/cbegin/chordcraft-go/internal/audio"
	"github.com/cbegin/chordcraft-go/internal/server"
)

// SentryDSNEnv is read when --sentry-dsn is not given.
const SentryDSNEnv = "CHORDCRAFT_SENTRY_DSN"

var (
	serveAddr      string
	serveOpen      string
	serveAudio     bool
	serveDebounce  time.Duration
	serveOrigins   []string
	serveSentryDSN string
)

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", ":8080", "listen address")
	f.StringVar(&serveOpen, "open", "", "composition to load at startup")
	f.BoolVar(&serveAudio, "audio", true, "play through the local audio device")
	f.DurationVar(&serveDebounce, "debounce", server.DefaultDebounce, "delay before socket text edits are parsed")
	f.StringSliceVar(&serveOrigins, "origin", nil, "allowed CORS origin (repeatable; default any)")
	f.StringVar(&serveSentryDSN, "sentry-dsn", "", "Sentry DSN for error reporting (default $"+SentryDSNEnv+")")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the editor backend over HTTP and WebSocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := serveSentryDSN
		if dsn == "" {
			dsn = os.Getenv(SentryDSNEnv)
		}
		if dsn != "" {
			if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, AttachStacktrace: true}); err != nil {
				return fmt.Errorf("sentry: %w", err)
			}
			defer sentry.Flush(2 * time.Second)
		}

		var opts []chordcraft.StudioOption
		if serveAudio {
			opts = append(opts, chordcraft.WithEngine(audio.NewEngine(audio.WithLogger(logger))))
		}
		var studio *chordcraft.Studio
		if serveOpen != "" {
			s, diags, err := openStudio(serveOpen, opts...)
			if err != nil {
				return err
			}
			printDiagnostics(os.Stderr, serveOpen, diags)
			studio = s
		} else {
			studio = chordcraft.NewStudio(append([]chordcraft.StudioOption{chordcraft.WithLogger(logger)}, opts...)...)
		}

		srv := server.New(studio,
			server.WithLogger(logger),
			server.WithDebounce(serveDebounce),
			server.WithAllowedOrigins(serveOrigins...),
		)
		defer srv.Close()

		handler := srv.Handler()
		if dsn != "" {
			handler = sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(handler)
		}
		httpSrv := &http.Server{Addr: serveAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		errc := make(chan error, 1)
		go func() { errc <- httpSrv.ListenAndServe() }()
		fmt.Fprintf(os.Stderr, "%s listening on %s\n", styles.Label.Render("chordcraft"), serveAddr)

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				sentry.CaptureException(err)
				return err
			}
			return nil
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	},
}
