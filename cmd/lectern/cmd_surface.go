/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/friendsincode/lectern/internal/logging"
	"github.com/friendsincode/lectern/internal/playback"
)

var (
	surfaceURL      string
	surfaceKey      string
	surfaceDuration float64
	surfaceLatency  time.Duration
	surfaceInterval time.Duration
)

var surfaceCmd = &cobra.Command{
	Use:   "surface",
	Short: "Run a headless rendering surface",
	Long: `Connect to a Lectern server as a rendering surface.

The surface follows the video and audio state through simulated players,
reports playback progress every interval and reconnects when the connection
drops. Useful for exercising remotes without a display attached.

Examples:
  lectern surface --url ws://localhost:8080/api/v1/events --key secret
  lectern surface --duration 300 --seek-latency 800ms
`,
	RunE: runSurface,
}

func init() {
	surfaceCmd.Flags().StringVar(&surfaceURL, "url", "ws://localhost:8080/api/v1/events", "Events websocket URL")
	surfaceCmd.Flags().StringVar(&surfaceKey, "key", os.Getenv("LECTERN_REMOTE_KEY"), "Shared remote key")
	surfaceCmd.Flags().Float64Var(&surfaceDuration, "duration", 240, "Simulated media duration in seconds")
	surfaceCmd.Flags().DurationVar(&surfaceLatency, "seek-latency", 500*time.Millisecond, "Simulated seek latency")
	surfaceCmd.Flags().DurationVar(&surfaceInterval, "report-interval", time.Second, "Progress report interval")
	rootCmd.AddCommand(surfaceCmd)
}

func runSurface(cmd *cobra.Command, args []string) error {
	log := logging.Setup(os.Getenv("LECTERN_ENV"))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clockwork.NewRealClock()
	surface := playback.NewSurface(playback.SurfaceConfig{
		URL:            surfaceURL,
		RemoteKey:      surfaceKey,
		ReportInterval: surfaceInterval,
	},
		playback.NewSimPlayer(clk, surfaceDuration, surfaceLatency),
		playback.NewSimPlayer(clk, surfaceDuration, surfaceLatency),
		log,
	)

	backoff := time.Second
	for {
		err := surface.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = time.Second
		} else {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("surface disconnected")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

