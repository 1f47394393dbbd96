// Package watch provides the watch command, which follows a server's event
// stream and prints matching events.
package watch

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/livefeed/internal/cmd/application"
	"github.com/agentstation/livefeed/internal/cmd/emoji"
	"github.com/agentstation/livefeed/internal/cmd/output"
	"github.com/agentstation/livefeed/pkg/client"
	"github.com/agentstation/livefeed/pkg/events"
)

// StreamPath is the SSE route relative to the API prefix.
const StreamPath = "/events/stream"

// NewCommand creates the watch command.
func NewCommand(app application.Application, serverURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live event stream",
		Long: `Watch connects to a server's event stream and prints each matching
event as it arrives. The connection is re-established with exponential
backoff when it drops or goes quiet; events sent while disconnected are
not replayed.

Heartbeat, connected and error events are hidden unless --all is given.`,
		Example: `  # Everything camera 7 does
  livefeed watch --camera 7

  # Video job progress as YAML
  livefeed watch --type video_job_progress --type video_job_completed -o yaml

  # Stop after the first captured image
  livefeed watch --type image_captured --count 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, app, serverURL())
		},
	}

	cmd.Flags().StringSlice("type", nil, "Only show these event types (repeatable)")
	cmd.Flags().Int("camera", 0, "Only show events for this camera id")
	cmd.Flags().Bool("all", false, "Include heartbeat, connected and error events")
	cmd.Flags().Int("count", 0, "Exit after printing this many events (0 for no limit)")
	cmd.Flags().Duration("stale-after", client.DefaultStaleAfter, "Reconnect when nothing arrives for this long")

	return cmd
}

func run(cmd *cobra.Command, app application.Application, baseURL string) error {
	logger := app.Logger()

	types, _ := cmd.Flags().GetStringSlice("type")
	camera, _ := cmd.Flags().GetInt("camera")
	all, _ := cmd.Flags().GetBool("all")
	count, _ := cmd.Flags().GetInt("count")
	staleAfter, _ := cmd.Flags().GetDuration("stale-after")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	hub := client.New(streamURL(baseURL),
		client.WithLogger(logger),
		client.WithStaleAfter(staleAfter),
	)

	notices := cmd.ErrOrStderr()
	unsubscribeState := hub.OnStateChange(func(s client.State) {
		logger.Info().Str("state", s.String()).Msg("Stream state changed")
		if s == client.Errored {
			fmt.Fprintf(notices, "%s Stream interrupted, reconnecting\n", emoji.Warning)
		}
	})
	defer unsubscribeState()

	formatter := output.NewStreamFormatter(output.DetectFormat(app.OutputFormat()))
	out := cmd.OutOrStdout()
	printed := 0

	// The hub dispatches from a single goroutine, so printed needs no lock.
	unsubscribe := hub.Subscribe(Filter(types, camera, all), func(env events.Envelope) {
		if err := formatter.Format(out, env); err != nil {
			logger.Error().Err(err).Msg("Failed to print event")
			return
		}
		printed++
		if count > 0 && printed >= count {
			cancel()
		}
	})
	defer unsubscribe()

	logger.Debug().
		Str("url", streamURL(baseURL)).
		Strs("types", types).
		Int("camera", camera).
		Dur("stale_after", staleAfter).
		Msg("Watching event stream")

	return hub.Run(ctx)
}

// Filter builds the subscription predicate for the watch flags. A zero
// camera matches every camera.
func Filter(types []string, camera int, all bool) client.Predicate {
	var preds []client.Predicate
	if !all {
		preds = append(preds, client.Domain())
	}
	if len(types) > 0 {
		ts := make([]events.Type, len(types))
		for i, t := range types {
			ts[i] = events.Type(strings.TrimSpace(t))
		}
		preds = append(preds, client.OfType(ts...))
	}
	if camera > 0 {
		preds = append(preds, client.ForCamera(camera))
	}
	return client.And(preds...)
}

func streamURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + StreamPath
}
