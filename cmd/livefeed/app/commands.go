package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/livefeed/cmd/livefeed/cmd/connections"
	"github.com/agentstation/livefeed/cmd/livefeed/cmd/publish"
	"github.com/agentstation/livefeed/cmd/livefeed/cmd/serve"
	"github.com/agentstation/livefeed/cmd/livefeed/cmd/watch"
	"github.com/agentstation/livefeed/internal/server"
)

// NewServeCommand creates the serve command with app dependencies.
// Settings are read when the command runs so --config is honored.
func (a *App) NewServeCommand() *cobra.Command {
	cmd := serve.NewCommand(a, func() server.Config { return a.config.Server })
	cmd.GroupID = "core"
	return cmd
}

// NewPublishCommand creates the publish command with app dependencies.
func (a *App) NewPublishCommand() *cobra.Command {
	cmd := publish.NewCommand(a, a.serverURL)
	cmd.GroupID = "client"
	return cmd
}

// NewWatchCommand creates the watch command with app dependencies.
func (a *App) NewWatchCommand() *cobra.Command {
	cmd := watch.NewCommand(a, a.serverURL)
	cmd.GroupID = "client"
	return cmd
}

// NewConnectionsCommand creates the connections command with app dependencies.
func (a *App) NewConnectionsCommand() *cobra.Command {
	cmd := connections.NewCommand(a, a.serverURL)
	cmd.GroupID = "client"
	return cmd
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("livefeed %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}

// serverURL returns the API root client commands talk to.
func (a *App) serverURL() string {
	if a.config.ServerURL == "" {
		return DefaultServerURL
	}
	return a.config.ServerURL
}
