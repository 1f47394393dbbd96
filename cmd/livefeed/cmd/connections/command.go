// Package connections provides the connections command, which lists the
// streams registered with a broadcast server.
package connections

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/livefeed/internal/cmd/application"
	"github.com/agentstation/livefeed/internal/cmd/output"
	"github.com/agentstation/livefeed/internal/transport"
)

// NewCommand creates the connections command.
func NewCommand(app application.Application, serverURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conns"},
		Short:   "List streams connected to a broadcast server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := transport.New().Connections(cmd.Context(), serverURL())
			if err != nil {
				return err
			}

			format := output.DetectFormat(app.OutputFormat())
			formatter := output.NewFormatter(format)

			switch format {
			case output.FormatTable, output.FormatWide:
				if len(list.Connections) == 0 {
					cmd.Println("No connections")
					return nil
				}
				return formatter.Format(cmd.OutOrStdout(), list.Connections)
			default:
				return formatter.Format(cmd.OutOrStdout(), list)
			}
		},
	}
}
