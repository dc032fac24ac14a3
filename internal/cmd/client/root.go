package client

import (
	"github.com/spf13/cobra"

	logpkg "github.com/rzbill/logmux/pkg/log"
)

// AddCommands registers the client command groups on root.
func AddCommands(root *cobra.Command, baseURL BaseURLFunc, logger logpkg.Logger) {
	root.AddCommand(
		NewStreamCommand(baseURL),
		NewStatusCommand(baseURL),
		NewDemoCommand(logger),
		NewDumpCommand(),
		NewTailCommand(),
	)
}
