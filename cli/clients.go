package cli

import (
	"github.com/spf13/cobra"
)

var clientsCmd = []cobra.Command{
	{
		Use:   "list",
		Short: "List clients",
		Long:  `List the client population with availability and participation.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListClients(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	},
	{
		Use:   "view <id>",
		Short: "View client",
		Long:  `View client.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			c, err := fsdk.GetClient(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, c)
		},
	},
	{
		Use:   "history <id>",
		Short: "Client history",
		Long:  `List the rounds a client contributed to and the updates it had rejected.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			h, err := fsdk.ClientHistory(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, h)
		},
	},
	{
		Use:   "exclude <id>",
		Short: "Exclude client",
		Long:  `Stop selecting a client for future rounds.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			c, err := fsdk.ExcludeClient(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, c)
		},
	},
	{
		Use:   "include <id>",
		Short: "Include client",
		Long:  `Make an excluded or unreachable client selectable again.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			c, err := fsdk.IncludeClient(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, c)
		},
	},
}

func NewClientsCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "clients [list|view|history|exclude|include]",
		Short: "Client population",
		Long:  `Inspect and manage the client population.`,
	}

	for i := range clientsCmd {
		cmd.AddCommand(&clientsCmd[i])
	}
	addPagingFlags(&cmd)

	return &cmd
}
