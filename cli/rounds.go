package cli

import (
	"github.com/spf13/cobra"
)

var roundsCmd = []cobra.Command{
	{
		Use:   "list",
		Short: "List rounds",
		Long:  `List round attempts ordered by round number.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListRounds(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	},
	{
		Use:   "view <id>",
		Short: "View round",
		Long:  `View a round attempt with its contributors and rejections.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			rec, err := fsdk.GetRound(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rec)
		},
	},
}

func NewRoundsCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "rounds [list|view]",
		Short: "Training rounds",
		Long:  `Inspect training rounds.`,
	}

	for i := range roundsCmd {
		cmd.AddCommand(&roundsCmd[i])
	}
	addPagingFlags(&cmd)

	return &cmd
}
