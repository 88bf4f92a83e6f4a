package cli

import (
	"encoding/json"
	"os"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/spf13/cobra"
)

var modelCmd = []cobra.Command{
	{
		Use:   "current",
		Short: "Current model",
		Long:  `View the latest committed global model.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			m, err := fsdk.CurrentModel()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, m)
		},
	},
	{
		Use:   "view <version>",
		Short: "View model version",
		Long:  `View a committed global model by version.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			version, err := parseVersion(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			m, err := fsdk.GetModel(version)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, m)
		},
	},
}

func NewModelCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "model [current|view]",
		Short: "Global model",
		Long:  `Inspect committed global models.`,
	}

	for i := range modelCmd {
		cmd.AddCommand(&modelCmd[i])
	}

	return &cmd
}

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Coordinator status",
		Long:  `View the coordinator state and the active round.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			st, err := fsdk.Status()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, st)
		},
	}
}

func NewSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <client_id> <update.json>",
		Short: "Submit update",
		Long: `Submit a local update read from a JSON file on behalf of a client.

Examples:
  fedcoord-cli submit client-1 update.json`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			data, err := os.ReadFile(args[1])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			var u fl.Update
			if err := json.Unmarshal(data, &u); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			v, err := fsdk.SubmitUpdate(args[0], u)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, v)
		},
	}
}
