package cli

import (
	"github.com/absmach/fedcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

var fsdk sdk.SDK

// SetSDK sets the client used by every command.
func SetSDK(s sdk.SDK) {
	fsdk = s
}

func addPagingFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)
}
