package main

import (
	"log"

	"github.com/absmach/fedcoord/cli"
	"github.com/absmach/fedcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

func main() {
	sdkConf := sdk.Config{
		CoordinatorURL:  cli.DefCoordinatorURL,
		TLSVerification: cli.DefTLSVerification,
	}

	rootCmd := &cobra.Command{
		Use:   "fedcoord-cli",
		Short: "Federated learning coordinator CLI",
		Long:  `fedcoord-cli is a command line interface for inspecting and steering a federated learning coordinator.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			cli.SetSDK(sdk.NewSDK(sdkConf))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&sdkConf.CoordinatorURL, "coordinator-url", "u", sdkConf.CoordinatorURL, "Coordinator URL")
	rootCmd.PersistentFlags().BoolVarP(&sdkConf.TLSVerification, "tls-verification", "t", sdkConf.TLSVerification, "Verify TLS certificates")
	rootCmd.PersistentFlags().BoolVar(&sdkConf.CBOR, "cbor", sdkConf.CBOR, "Send updates as CBOR")
	cli.AddOutputFlags(rootCmd)

	rootCmd.AddCommand(cli.NewStatusCmd())
	rootCmd.AddCommand(cli.NewModelCmd())
	rootCmd.AddCommand(cli.NewRoundsCmd())
	rootCmd.AddCommand(cli.NewClientsCmd())
	rootCmd.AddCommand(cli.NewSubmitCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
