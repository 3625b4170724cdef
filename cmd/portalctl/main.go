// Command portalctl is the developer CLI for the care intake portal: it mints
// and inspects invitation links and manages tenants directly against the remote.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pavitra93/care-intake-portal/shared/config"
)

var cfg *config.AppConfig

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Care intake portal developer CLI",
	Long:  `Mint and inspect invitation links, and list, seed and configure tenants.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	inviteCmd.AddCommand(inviteEncodeCmd, inviteDecodeCmd)
	rootCmd.AddCommand(inviteCmd)

	tenantsCmd.AddCommand(tenantsListCmd, tenantsSeedCmd, tenantsFeaturesCmd)
	rootCmd.AddCommand(tenantsCmd)
}

func main() {
	cfg = config.Load()
	logrus.SetLevel(logrus.WarnLevel)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
