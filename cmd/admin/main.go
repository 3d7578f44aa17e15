package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cryptorafts-admin",
	Short: "Operator tasks for the CryptoRafts API",
	Long: `Runs maintenance tasks against the CryptoRafts database using the
same environment as the API server.

Available commands:
  migrate            - Apply pending database migrations
  approve-all        - Verify every pending KYC and KYB submission
  seed-demo          - Create a demo founder with analysed projects
  set-role           - Assign a role to a user (the only way to grant admin)
  reindex            - Push every project and published post to the search index
  publish-scheduled  - Publish blog posts whose scheduled time has passed`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(migrateCmd, approveAllCmd, seedDemoCmd, setRoleCmd, reindexCmd, publishScheduledCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
