package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

var role string

func main() {
	rootCmd := &cobra.Command{
		Use:     "staybook",
		Short:   "staybook booking write-authority core",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if role == "" {
				return nil
			}
			return os.Setenv("SERVICE_ROLE", role)
		},
	}
	rootCmd.PersistentFlags().StringVar(&role, "role", "", "deployment role (adapter or hub); overrides SERVICE_ROLE")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(writerLockCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
