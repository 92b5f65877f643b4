package main

import (
	"fmt"

	"github.com/codefionn/netserver/internal/consts"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "netserver %s\n", consts.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
