package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/registrar"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of registrar",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("registrar version %s\n", strings.TrimSpace(registrar.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
