package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of registered domains",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client, _ := connect(ctx)
		defer client.Close()

		n, err := client.Node.DomainCount(ctx)
		if err != nil {
			fatal("Failed to read domain count", err)
		}
		fmt.Println(n)
	},
}

func init() {
	rootCmd.AddCommand(countCmd)
}
