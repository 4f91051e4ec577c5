package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/registrar"
	"github.com/aretw0/registrar/pkg/core"
)

var (
	listJSON  bool
	listMine  bool
	listSale  bool
	listMatch string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered domains",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client, _ := connect(ctx)
		defer client.Close()

		snap, err := firstSnapshot(ctx, client)
		if err != nil {
			fatal("Failed to sync registry", err)
		}

		tab := core.TabAll
		switch {
		case listMine:
			tab = core.TabMine
		case listSale:
			tab = core.TabSale
		}
		views, err := core.Match(snap.Select(tab), listMatch)
		if err != nil {
			fatal("Invalid --match", err)
		}

		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(views); err != nil {
				fatal("Error encoding JSON", err)
			}
			return
		}

		if snap.Empty() {
			fmt.Println(core.EmptyPrompt)
			return
		}
		printViews(views, snap.Session.Account)
	},
}

// firstSnapshot starts the service and returns its first published snapshot.
func firstSnapshot(ctx context.Context, client *registrar.Client) (core.Snapshot, error) {
	if err := client.Service.Start(ctx); err != nil {
		return core.Snapshot{}, err
	}
	ch, err := client.Service.Watch(ctx)
	if err != nil {
		return core.Snapshot{}, err
	}
	select {
	case snap, ok := <-ch:
		if !ok {
			return core.Snapshot{}, core.ErrClosed
		}
		return snap, nil
	case <-ctx.Done():
		return core.Snapshot{}, ctx.Err()
	}
}

func printViews(views []core.View, viewer core.AccountID) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tOWNER\tPRICE\tWALLET\tCREATED\tACTIONS")
	for _, v := range views {
		created := ""
		if !v.CreatedAt.IsZero() {
			created = v.CreatedAt.Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
			v.Name, v.Owner, v.PriceText(), v.VisibleWallet(viewer), created, core.Offers(v, viewer))
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVar(&listMine, "mine", false, "Only domains owned by the selected account")
	listCmd.Flags().BoolVar(&listSale, "sale", false, "Only domains for sale")
	listCmd.Flags().StringVar(&listMatch, "match", "", "Filter names with a glob, e.g. 'shop*'")
}
