package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/registrar/pkg/core"
)

var (
	txTimeout time.Duration
	txDetach  bool
	callMode  string
)

// send dispatches action, prints every status line and exits non-zero on failure.
// With --detach it returns as soon as the extrinsic is in a block.
func send(action core.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), txTimeout)
	defer cancel()

	client, _ := connect(ctx)
	defer client.Close()

	opts := core.DispatchOptions{
		OnStatus: func(s string) { fmt.Println(s) },
	}
	if txDetach {
		opts.OnInChain = func(unsubscribe func()) { unsubscribe() }
	}

	tracker := client.Dispatch(ctx, action, opts)
	if err := tracker.Wait(ctx); err != nil {
		fatal(action.Label+" failed", err)
	}
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a domain",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		send(core.CreateDomainAction(args[0]))
	},
}

var setPriceCmd = &cobra.Command{
	Use:   "set-price <domain> [price]",
	Short: "Put a domain on sale, or withdraw it when price is omitted",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := resolveDomain(args[0])
		if err != nil {
			fatal("Invalid domain", err)
		}
		price := ""
		if len(args) == 2 {
			price = args[1]
		}
		send(core.SetPriceAction(id, price))
	},
}

var setWalletCmd = &cobra.Command{
	Use:   "set-wallet <domain> [wallet]",
	Short: "Set the payout wallet of a domain, or clear it when omitted",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := resolveDomain(args[0])
		if err != nil {
			fatal("Invalid domain", err)
		}
		wallet := ""
		if len(args) == 2 {
			wallet = args[1]
		}
		send(core.SetWalletAction(id, wallet))
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <domain> <receiver>",
	Short: "Give a domain to another account",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := resolveDomain(args[0])
		if err != nil {
			fatal("Invalid domain", err)
		}
		send(core.TransferAction(args[1], id))
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy <domain>",
	Short: "Buy a domain at its asking price",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := resolveDomain(args[0])
		if err != nil {
			fatal("Invalid domain", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), txTimeout)
		defer cancel()
		client, _ := connect(ctx)
		snap, err := firstSnapshot(ctx, client)
		_ = client.Close()
		if err != nil {
			fatal("Failed to sync registry", err)
		}

		for _, v := range snap.Views {
			if v.ID != id {
				continue
			}
			if v.Price == nil {
				fatal("Cannot buy "+v.Name, core.ErrNotForSale)
			}
			fmt.Printf("Buying %s for %s\n", v.Name, v.PriceText())
			send(core.BuyAction(v))
			return
		}
		fatal("Cannot buy "+args[0], core.ErrDomainNotFound)
	},
}

var callCmd = &cobra.Command{
	Use:   "call <pallet> <method> [args...]",
	Short: "Submit any call of the runtime catalog",
	Long: `call submits an arbitrary extrinsic. Use --mode SUDO for root-only calls such as
balances.setBalance. Known calls:
` + catalogHelp(),
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mode, err := core.ParseMode(callMode)
		if err != nil {
			fatal("Invalid --mode", err)
		}
		fields := make([]bool, len(args)-2)
		for i := range fields {
			fields[i] = true
		}
		send(core.Action{
			Label:       args[0] + "." + args[1],
			Mode:        mode,
			Pallet:      args[0],
			Method:      args[1],
			Args:        args[2:],
			ParamFields: fields,
		})
	},
}

func catalogHelp() string {
	var b strings.Builder
	for _, spec := range core.Calls() {
		names := make([]string, len(spec.Params))
		for i, p := range spec.Params {
			names[i] = p.Name
		}
		fmt.Fprintf(&b, "  %s(%s)", spec.Name(), strings.Join(names, ", "))
		if spec.RootOnly {
			b.WriteString(" [root]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func init() {
	for _, c := range []*cobra.Command{createCmd, setPriceCmd, setWalletCmd, transferCmd, buyCmd, callCmd} {
		c.Flags().DurationVar(&txTimeout, "timeout", 2*time.Minute, "Give up waiting after this long")
		c.Flags().BoolVar(&txDetach, "detach", false, "Stop following once the extrinsic is in a block")
		rootCmd.AddCommand(c)
	}
	callCmd.Flags().StringVar(&callMode, "mode", "SIGNED", "Signing mode: SIGNED, SUDO or UNSIGNED")
}
