package registrar_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/registrar"
	"github.com/aretw0/registrar/pkg/core"
)

// Example_basic registers a domain on the in-process dev chain and reads it back.
func Example_basic() {
	ctx := context.Background()

	client, err := registrar.New(ctx, "",
		registrar.WithAdapter(registrar.AdapterMemory),
		registrar.WithAccount(core.DevAccounts["alice"]),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	// 1. Register a domain and wait for finality
	tracker := client.Dispatch(ctx, core.CreateDomainAction("gopher"), core.DispatchOptions{})
	if err := tracker.Wait(ctx); err != nil {
		log.Fatal(err)
	}

	// 2. Read the counter and the record back
	count, err := client.Node.DomainCount(ctx)
	if err != nil {
		log.Fatal(err)
	}
	ids, err := client.Node.DomainKeys(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("state: %s\n", tracker.State())
	fmt.Printf("domains: %d\n", count)
	fmt.Printf("first is gopher: %v\n", ids[0] == core.DomainIDFor(core.DomainName("gopher")))
	// Output:
	// state: Finalized
	// domains: 1
	// first is gopher: true
}
