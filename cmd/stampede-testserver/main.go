// Command stampede-testserver runs the simulated ticketing service.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"stampede/testserver"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	tokenField := flag.String("token-field", "token", "token field name in the enter-queue response")
	activateAfter := flag.Int("activate-after", 2, "polls before a token turns ACTIVE")
	seats := flag.Int("seats", 50, "seat inventory size")
	flag.Parse()

	srv := testserver.New(testserver.Options{
		TokenField:    *tokenField,
		ActivateAfter: *activateAfter,
		Seats:         *seats,
	})

	fmt.Printf("ticketing test server listening on %s (%d seats, activate after %d polls)\n",
		*addr, *seats, *activateAfter)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
