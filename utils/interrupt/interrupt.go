// Package interrupt wires SIGINT/SIGTERM to a process-wide shutdown signal.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"brokerly.dev/utils/context"
	"brokerly.dev/utils/log"
)

var once sync.Once

// Handle waits for the first SIGINT or SIGTERM, then runs the cleanup funcs
// in order and calls cancel. The signals stay routed to this handler, so
// later ones are received and ignored rather than killing the process.
func Handle(cancel context.F, cleanup ...func()) {
	once.Do(
		func() {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-ch
				log.I.F("received signal %v, shutting down", sig)
				for _, f := range cleanup {
					f()
				}
				cancel()
			}()
		},
	)
}
