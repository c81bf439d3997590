// Package diagnostics runs the relay's background process-health
// logging, the same low-frequency goroutine/cgo-call sampling the
// teacher's main process runs for the life of the relay.
package diagnostics

import (
	"os"
	"runtime"
	"time"

	"brokerly.dev/utils/context"
	"brokerly.dev/utils/log"
)

// MonitorResources logs goroutine and cgo-call counts every 15 minutes
// until ctx is cancelled.
func MonitorResources(ctx context.T) {
	tick := time.NewTicker(15 * time.Minute)
	defer tick.Stop()
	log.I.Ln("running process", os.Args[0], os.Getpid())
	for {
		select {
		case <-ctx.Done():
			log.D.Ln("shutting down resource monitor")
			return
		case <-tick.C:
			log.D.Ln(
				"# goroutines", runtime.NumGoroutine(),
				"# cgo calls", runtime.NumCgoCall(),
			)
		}
	}
}
