package server

import (
	"context"
	"time"

	"brokerly.dev/filter"
	"brokerly.dev/store"
	"brokerly.dev/utils/log"
)

// slowQueryWarnAfter is how long a historical query may run before its
// first result without the worker logging a warning.
const slowQueryWarnAfter = 2 * time.Second

// backpressureEvictAfter is how long the worker will block trying to
// hand a result to the connection loop before giving up on the whole
// subscription.
const backpressureEvictAfter = 5 * time.Second

// queryResult is what the query worker reports back to the connection
// loop: either a result row, or (with done set, and err holding any query
// error) that replay is complete and EOSE should be sent.
type queryResult struct {
	subID string
	row   store.Row
	done  bool
	err   error
}

// runQueryWorker replays every matching stored event for sub, then
// signals completion. It polls cancelled for cancellation every row
// (store.QueryRows already polls its own context every 100 rows; this
// loop additionally enforces the backpressure eviction deadline on each
// send to results).
func runQueryWorker(
	ctx context.Context, st *store.Store, sub *filter.Subscription,
	cancelled <-chan struct{}, results chan<- queryResult,
) {
	qctx, qcancel := context.WithCancel(ctx)
	defer qcancel()

	rows := make(chan store.Row, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- st.QueryRows(qctx, sub, rows)
	}()

	start := time.Now()
	first := true
	for {
		select {
		case <-cancelled:
			qcancel()
			return
		case row, ok := <-rows:
			if !ok {
				err := <-errc
				select {
				case results <- queryResult{subID: sub.SubID, done: true, err: err}:
				case <-cancelled:
				case <-time.After(backpressureEvictAfter):
					log.W.F("sub %s: evicted sending EOSE under backpressure", sub.SubID)
				}
				return
			}
			if first {
				if elapsed := time.Since(start); elapsed > slowQueryWarnAfter {
					log.W.F("sub %s: slow query, %v to first result", sub.SubID, elapsed)
				}
				first = false
			}
			select {
			case results <- queryResult{subID: sub.SubID, row: row}:
			case <-cancelled:
				qcancel()
				return
			case <-time.After(backpressureEvictAfter):
				log.W.F("sub %s: evicted under backpressure, connection too slow", sub.SubID)
				qcancel()
				return
			}
		}
	}
}
