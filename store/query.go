package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"

	"brokerly.dev/event"
	"brokerly.dev/filter"
	"brokerly.dev/utils/chk"
)

// Row is one historical-replay result: a stored event and its original
// created_at (kept alongside for the caller's own ordering checks).
type Row struct {
	Event     *event.E
	CreatedAt int64
}

// QueryRows runs a compiled subscription query against the read pool and
// streams results to rows, closing it when done. It checks ctx for
// cancellation every 100 rows, returning early without error when
// cancelled.
func (s *Store) QueryRows(ctx context.Context, sub *filter.Subscription, rows chan<- Row) (err error) {
	defer close(rows)
	c, err := CompileSubscription(sub)
	if chk.E(err) {
		return
	}
	if c.SQL == "" {
		return
	}
	dbRows, err := s.read.QueryContext(ctx, c.SQL, c.Args()...)
	if chk.E(err) {
		return
	}
	defer dbRows.Close()

	count := 0
	for dbRows.Next() {
		if count%100 == 0 {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
		count++
		var content string
		var createdAt int64
		if err = dbRows.Scan(&content, &createdAt); chk.E(err) {
			return
		}
		e := &event.E{}
		if jsonErr := json.Unmarshal([]byte(content), e); jsonErr != nil {
			continue
		}
		select {
		case rows <- Row{Event: e, CreatedAt: createdAt}:
		case <-ctx.Done():
			return nil
		}
	}
	return dbRows.Err()
}

// LatestVerification reports the most recent user_verification row for
// the author with the given hex pubkey (matched through the metadata
// event each row links to), or sql.ErrNoRows if none exists, used by the
// identity gate.
func (s *Store) LatestVerification(pubkeyHex string) (verifiedAt, failedAt sql.NullInt64, failureCount int, err error) {
	author, err := hex.DecodeString(pubkeyHex)
	if chk.E(err) {
		return
	}
	err = s.read.QueryRowContext(
		s.ctx,
		`SELECT v.verified_at, v.failed_at, v.failure_count FROM user_verification v
		 JOIN event e ON v.metadata_event = e.id
		 WHERE e.author = ? ORDER BY v.id DESC LIMIT 1`,
		author,
	).Scan(&verifiedAt, &failedAt, &failureCount)
	return
}

// RecordVerification inserts a new user_verification row tied to a
// metadata event, used by the identity verifier after a successful or
// failed NIP-05 lookup.
func (s *Store) RecordVerification(metadataEventRowID int64, name string, verifiedAt, failedAt *int64, failureCount int) (err error) {
	_, err = s.write.ExecContext(
		s.ctx,
		`INSERT INTO user_verification (metadata_event, name, verified_at, failed_at, failure_count)
		 VALUES (?, ?, ?, ?, ?)`,
		metadataEventRowID, name, verifiedAt, failedAt, failureCount,
	)
	chk.E(err)
	return
}

// EventRowID returns the internal row id for a stored event hash, used
// to link a metadata event to a user_verification row.
func (s *Store) EventRowID(idHex string) (rowID int64, err error) {
	id, err := hex.DecodeString(idHex)
	if chk.E(err) {
		return
	}
	err = s.read.QueryRowContext(s.ctx, `SELECT id FROM event WHERE event_hash = ?`, id).Scan(&rowID)
	return
}
