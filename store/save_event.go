package store

import (
	"database/sql"
	"encoding/hex"
	"time"

	"brokerly.dev/event"
	"brokerly.dev/utils/chk"
	"brokerly.dev/utils/log"
)

// WriteOutcome reports what SaveEvent actually did, so the Writer can
// pick the right notice kind.
type WriteOutcome int

const (
	// WriteSaved means the event was newly persisted.
	WriteSaved WriteOutcome = iota
	// WriteDuplicate means event_hash already existed; nothing changed.
	WriteDuplicate
)

// SaveEvent inserts e and, for replaceable kinds, keeps only the single
// newest event from the same (author, kind) pair visible — hiding
// whichever of {the new row, the prior rows} turns out not to be the
// latest. It is the only Store method the Writer's single-writer
// goroutine calls with a write connection.
func (s *Store) SaveEvent(e *event.E) (outcome WriteOutcome, err error) {
	tx, err := s.write.BeginTx(s.ctx, nil)
	if chk.E(err) {
		return
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	content, err := e.MarshalJSON()
	if chk.E(err) {
		return
	}

	res, err := tx.ExecContext(
		s.ctx,
		`INSERT OR IGNORE INTO event (event_hash, first_seen, created_at, author, delegated_by, kind, hidden, content)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		e.Id, time.Now().Unix(), e.CreatedAt, e.Pubkey, e.DelegatedBy(), uint32(e.Kind), string(content),
	)
	if chk.E(err) {
		return
	}
	affected, err := res.RowsAffected()
	if chk.E(err) {
		return
	}
	if affected == 0 {
		outcome = WriteDuplicate
		err = tx.Commit()
		return
	}

	eventID, err := res.LastInsertId()
	if chk.E(err) {
		return
	}
	if err = insertTags(tx, eventID, e.Tags); chk.E(err) {
		return
	}
	if e.Kind.IsReplaceable() {
		if err = hideSuperseded(tx, e.Pubkey, uint32(e.Kind), e.CreatedAt, eventID); chk.E(err) {
			return
		}
	}

	if err = tx.Commit(); chk.E(err) {
		return
	}
	outcome = WriteSaved
	log.D.F("persisted event %s kind %d", e.IDHex(), e.Kind)
	return
}

func insertTags(tx *sql.Tx, eventID int64, tags event.Tags) error {
	for _, tg := range tags {
		if len(tg) < 2 {
			continue
		}
		name, value := tg[0], tg[1]
		var valText sql.NullString
		var valHex []byte
		if len(value)%2 == 0 && isLowerHex(value) {
			if b, decErr := hex.DecodeString(value); decErr == nil {
				valHex = b
			} else {
				valText = sql.NullString{String: value, Valid: true}
			}
		} else {
			valText = sql.NullString{String: value, Valid: true}
		}
		if _, err := tx.Exec(
			`INSERT INTO tag (event_id, name, value, value_hex) VALUES (?, ?, ?, ?)`,
			eventID, name, valText, valHex,
		); err != nil {
			return err
		}
	}
	return nil
}

// hideSuperseded enforces "keep only the latest event per (author,
// kind) visible" for a row that was just inserted with id keepID. It
// finds the newest of the other rows for this (author, kind) pair and
// compares it against the new row: if the new row is newest (ties
// broken by id), every other row is hidden; otherwise the new row
// itself — having arrived after a newer one was already stored — is
// the one hidden, and the existing latest is left untouched.
func hideSuperseded(tx *sql.Tx, author []byte, kind uint32, createdAt int64, keepID int64) error {
	var otherCreatedAt, otherID int64
	row := tx.QueryRow(
		`SELECT created_at, id FROM event
		 WHERE author = ? AND kind = ? AND id != ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		author, kind, keepID,
	)
	switch err := row.Scan(&otherCreatedAt, &otherID); err {
	case sql.ErrNoRows:
		return nil
	case nil:
	default:
		return err
	}

	newIsLatest := createdAt > otherCreatedAt ||
		(createdAt == otherCreatedAt && keepID > otherID)

	if newIsLatest {
		_, err := tx.Exec(
			`UPDATE event SET hidden = 1 WHERE author = ? AND kind = ? AND id != ?`,
			author, kind, keepID,
		)
		return err
	}

	_, err := tx.Exec(`UPDATE event SET hidden = 1 WHERE id = ?`, keepID)
	return err
}
