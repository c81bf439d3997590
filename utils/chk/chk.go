// Package chk provides the two error-truthiness helpers used at nearly every
// call site in this repository: `if err = f(); chk.E(err) { return }` logs
// and reports whether an error occurred, and chk.T does the same without the
// log line for paths where the caller wants silent truthiness.
package chk

import "brokerly.dev/utils/log"

// E logs err at error level and returns true if err is non-nil.
func E(err error) bool {
	if err == nil {
		return false
	}
	log.E.F("%v", err)
	return true
}

// T returns true if err is non-nil, without logging. Used where the caller
// wants to branch on an error but will generate its own message.
func T(err error) bool {
	return err != nil
}
