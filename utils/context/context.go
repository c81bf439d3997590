// Package context aliases the standard library's context types under the
// short names (T, F) used at call sites across this repository, so
// components take a context.T/context.F pair rather than importing the
// stdlib package under its own name everywhere.
package context

import "context"

// T is a context.Context.
type T = context.Context

// F is a context.CancelFunc.
type F = context.CancelFunc

// Bg returns a root, cancellable context.
func Bg() (T, F) { return context.WithCancel(context.Background()) }
