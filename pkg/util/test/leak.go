// SPDX-License-Identifier: AGPL-3.0-only

package test

import (
	"testing"

	"go.uber.org/goleak"
)

// VerifyNoLeak fails the test if goroutines are still running when it ends.
// Runner subscriptions and merge goroutines must all terminate once their
// contexts are cancelled or their channels closed.
func VerifyNoLeak(t testing.TB) {
	// Run it as a cleanup function so that "last added, first called" ordering execution is guaranteed.
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})
}
