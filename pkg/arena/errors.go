// ABOUTME: Error taxonomy for the arena, surfaced verbatim to callers
// ABOUTME: Contract violations panic instead; see assertf

package arena

import (
	"errors"
	"fmt"
)

var (
	// ErrFail is a generic, otherwise-unclassified failure.
	ErrFail = errors.New("arena: fail")

	// ErrResource means address space (or OS commit) is exhausted.
	ErrResource = errors.New("arena: resource exhausted")

	// ErrMemory means a heap-side allocation failed.
	ErrMemory = errors.New("arena: memory allocation failed")

	// ErrCommitLimit means the soft commit cap was hit.
	ErrCommitLimit = errors.New("arena: commit limit exceeded")

	// ErrParam means a contract violation was detected at a boundary
	// that chooses to report rather than panic (e.g. a size that
	// isn't a multiple of the page size, reaching a public API).
	ErrParam = errors.New("arena: invalid parameter")
)

// assertf panics on a programmer error (alignment, ownership, out-of-range
// index) the way pkg/storage/kv.go and pkg/btree/node.go panic on their
// own contract violations. Callers must not depend on recovering from it.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
