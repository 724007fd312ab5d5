package logging

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

var (
	warnedMu sync.Mutex
	warned   = make(map[uint64]struct{})
)

// WarnOnce logs msg at warn level the first time it is seen in this process.
// Repeated tile reprocessing tends to hit the same data problem over and
// over, so messages are deduplicated by their exact text. The attributes in
// args are not part of the identity.
func WarnOnce(msg string, args ...any) {
	h := xxhash.Sum64String(msg)

	warnedMu.Lock()
	_, seen := warned[h]
	if !seen {
		warned[h] = struct{}{}
	}
	warnedMu.Unlock()

	if seen {
		return
	}
	Logger().Warn(msg, args...)
}

// ResetWarnings forgets every message seen by WarnOnce.
func ResetWarnings() {
	warnedMu.Lock()
	warned = make(map[uint64]struct{})
	warnedMu.Unlock()
}
