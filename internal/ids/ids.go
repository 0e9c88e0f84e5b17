// Package ids generates row identifiers that are unique within a running
// process: a nanosecond timestamp plus an atomic counter, hex-encoded, so
// two calls in the same instant still differ. Identifiers are only ever
// looked up in one local database, so no cross-machine uniqueness is
// claimed.
package ids

import (
	"fmt"
	"sync/atomic"
	"time"
)

var counter atomic.Uint32

func New() string {
	ts := time.Now().UnixNano()
	n := counter.Add(1)
	return fmt.Sprintf("%x%x", ts, n)
}
