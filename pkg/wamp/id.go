package wamp

import (
	"fmt"
	"sync/atomic"
)

// ID is a WAMP identifier: a request, session, subscription, registration or
// publication id. Valid ids lie in [1, MaxID].
type ID uint64

// MaxID is the largest id representable as an IEEE-754 double without loss,
// which is the upper bound the protocol places on every id.
const MaxID ID = 1 << 53

// Valid reports whether id lies in the protocol's id range.
func (id ID) Valid() bool {
	return id >= 1 && id <= MaxID
}

func (id ID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// IDAllocator hands out session-scoped request ids. Ids increase strictly
// from 1 and are never repeated: once MaxID has been issued every further call
// fails with ErrIDSpaceExhausted. The zero value is ready to use and safe for
// concurrent use.
type IDAllocator struct {
	last atomic.Uint64
}

// Next returns the next request id.
func (a *IDAllocator) Next() (ID, error) {
	for {
		cur := a.last.Load()
		if cur >= uint64(MaxID) {
			return 0, ErrIDSpaceExhausted
		}
		if a.last.CompareAndSwap(cur, cur+1) {
			return ID(cur + 1), nil
		}
	}
}

// Last returns the most recently issued id, or 0 if none has been issued.
func (a *IDAllocator) Last() ID {
	return ID(a.last.Load())
}
