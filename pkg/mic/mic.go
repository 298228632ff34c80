// Package mic arbitrates exclusive ownership of the microphone between the
// home dialogue and the vision test screen.
package mic

import (
	"sync"
	"sync/atomic"
)

// Owner identifies who holds the microphone.
type Owner int32

const (
	None Owner = iota
	HomeDialogue
	VisionTest
)

// String returns the owner name.
func (o Owner) String() string {
	switch o {
	case None:
		return "none"
	case HomeDialogue:
		return "home_dialogue"
	case VisionTest:
		return "vision_test"
	default:
		return "unknown"
	}
}

// Resource is the shared microphone. Ownership changes are atomic, so there
// is never more than one owner.
type Resource struct {
	owner atomic.Int32

	mu      sync.Mutex
	revokes map[Owner][]func()
}

// New returns an unowned microphone.
func New() *Resource {
	return &Resource{revokes: make(map[Owner][]func())}
}

// Owner returns the current owner.
func (r *Resource) Owner() Owner {
	return Owner(r.owner.Load())
}

// OnRevoke registers fn to run when o loses the microphone to another owner.
func (r *Resource) OnRevoke(o Owner, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokes[o] = append(r.revokes[o], fn)
}

// Acquire takes the microphone for o, revoking the previous owner. It
// returns the owner that was displaced (None if it was free or already o).
func (r *Resource) Acquire(o Owner) Owner {
	if o == None {
		return None
	}
	for {
		prev := Owner(r.owner.Load())
		if prev == o {
			return None
		}
		if r.owner.CompareAndSwap(int32(prev), int32(o)) {
			if prev != None {
				r.notify(prev)
			}
			return prev
		}
	}
}

// TryAcquire takes the microphone only if it is free or already held by o.
func (r *Resource) TryAcquire(o Owner) bool {
	if o == None {
		return false
	}
	if r.owner.CompareAndSwap(int32(None), int32(o)) {
		return true
	}
	return r.Owner() == o
}

// Release frees the microphone if o holds it.
func (r *Resource) Release(o Owner) bool {
	if o == None {
		return false
	}
	return r.owner.CompareAndSwap(int32(o), int32(None))
}

func (r *Resource) notify(o Owner) {
	r.mu.Lock()
	hooks := append([]func(){}, r.revokes[o]...)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
