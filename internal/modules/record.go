package modules

import "sync"

// Status is the evaluation state of a module record.
type Status int

const (
	StatusPending Status = iota
	StatusEvaluating
	StatusEvaluated
	StatusFailed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusEvaluating:
		return "evaluating"
	case StatusEvaluated:
		return "evaluated"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusEvaluated || s == StatusFailed
}

// Record is one loaded module. Records are owned by a Cache; everything
// else holds them by reference.
type Record struct {
	// Path is the canonical resolved path and the cache key.
	Path string
	// Source is the file content as read.
	Source []byte
	// Imports lists the static import specifiers in source order.
	Imports []string
	// Module is the engine's compiled or evaluated form.
	Module any

	mu     sync.RWMutex
	status Status
	err    error

	done  chan struct{}
	owner *chain // guarded by the owning cache's mutex
}

func newRecord(path string, owner *chain) *Record {
	return &Record{
		Path:  path,
		done:  make(chan struct{}),
		owner: owner,
	}
}

// Status returns the current status.
func (r *Record) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Err returns the failure of a Failed record.
func (r *Record) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Done is closed once the record reaches a terminal status or is dropped
// from the cache.
func (r *Record) Done() <-chan struct{} {
	return r.done
}

func (r *Record) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func (r *Record) finish(err error) {
	r.mu.Lock()
	if err != nil {
		r.status = StatusFailed
		r.err = err
	} else {
		r.status = StatusEvaluated
	}
	r.mu.Unlock()
	close(r.done)
}
