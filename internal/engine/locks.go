package engine

import (
	"sync"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

// scopeLocks serializes writers per (owner, visibility) scope. Distinct
// scopes proceed in parallel; ingestion and maintenance for the same
// scope never interleave.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the given scope, creating it on first use.
// The caller must call the returned unlock function.
func (l *scopeLocks) lock(scope types.Scope) func() {
	key := scope.Key()

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
