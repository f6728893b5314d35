package usecase

import (
	"context"
	"fmt"
	"sync"
)

// AgentLocker provides execution-level mutual exclusion per agent ID.
// The execution contract forbids two concurrent executions against the
// same agent record; executions against different agents proceed
// independently.
type AgentLocker struct {
	mu    sync.Mutex
	locks map[string]*agentMutex
}

type agentMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewAgentLocker creates a new agent locker.
func NewAgentLocker() *AgentLocker {
	return &AgentLocker{
		locks: make(map[string]*agentMutex),
	}
}

// Acquire takes the execution lock for the given agent ID. It blocks until
// the lock is acquired or the context is cancelled. Returns a release
// function that MUST be called when the execution is complete.
func (al *AgentLocker) Acquire(ctx context.Context, agentID string) (release func(), err error) {
	// Get or create the per-agent mutex.
	al.mu.Lock()
	am, ok := al.locks[agentID]
	if !ok {
		am = &agentMutex{}
		al.locks[agentID] = am
	}
	am.refCount++
	al.mu.Unlock()

	// Try to acquire the agent mutex with context cancellation support.
	acquired := make(chan struct{})
	go func() {
		am.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		// Lock acquired successfully.
		return func() {
			am.mu.Unlock()
			al.mu.Lock()
			am.refCount--
			if am.refCount == 0 {
				delete(al.locks, agentID)
			}
			al.mu.Unlock()
		}, nil

	case <-ctx.Done():
		// Context cancelled before lock acquired.
		// Must clean up: wait for the goroutine to finish acquiring,
		// then immediately release to prevent a permanently held lock.
		go func() {
			<-acquired
			am.mu.Unlock()
			al.mu.Lock()
			am.refCount--
			if am.refCount == 0 {
				delete(al.locks, agentID)
			}
			al.mu.Unlock()
		}()
		return nil, fmt.Errorf("agent lock: %w", ctx.Err())
	}
}

// ActiveCount returns the number of agents with active or pending locks.
// Intended for testing.
func (al *AgentLocker) ActiveCount() int {
	al.mu.Lock()
	defer al.mu.Unlock()
	return len(al.locks)
}
