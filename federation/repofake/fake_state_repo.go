package federationrepofake

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-authcore/federation"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
)

var (
	_ federation.StateRepo   = (*FakeStateRepo)(nil)
	_ federation.StatePurger = (*FakeStateRepo)(nil)
)

type FakeStateRepo struct {
	states map[string]*federation.State
	lock   sync.Mutex
	Err    error
}

func NewFakeStateRepo() *FakeStateRepo {
	return &FakeStateRepo{
		states: make(map[string]*federation.State),
	}
}

func (r *FakeStateRepo) Put(_ context.Context, state *federation.State) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.states[state.StateID]; ok {
		return autherrors.ErrAlreadyExists
	}
	stored := *state
	r.states[state.StateID] = &stored
	return nil
}

func (r *FakeStateRepo) Consume(_ context.Context, stateID string) (*federation.State, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	state, ok := r.states[stateID]
	if !ok {
		return nil, autherrors.ErrNotFound
	}
	delete(r.states, stateID)
	return state, nil
}

func (r *FakeStateRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var n int64
	for id, state := range r.states {
		if state.Expired(now) {
			delete(r.states, id)
			n++
		}
	}
	return n, nil
}

// Get returns a pending state without consuming it.
func (r *FakeStateRepo) Get(stateID string) (*federation.State, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	state, ok := r.states[stateID]
	if !ok {
		return nil, false
	}
	copied := *state
	return &copied, true
}

func (r *FakeStateRepo) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.states)
}
