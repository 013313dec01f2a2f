package tokenfakerepo

import (
	"context"
	"sync"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

type FakeTokenRepo struct {
	tokens map[string]*token.Token
	lock   sync.RWMutex
	// Err, when set, is returned from every call to simulate a store outage.
	Err error
}

func NewFakeTokensRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		tokens: make(map[string]*token.Token),
	}
}

func (tr *FakeTokenRepo) Insert(_ context.Context, t *token.Token) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tr.Err != nil {
		return tr.Err
	}
	if _, ok := tr.tokens[t.TokenID]; ok {
		return autherrors.ErrAlreadyExists
	}

	stored := *t
	tr.tokens[t.TokenID] = &stored
	return nil
}

func (tr *FakeTokenRepo) Get(_ context.Context, tokenID string) (*token.Token, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	if tr.Err != nil {
		return nil, tr.Err
	}
	t, ok := tr.tokens[tokenID]
	if !ok {
		return nil, autherrors.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (tr *FakeTokenRepo) RevokeIfActive(_ context.Context, tokenID string) (bool, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tr.Err != nil {
		return false, tr.Err
	}
	t, ok := tr.tokens[tokenID]
	if !ok {
		return false, autherrors.ErrNotFound
	}
	if t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

// Len reports how many rows have been inserted
func (tr *FakeTokenRepo) Len() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.tokens)
}
