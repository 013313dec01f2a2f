package keysrepofake

import (
	"context"
	"sync"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/token/keys"
)

var _ keys.SecretStore = (*FakeSecretStore)(nil)

type FakeSecretStore struct {
	secret string
	// Err, when set, is returned from every call to simulate an unreachable store.
	Err  error
	Puts int
	lock sync.Mutex
}

func NewFakeSecretStore() *FakeSecretStore {
	return &FakeSecretStore{}
}

func (s *FakeSecretStore) GetRootSecret(_ context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	if s.secret == "" {
		return "", autherrors.ErrNotFound
	}
	return s.secret, nil
}

func (s *FakeSecretStore) PutRootSecret(_ context.Context, secret string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.secret != "" {
		return autherrors.ErrAlreadyExists
	}
	s.secret = secret
	s.Puts++
	return nil
}
