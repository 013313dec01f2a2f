package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-authcore/federation/providers"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/users"
)

var _ users.Directory = (*FakeUserRepo)(nil)

type identityKey struct {
	provider string
	subject  string
}

type FakeUserRepo struct {
	users      map[string]*users.User
	emailIds   map[string]string // email to user id
	identities map[identityKey]*users.Identity
	lock       sync.RWMutex
	Err        error
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:      make(map[string]*users.User),
		emailIds:   make(map[string]string),
		identities: make(map[identityKey]*users.Identity),
	}
}

func (ur *FakeUserRepo) LocateOrCreate(_ context.Context, profile *providers.Profile, now time.Time) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	if ur.Err != nil {
		return nil, ur.Err
	}

	data, err := users.ProfileData(profile)
	if err != nil {
		return nil, err
	}

	key := identityKey{provider: profile.Provider, subject: profile.Subject}
	if identity, ok := ur.identities[key]; ok {
		identity.Data = data
		identity.LastSignInAt = now
		user := ur.users[identity.UserID]
		user.LastLogin = now
		copied := *user
		return &copied, nil
	}

	var user *users.User
	if id, ok := ur.emailIds[users.NormalizeEmail(profile.Email)]; ok {
		user = ur.users[id]
		user.LastLogin = now
	} else {
		user = users.NewUser(profile, now)
		ur.users[user.ID] = user
		ur.emailIds[user.Email] = user.ID
	}

	identity, err := users.NewIdentity(user.ID, profile, now)
	if err != nil {
		return nil, err
	}
	ur.identities[key] = identity

	copied := *user
	return &copied, nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	user, ok := ur.users[id]
	if !ok {
		return nil, autherrors.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (ur *FakeUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	ur.lock.RUnlock()
	if !ok {
		return nil, autherrors.ErrNotFound
	}
	return ur.GetByID(ctx, id)
}

func (ur *FakeUserRepo) ListIdentities(_ context.Context, userID string) ([]*users.Identity, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	var list []*users.Identity
	for _, identity := range ur.identities {
		if identity.UserID == userID {
			copied := *identity
			list = append(list, &copied)
		}
	}
	return list, nil
}

func (ur *FakeUserRepo) SetBlocked(_ context.Context, userID string, blocked bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	user, ok := ur.users[userID]
	if !ok {
		return autherrors.ErrNotFound
	}
	user.Blocked = blocked
	return nil
}
