package token

import "context"

// Repo persists token rows. Rows are only ever inserted or flipped to revoked.
type Repo interface {
	Insert(ctx context.Context, t *Token) error
	// Get returns ErrNotFound when no row exists for tokenID.
	Get(ctx context.Context, tokenID string) (*Token, error)
	// RevokeIfActive atomically sets revoked on an unrevoked row and reports
	// whether this call made the transition. ErrNotFound when absent.
	RevokeIfActive(ctx context.Context, tokenID string) (bool, error)
}
