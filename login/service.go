package login

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jrsteele09/go-authcore/federation"
	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"github.com/jrsteele09/go-authcore/token"
	"github.com/jrsteele09/go-authcore/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Federation is the part of federation.Broker the login flow drives
type Federation interface {
	Begin(ctx context.Context, provider string, scopes []string, returnURL string) (string, error)
	Complete(ctx context.Context, provider, code, stateID string) (*federation.Completion, error)
}

// Sessions is the part of token.Manager the login flow drives
type Sessions interface {
	IssuePair(ctx context.Context, userID string) (*token.Pair, error)
	Revoke(ctx context.Context, signed string) (bool, error)
}

// Result is what a caller needs after a successful sign-in
type Result struct {
	User      *users.User
	Tokens    *token.Pair
	ReturnURL string
}

// Service signs users in through an external provider and out again.
type Service struct {
	federation Federation
	directory  users.Directory
	sessions   Sessions
	nowFunc    func() time.Time
	logger     zerolog.Logger
}

type ServiceOption func(*Service)

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(federation Federation, directory users.Directory, sessions Sessions, options ...ServiceOption) *Service {
	s := &Service{
		federation: federation,
		directory:  directory,
		sessions:   sessions,
		nowFunc:    time.Now,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// BeginFederatedLogin returns the provider URL to send the user agent to.
func (s *Service) BeginFederatedLogin(ctx context.Context, provider string, scopes []string, returnURL string) (string, error) {
	return s.federation.Begin(ctx, provider, scopes, returnURL)
}

// CompleteFederatedLogin finishes the provider callback, finds or creates the
// user and issues a token pair.
func (s *Service) CompleteFederatedLogin(ctx context.Context, provider, code, stateID string) (*Result, error) {
	completion, err := s.federation.Complete(ctx, provider, code, stateID)
	if err != nil {
		return nil, err
	}

	user, err := s.directory.LocateOrCreate(ctx, completion.Profile, s.nowFunc())
	if err != nil {
		return nil, errors.Wrap(err, "Service.CompleteFederatedLogin LocateOrCreate")
	}
	if user.Blocked {
		s.logger.Warn().Str("user_id", user.ID).Str("provider", completion.Profile.Provider).Msg("blocked user sign in refused")
		return nil, autherrors.ErrUserBlocked
	}

	pair, err := s.sessions.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "Service.CompleteFederatedLogin IssuePair")
	}

	s.logger.Info().Str("user_id", user.ID).Str("provider", completion.Profile.Provider).Msg("user signed in")
	return &Result{
		User:      user,
		Tokens:    pair,
		ReturnURL: completion.ReturnURL,
	}, nil
}

// Logout revokes whichever of the two tokens are given. Tokens that are
// already revoked or expired are not an error.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var errs []error
	for _, signed := range []string{accessToken, refreshToken} {
		if signed == "" {
			continue
		}
		if _, err := s.sessions.Revoke(ctx, signed); err != nil {
			errs = append(errs, err)
		}
	}
	if err := stderrors.Join(errs...); err != nil {
		return errors.Wrap(err, "Service.Logout")
	}
	return nil
}
