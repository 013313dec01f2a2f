package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-authcore/federation"
	"github.com/jrsteele09/go-authcore/federation/providers"
	"github.com/jrsteele09/go-authcore/internal/config"
	"github.com/jrsteele09/go-authcore/login"
	"github.com/jrsteele09/go-authcore/storage/redisstore"
	"github.com/jrsteele09/go-authcore/storage/sqlstore"
	"github.com/jrsteele09/go-authcore/token"
	"github.com/jrsteele09/go-authcore/token/keys"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Usage:
//
//	authcore                                      run the maintenance daemon
//	authcore jwks                                 print the access token verification keys
//	authcore import-providers FILE                store provider configs from a JSON file
//	authcore login-url PROVIDER RETURN_URL        print a provider sign-in URL
//	authcore complete-login PROVIDER CODE STATE   finish a sign-in and print the session
//	authcore logout ACCESS [REFRESH]              revoke a session's tokens
//	authcore block-user USER_ID                   stop a user from signing in
//	authcore unblock-user USER_ID
func main() {
	c, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	configureLogging(c)

	if len(os.Args) > 1 {
		if err := runCommand(c, os.Args[1], os.Args[2:]); err != nil {
			log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
		}
		return
	}

	displayAppname(c.GetAppName())
	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("error running authcore")
	}
	log.Info().Msg("authcore stopped")
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	app, err := compose(ctx, c, s)
	if err != nil {
		return err
	}

	go maintain(ctx, c.GetStatePurgeInterval(), s, app)

	log.Info().Strs("providers", app.registry.Names()).Str("env", c.GetEnv()).Msg("authcore ready")
	waitForStopSignal()
	return nil
}

// core is everything a caller needs to run sign-ins and check sessions.
type core struct {
	registry *providers.Registry
	manager  *token.Manager
	broker   *federation.Broker
	login    *login.Service
}

func compose(ctx context.Context, c config.Config, s *stores) (*core, error) {
	material, err := keys.NewProvider(s.secrets).GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("keys.GetOrCreate: %w", err)
	}
	log.Info().Str("access_kid", material.Access.KeyID).Str("refresh_kid", material.Refresh.KeyID).Msg("key material ready")

	registry, err := loadRegistry(ctx, c, s.db)
	if err != nil {
		return nil, err
	}

	manager := newManager(c, s.tokens, material)
	broker := newBroker(c, registry, s.states)
	return &core{
		registry: registry,
		manager:  manager,
		broker:   broker,
		login:    login.NewService(broker, s.db, manager),
	}, nil
}

type stores struct {
	db      *sqlstore.Store
	redis   *redisstore.Store
	tokens  token.Repo
	states  federation.StateRepo
	secrets keys.SecretStore
}

func openStores(ctx context.Context, c config.Config) (*stores, error) {
	dialect, err := sqlstore.ParseDialect(c.GetDatabaseDriver())
	if err != nil {
		return nil, err
	}
	if dialect == sqlstore.SQLite {
		if err := os.MkdirAll(filepath.Dir(c.GetDatabaseDSN()), 0o700); err != nil {
			return nil, fmt.Errorf("database directory: %w", err)
		}
	}
	db, err := sqlstore.Open(ctx, dialect, c.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("sqlstore.Open: %w", err)
	}
	s := &stores{db: db, tokens: db, states: db, secrets: db}

	if c.GetSessionStore() == config.SessionStoreRedis {
		rs, err := redisstore.Open(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB(),
			redisstore.WithPrefix(c.GetRedisKeyPrefix()))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("redisstore.Open: %w", err)
		}
		s.redis = rs
		s.tokens, s.states, s.secrets = rs, rs, rs
	}

	if c.GetKeyFile() != "" {
		s.secrets = keys.NewFileSecretStore(c.GetKeyFile())
	}
	return s, nil
}

// healthCheck reports the first store that does not answer.
func (s *stores) healthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (s *stores) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Err(err).Msg("closing redis")
		}
	}
	if err := s.db.Close(); err != nil {
		log.Err(err).Msg("closing database")
	}
}

// loadRegistry reads provider configs from the providers file when one is
// configured, watching it for changes, and from the database otherwise.
func loadRegistry(ctx context.Context, c config.Config, db *sqlstore.Store) (*providers.Registry, error) {
	opts := []providers.RegistryOption{providers.WithUserAgent(c.GetUserAgent())}

	if path := c.GetProvidersFile(); path != "" {
		source := providers.NewFileSource(path)
		configs, err := source.Load()
		if err != nil {
			return nil, err
		}
		registry, err := providers.NewRegistry(configs, opts...)
		if err != nil {
			return nil, err
		}
		if err := source.Watch(ctx, registry); err != nil {
			return nil, err
		}
		return registry, nil
	}

	configs, err := db.ListProviderConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListProviderConfigs: %w", err)
	}
	return providers.NewRegistry(configs, opts...)
}

func newManager(c config.Config, repo token.Repo, material *keys.Material) *token.Manager {
	return token.New(repo, material,
		token.WithTokenExpiry(c.GetAccessTokenTTL(), c.GetRefreshTokenTTL()),
		token.WithRotationThreshold(c.GetRotationThreshold()),
		token.WithClockSkew(c.GetClockSkew()),
		token.WithIssuer(c.GetIssuer()),
	)
}

func newBroker(c config.Config, registry *providers.Registry, states federation.StateRepo) *federation.Broker {
	return federation.NewBroker(registry, states,
		federation.WithStateTTL(c.GetStateTTL()),
		federation.WithAllowedReturnURLs(c.GetAllowedReturnURLs()...),
		federation.WithHTTPClient(&http.Client{Timeout: c.GetProviderHTTPTimeout()}),
		federation.WithIDTokenVerification(c.GetVerifyIDTokens()),
	)
}

// maintain purges abandoned federation states, trims the revocation cache and
// checks the stores are still reachable.
func maintain(ctx context.Context, interval time.Duration, s *stores, app *core) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.healthCheck(ctx); err != nil {
				log.Warn().Err(err).Msg("store health check failed")
			}
			if _, err := app.broker.PurgeExpired(ctx); err != nil {
				log.Err(err).Msg("federation state purge failed")
			}
			app.manager.CleanupRevokedTokens()
		}
	}
}

func runCommand(c config.Config, name string, args []string) error {
	ctx := context.Background()
	s, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	switch name {
	case "import-providers":
		if len(args) != 1 {
			return errors.New("usage: authcore import-providers FILE")
		}
		return importProviders(ctx, s.db, args[0])
	case "block-user", "unblock-user":
		if len(args) != 1 {
			return fmt.Errorf("usage: authcore %s USER_ID", name)
		}
		if err := s.db.SetBlocked(ctx, args[0], name == "block-user"); err != nil {
			return err
		}
		log.Info().Str("user_id", args[0]).Bool("blocked", name == "block-user").Msg("user updated")
		return nil
	}

	app, err := compose(ctx, c, s)
	if err != nil {
		return err
	}

	switch name {
	case "jwks":
		jwks, err := app.manager.JWKS()
		if err != nil {
			return err
		}
		return printJSON(jwks)
	case "login-url":
		if len(args) != 2 {
			return errors.New("usage: authcore login-url PROVIDER RETURN_URL")
		}
		url, err := app.login.BeginFederatedLogin(ctx, args[0], nil, args[1])
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	case "complete-login":
		if len(args) != 3 {
			return errors.New("usage: authcore complete-login PROVIDER CODE STATE")
		}
		result, err := app.login.CompleteFederatedLogin(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return printJSON(result)
	case "logout":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: authcore logout ACCESS [REFRESH]")
		}
		refresh := ""
		if len(args) == 2 {
			refresh = args[1]
		}
		return app.login.Logout(ctx, args[0], refresh)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func importProviders(ctx context.Context, repo providers.ConfigRepo, path string) error {
	configs, err := providers.NewFileSource(path).Load()
	if err != nil {
		return err
	}
	// validate the whole set before writing any of it
	if _, err := providers.NewRegistry(configs); err != nil {
		return err
	}
	for _, cfg := range configs {
		if err := repo.PutProviderConfig(ctx, cfg); err != nil {
			return err
		}
		log.Info().Str("provider", cfg.Name).Msg("provider config stored")
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func configureLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
