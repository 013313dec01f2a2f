package config

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SessionStoreDatabase = "database"
	SessionStoreRedis    = "redis"
)

type StoreConfig interface {
	GetDatabaseDriver() string
	GetDatabaseDSN() string
	GetSessionStore() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
	GetKeyFile() string
}

// Store selects where data lives. Users and provider configs are always in the
// database; tokens, federation states and the root secret can be moved to Redis.
type Store struct {
	Driver         string `env:"DATABASE_DRIVER" envDefault:"sqlite" validate:"oneof=sqlite postgres"`
	DSN            string `env:"DATABASE_DSN" envDefault:"./data/authcore.db" validate:"required"`
	SessionStore   string `env:"SESSION_STORE" envDefault:"database" validate:"oneof=database redis"`
	RedisAddr      string `env:"REDIS_ADDR" validate:"required_if=SessionStore redis"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0" validate:"gte=0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"authcore:" validate:"required"`
	KeyFile        string `env:"KEY_FILE"`
}

var _ StoreConfig = Store{}

func (s Store) GetDatabaseDriver() string {
	return s.Driver
}

func (s Store) GetDatabaseDSN() string {
	return s.DSN
}

func (s Store) GetSessionStore() string {
	return s.SessionStore
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Store) GetRedisDB() int {
	return s.RedisDB
}

// GetRedisKeyPrefix namespaces every key so several deployments can share one Redis
func (s Store) GetRedisKeyPrefix() string {
	return s.RedisKeyPrefix
}

// GetKeyFile is where the root secret is kept when it should not live in the store
func (s Store) GetKeyFile() string {
	return s.KeyFile
}
