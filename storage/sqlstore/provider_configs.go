package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-authcore/federation/providers"
)

var _ providers.ConfigRepo = (*Store)(nil)

func (s *Store) ListProviderConfigs(ctx context.Context) ([]providers.Config, error) {
	rows, err := s.query(ctx, s.db, `SELECT config FROM provider_configs ORDER BY name;`)
	if err != nil {
		return nil, unavailable("list provider configs", err)
	}
	defer rows.Close()

	var configs []providers.Config
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, unavailable("scan provider config", err)
		}
		var cfg providers.Config
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, fmt.Errorf("decode provider config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list provider configs", err)
	}
	return configs, nil
}

// PutProviderConfig inserts or replaces the config stored under cfg.Name.
func (s *Store) PutProviderConfig(ctx context.Context, cfg providers.Config) error {
	cfg.Name = strings.ToLower(strings.TrimSpace(cfg.Name))
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode provider config: %w", err)
	}
	_, err = s.exec(ctx, s.db, `
		INSERT INTO provider_configs (name, config, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at;`,
		cfg.Name,
		string(raw),
		time.Now().Unix(),
	)
	if err != nil {
		return unavailable("put provider config", err)
	}
	return nil
}
