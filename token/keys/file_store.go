package keys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
)

// FileSecretStore keeps the root secret in a single owner-only file.
type FileSecretStore struct {
	path string
}

var _ SecretStore = (*FileSecretStore)(nil)

func NewFileSecretStore(path string) *FileSecretStore {
	return &FileSecretStore{path: path}
}

func (s *FileSecretStore) GetRootSecret(_ context.Context) (string, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", autherrors.Wrapf(autherrors.ErrNotFound, "root secret file %s", s.path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", autherrors.ErrStoreUnavailable, s.path, err)
	}
	secret := strings.TrimSpace(string(b))
	if secret == "" {
		return "", autherrors.Wrapf(autherrors.ErrNotFound, "root secret file %s is empty", s.path)
	}
	return secret, nil
}

// PutRootSecret writes to a temporary file and hard-links it into place, so
// the secret appears atomically and an existing file is never replaced.
func (s *FileSecretStore) PutRootSecret(_ context.Context, secret string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create %s: %w", autherrors.ErrStoreUnavailable, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".rootsecret-*")
	if err != nil {
		return fmt.Errorf("%w: temp file: %w", autherrors.ErrStoreUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(secret + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write secret: %w", autherrors.ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync secret: %w", autherrors.ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close secret: %w", autherrors.ErrStoreUnavailable, err)
	}

	if err := os.Link(tmp.Name(), s.path); err != nil {
		if os.IsExist(err) {
			return autherrors.Wrapf(autherrors.ErrAlreadyExists, "root secret file %s", s.path)
		}
		return fmt.Errorf("%w: link secret: %w", autherrors.ErrStoreUnavailable, err)
	}
	return nil
}
