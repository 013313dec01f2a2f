package federation

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/sync/singleflight"
)

// oidcVerifiers caches one id_token verifier per issuer and client. Discovery
// for a given issuer runs at most once at a time however many callbacks race.
type oidcVerifiers struct {
	httpClient *http.Client

	mu        sync.RWMutex
	verifiers map[string]*oidc.IDTokenVerifier
	group     singleflight.Group
}

func newOIDCVerifiers(httpClient *http.Client) *oidcVerifiers {
	return &oidcVerifiers{
		httpClient: httpClient,
		verifiers:  make(map[string]*oidc.IDTokenVerifier),
	}
}

func (o *oidcVerifiers) get(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	key := issuer + "|" + clientID

	o.mu.RLock()
	v, ok := o.verifiers[key]
	o.mu.RUnlock()
	if ok {
		return v, nil
	}

	result, err, _ := o.group.Do(key, func() (any, error) {
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, o.httpClient), issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", issuer, err)
		}
		verifier := provider.Verifier(&oidc.Config{ClientID: clientID})

		o.mu.Lock()
		o.verifiers[key] = verifier
		o.mu.Unlock()
		return verifier, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*oidc.IDTokenVerifier), nil
}

type idTokenClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Nonce   string `json:"nonce"`
}

// verify checks the id_token signature, audience, expiry and nonce.
func (o *oidcVerifiers) verify(ctx context.Context, issuer, clientID, rawIDToken, nonce string) (*idTokenClaims, error) {
	verifier, err := o.get(ctx, issuer, clientID)
	if err != nil {
		return nil, err
	}

	idToken, err := verifier.Verify(oidc.ClientContext(ctx, o.httpClient), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("id token verification failed: %w", err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract id token claims: %w", err)
	}
	if claims.Nonce != nonce {
		return nil, fmt.Errorf("id token nonce mismatch")
	}
	return &claims, nil
}
