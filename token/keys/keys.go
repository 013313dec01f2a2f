package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/chacha20"
)

// JWT algorithm (string value used in JWKs and headers)
const EdDSA = "EdDSA"

// Purpose labels mixed into the root secret so each token kind gets its own keypair
const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
)

// MinRootSecretLength is the shortest root secret accepted for derivation
const MinRootSecretLength = 32

// rootSecretBytes of entropy encode to a 48 character base64url string
const rootSecretBytes = 36

// KeyPair represents a public/private key pair for signing tokens
type KeyPair struct {
	KeyID      string
	Purpose    string
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Algorithm  string
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"`           // Key type (OKP)
	Use string `json:"use,omitempty"` // sig or enc
	Kid string `json:"kid,omitempty"` // Key ID
	Alg string `json:"alg,omitempty"` // Algorithm
	Crv string `json:"crv,omitempty"` // Curve
	X   string `json:"x,omitempty"`   // Public key
}

// GenerateRootSecret returns a fresh high-entropy root secret.
func GenerateRootSecret() (string, error) {
	b := make([]byte, rootSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Derive deterministically produces the keypair for purpose from rootSecret.
// SHA-256(rootSecret || purpose) keys a ChaCha20 stream whose first 32 bytes
// become the Ed25519 seed, so identical inputs always yield identical keys.
func Derive(rootSecret, purpose string) (*KeyPair, error) {
	if len(rootSecret) < MinRootSecretLength {
		return nil, fmt.Errorf("root secret must be at least %d characters", MinRootSecretLength)
	}
	if purpose == "" {
		return nil, fmt.Errorf("purpose label is required")
	}

	seed := sha256.Sum256([]byte(rootSecret + purpose))
	stream, err := chacha20.NewUnauthenticatedCipher(seed[:], make([]byte, chacha20.NonceSize))
	if err != nil {
		return nil, fmt.Errorf("failed to seed key stream: %w", err)
	}
	keySeed := make([]byte, ed25519.SeedSize)
	stream.XORKeyStream(keySeed, keySeed)

	privateKey := ed25519.NewKeyFromSeed(keySeed)
	publicKey := privateKey.Public().(ed25519.PublicKey)

	return &KeyPair{
		KeyID:      keyIDFor(publicKey),
		Purpose:    purpose,
		PrivateKey: privateKey,
		PublicKey:  publicKey,
		Algorithm:  EdDSA,
	}, nil
}

func keyIDFor(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:8])
}

// GetSigningMethod returns the JWT signing method for this key pair
func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodEdDSA
}

// ExportPublicKeyPEM exports the public key as PEM
func (kp *KeyPair) ExportPublicKeyPEM() (string, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pubKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})

	return string(pubKeyPEM), nil
}

// ToJWK converts the key pair's public key to JWK format
func (kp *KeyPair) ToJWK() (*JWK, error) {
	jwk := &JWK{
		Kid: kp.KeyID,
		Use: "sig",
		Alg: kp.Algorithm,
	}

	switch pubKey := kp.PublicKey.(type) {
	case ed25519.PublicKey:
		jwk.Kty = "OKP"
		jwk.Crv = "Ed25519"
		jwk.X = base64.RawURLEncoding.EncodeToString(pubKey)

	default:
		return nil, fmt.Errorf("unsupported public key type")
	}

	return jwk, nil
}

// LoadPublicKeyFromPEM parses a PEM encoded Ed25519 public key, as exported by ExportPublicKeyPEM.
func LoadPublicKeyFromPEM(pemData string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not Ed25519")
	}
	return edPub, nil
}
