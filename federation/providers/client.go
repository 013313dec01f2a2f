package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
)

const maxProfileBytes = 1 << 20

// Client fetches profile documents from provider APIs.
type Client struct {
	http *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: httpClient}
}

// HTTPClient is the underlying client, shared with the token exchange.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// FetchProfile loads and normalizes the signed-in user's profile. It fails
// with ErrIncompleteProfile unless both an email and a display name are found.
func (c *Client) FetchProfile(ctx context.Context, d *Descriptor, accessToken string) (*Profile, error) {
	raw := map[string]any{}
	if err := c.GetJSON(ctx, d.ProfileURL, accessToken, d.Headers, &raw); err != nil {
		return nil, err
	}

	profile, err := d.Provider.Extract(raw)
	if err != nil {
		return nil, err
	}

	if s, ok := d.Provider.(Supplementer); ok {
		if err := s.Supplement(ctx, c, d, accessToken, profile); err != nil {
			return nil, err
		}
	}

	profile.Email = strings.TrimSpace(profile.Email)
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: %s did not return an email", autherrors.ErrIncompleteProfile, d.Name)
	}
	if profile.DisplayName == "" {
		return nil, fmt.Errorf("%w: %s did not return a name", autherrors.ErrIncompleteProfile, d.Name)
	}
	return profile, nil
}

// GetJSON performs an authenticated GET and decodes the JSON body into out.
// Transport failures, non-2xx statuses and undecodable bodies are all
// reported as ErrUpstreamProvider.
func (c *Client) GetJSON(ctx context.Context, url, accessToken string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", autherrors.ErrUpstreamProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", autherrors.ErrUpstreamProvider, req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", autherrors.ErrUpstreamProvider, req.URL.Host, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: GET %s%s returned %d", autherrors.ErrUpstreamProvider, req.URL.Host, req.URL.Path, resp.StatusCode)
	}
	// numbers stay json.Number so 64-bit provider ids keep every digit
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", autherrors.ErrUpstreamProvider, req.URL.Host, err)
	}
	return nil
}
