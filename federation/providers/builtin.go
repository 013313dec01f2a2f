package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	autherrors "github.com/jrsteele09/go-authcore/internal/errors"
	"golang.org/x/oauth2"
)

const (
	Amazon    = "amazon"
	Facebook  = "facebook"
	GitHub    = "github"
	Google    = "google"
	Instagram = "instagram"
	LinkedIn  = "linkedin"
	Microsoft = "microsoft"
	Reddit    = "reddit"
	TikTok    = "tiktok"
	Twitch    = "twitch"
	Twitter   = "twitter"
)

type builtin struct {
	name      string
	endpoints Endpoints
	headers   func(cfg Config) map[string]string
	extract   func(raw map[string]any) *Profile
}

var _ Provider = (*builtin)(nil)

func (b *builtin) Name() string {
	return b.name
}

func (b *builtin) Defaults() Endpoints {
	e := b.endpoints
	e.Scopes = append([]string(nil), b.endpoints.Scopes...)
	return e
}

func (b *builtin) Headers(cfg Config) map[string]string {
	if b.headers == nil {
		return nil
	}
	return b.headers(cfg)
}

func (b *builtin) Extract(raw map[string]any) (*Profile, error) {
	p := b.extract(raw)
	if p.Subject == "" {
		return nil, fmt.Errorf("%w: %s profile has no user id", autherrors.ErrIncompleteProfile, b.name)
	}
	p.Provider = b.name
	p.Raw = raw
	return p, nil
}

// github needs a second call to find a verified address
type github struct {
	builtin
}

var _ Supplementer = (*github)(nil)

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Supplement replaces the profile email with the account's primary verified
// address. The public profile email is never trusted on its own.
func (g *github) Supplement(ctx context.Context, client *Client, d *Descriptor, accessToken string, profile *Profile) error {
	var emails []githubEmail
	if err := client.GetJSON(ctx, strings.TrimSuffix(d.ProfileURL, "/")+"/emails", accessToken, d.Headers, &emails); err != nil {
		return err
	}
	profile.Email = ""
	for _, e := range emails {
		if e.Primary && e.Verified {
			profile.Email = e.Email
			break
		}
	}
	return nil
}

var builtins = map[string]Provider{
	Amazon: &builtin{
		name: Amazon,
		endpoints: Endpoints{
			AuthURL:    "https://www.amazon.com/ap/oa",
			TokenURL:   "https://api.amazon.com/auth/o2/token",
			ProfileURL: "https://api.amazon.com/user/profile",
			Scopes:     []string{"profile"},
		},
		extract: func(raw map[string]any) *Profile {
			return &Profile{
				Subject:     str(raw, "user_id"),
				Email:       str(raw, "email"),
				DisplayName: str(raw, "name"),
			}
		},
	},
	Facebook: &builtin{
		name: Facebook,
		endpoints: Endpoints{
			AuthURL:    "https://www.facebook.com/v19.0/dialog/oauth",
			TokenURL:   "https://graph.facebook.com/v19.0/oauth/access_token",
			ProfileURL: "https://graph.facebook.com/me?fields=id,name,email",
			Scopes:     []string{"email", "public_profile"},
		},
		extract: func(raw map[string]any) *Profile {
			id := str(raw, "id")
			return &Profile{
				Subject:     id,
				Email:       firstNonEmpty(str(raw, "email"), placeholderFor(id, Facebook)),
				DisplayName: str(raw, "name"),
			}
		},
	},
	GitHub: &github{builtin{
		name: GitHub,
		endpoints: Endpoints{
			AuthURL:    "https://github.com/login/oauth/authorize",
			TokenURL:   "https://github.com/login/oauth/access_token",
			ProfileURL: "https://api.github.com/user",
			Scopes:     []string{"read:user", "user:email"},
			AuthStyle:  oauth2.AuthStyleInParams,
		},
		headers: func(Config) map[string]string {
			return map[string]string{"Accept": "application/vnd.github+json"}
		},
		extract: func(raw map[string]any) *Profile {
			return &Profile{
				Subject:     str(raw, "id"),
				DisplayName: firstNonEmpty(str(raw, "name"), str(raw, "login")),
			}
		},
	}},
	Google: &builtin{
		name: Google,
		endpoints: Endpoints{
			AuthURL:    "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:   "https://oauth2.googleapis.com/token",
			ProfileURL: "https://openidconnect.googleapis.com/v1/userinfo",
			Issuer:     "https://accounts.google.com",
			Scopes:     []string{"openid", "email", "profile"},
		},
		extract: func(raw map[string]any) *Profile {
			fullName := strings.TrimSpace(str(raw, "given_name") + " " + str(raw, "family_name"))
			return &Profile{
				Subject:     str(raw, "sub"),
				Email:       str(raw, "email"),
				DisplayName: firstNonEmpty(str(raw, "name"), fullName),
			}
		},
	},
	Instagram: &builtin{
		name: Instagram,
		endpoints: Endpoints{
			AuthURL:    "https://api.instagram.com/oauth/authorize",
			TokenURL:   "https://api.instagram.com/oauth/access_token",
			ProfileURL: "https://graph.instagram.com/me?fields=id,username",
			Scopes:     []string{"user_profile"},
			AuthStyle:  oauth2.AuthStyleInParams,
		},
		extract: func(raw map[string]any) *Profile {
			id := str(raw, "id")
			return &Profile{
				Subject:     id,
				Email:       placeholderFor(id, Instagram),
				DisplayName: firstNonEmpty(str(raw, "full_name"), str(raw, "name"), str(raw, "username")),
			}
		},
	},
	LinkedIn: &builtin{
		name: LinkedIn,
		endpoints: Endpoints{
			AuthURL:    "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:   "https://www.linkedin.com/oauth/v2/accessToken",
			ProfileURL: "https://api.linkedin.com/v2/userinfo",
			Scopes:     []string{"openid", "profile", "email"},
			AuthStyle:  oauth2.AuthStyleInParams,
		},
		extract: func(raw map[string]any) *Profile {
			return &Profile{
				Subject:     str(raw, "sub"),
				Email:       str(raw, "email"),
				DisplayName: str(raw, "name"),
			}
		},
	},
	Microsoft: &builtin{
		name: Microsoft,
		endpoints: Endpoints{
			AuthURL:    "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL:   "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			ProfileURL: "https://graph.microsoft.com/v1.0/me",
			Scopes:     []string{"openid", "email", "profile", "User.Read"},
		},
		extract: func(raw map[string]any) *Profile {
			return &Profile{
				Subject:     str(raw, "id"),
				Email:       firstNonEmpty(str(raw, "mail"), str(raw, "userPrincipalName")),
				DisplayName: str(raw, "displayName"),
			}
		},
	},
	Reddit: &builtin{
		name: Reddit,
		endpoints: Endpoints{
			AuthURL:    "https://www.reddit.com/api/v1/authorize",
			TokenURL:   "https://www.reddit.com/api/v1/access_token",
			ProfileURL: "https://oauth.reddit.com/api/v1/me",
			Scopes:     []string{"identity"},
			AuthStyle:  oauth2.AuthStyleInHeader,
		},
		extract: func(raw map[string]any) *Profile {
			id := str(raw, "id")
			return &Profile{
				Subject:     id,
				Email:       placeholderFor(id, Reddit),
				DisplayName: str(raw, "name"),
			}
		},
	},
	TikTok: &builtin{
		name: TikTok,
		endpoints: Endpoints{
			AuthURL:    "https://www.tiktok.com/v2/auth/authorize/",
			TokenURL:   "https://open.tiktokapis.com/v2/oauth/token/",
			ProfileURL: "https://open.tiktokapis.com/v2/user/info/?fields=open_id,union_id,display_name,avatar_url",
			Scopes:     []string{"user.info.basic"},
			AuthStyle:  oauth2.AuthStyleInParams,
		},
		extract: func(raw map[string]any) *Profile {
			id := str(raw, "data", "user", "open_id")
			return &Profile{
				Subject:     id,
				Email:       placeholderFor(id, TikTok),
				DisplayName: str(raw, "data", "user", "display_name"),
			}
		},
	},
	Twitch: &builtin{
		name: Twitch,
		endpoints: Endpoints{
			AuthURL:    "https://id.twitch.tv/oauth2/authorize",
			TokenURL:   "https://id.twitch.tv/oauth2/token",
			ProfileURL: "https://api.twitch.tv/helix/users",
			Scopes:     []string{"user:read:email"},
			AuthStyle:  oauth2.AuthStyleInParams,
		},
		headers: func(cfg Config) map[string]string {
			return map[string]string{"Client-Id": cfg.ClientID}
		},
		extract: func(raw map[string]any) *Profile {
			return &Profile{
				Subject:     str(raw, "data", "0", "id"),
				Email:       str(raw, "data", "0", "email"),
				DisplayName: firstNonEmpty(str(raw, "data", "0", "display_name"), str(raw, "data", "0", "login")),
			}
		},
	},
	Twitter: &builtin{
		name: Twitter,
		endpoints: Endpoints{
			AuthURL:      "https://x.com/i/oauth2/authorize",
			TokenURL:     "https://api.x.com/2/oauth2/token",
			ProfileURL:   "https://api.x.com/2/users/me",
			Scopes:       []string{"users.read", "tweet.read"},
			RequiresPKCE: true,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		extract: func(raw map[string]any) *Profile {
			id := str(raw, "data", "id")
			return &Profile{
				Subject:     id,
				Email:       placeholderFor(id, Twitter),
				DisplayName: firstNonEmpty(str(raw, "data", "name"), str(raw, "data", "username")),
			}
		},
	},
}

func placeholderFor(subject, provider string) string {
	if subject == "" {
		return ""
	}
	return placeholderEmail(subject, provider)
}

// Builtin returns the built-in provider registered under name.
func Builtin(name string) (Provider, error) {
	p, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", autherrors.ErrUnknownProvider, name)
	}
	return p, nil
}

// BuiltinNames lists every provider this package knows about
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
