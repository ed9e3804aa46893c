package oauth

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/models"
)

// Provider describes one OAuth connector. The Engine does the rest.
//
// URL fields may contain {name} placeholders. Each placeholder is resolved from the tenant config
// key in URLParams, falling back to URLDefaults.
type Provider struct {
	Connector models.ConnectorType

	AuthURL     string
	TokenURL    string
	URLParams   map[string]keys.Key
	URLDefaults map[string]string

	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthStyle    oauth2.AuthStyle
	// AuthParams are extra authorize query parameters, e.g. Slack's comma separated scope list.
	AuthParams map[string]string
	UsePKCE    bool

	AccessTokenKey      keys.Key
	RefreshTokenKey     keys.Key
	ExpiresAtKey        keys.Key
	RefreshExpiresAtKey keys.Key
	UsernameKey         keys.Key
	// OwnedKeys are other keys of this connector that are written outside the OAuth flow but
	// removed on disconnect.
	OwnedKeys []keys.Key

	RefreshTokenRotates bool
	// RefreshTokenLifetime sets refresh_expires_at for providers that do not report it.
	RefreshTokenLifetime time.Duration

	// ExtraFields are the token response fields exposed to the JMESPath expressions as token.<field>.
	ExtraFields []string
	// IdentityURL is fetched with the new access token and exposed as identity.
	IdentityURL string
	// RawTokenAuth sends the access token without the Bearer scheme to IdentityURL.
	RawTokenAuth bool

	ExternalIDPath string
	UsernamePath   string
	// ConfigPaths are extracted on connect and saved as tenant config.
	ConfigPaths map[keys.Key]string
	// MetadataPaths are extracted on connect and stored on the installation.
	MetadataPaths map[string]string

	UpdateMetadataOnReinstall bool
	BackfillOnInstall         bool
}

// SupportsRefresh reports whether the provider issues refresh tokens.
func (p Provider) SupportsRefresh() bool {
	return p.RefreshTokenKey != ""
}

// SensitiveKeys are the credential keys written by the flow.
func (p Provider) SensitiveKeys() []keys.Key {
	return compact(p.AccessTokenKey, p.RefreshTokenKey)
}

// NonSensitiveKeys are every other key the connector declares.
func (p Provider) NonSensitiveKeys() []keys.Key {
	out := compact(p.ExpiresAtKey, p.RefreshExpiresAtKey, p.UsernameKey)
	for _, key := range p.URLParams {
		out = append(out, key)
	}
	for key := range p.ConfigPaths {
		out = append(out, key)
	}
	out = append(out, p.OwnedKeys...)
	return dedupe(out)
}

// Keys lists every key owned by the connector.
func (p Provider) Keys() []keys.Key {
	return dedupe(append(p.SensitiveKeys(), p.NonSensitiveKeys()...))
}

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// resolve fills {name} placeholders. Unresolved names fail with ErrMissingParam.
func resolve(template string, params map[string]string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := params[name]
		if !ok || value == "" {
			missing = append(missing, name)
			return match
		}
		return strings.TrimRight(value, "/")
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, strings.Join(missing, ", "))
	}
	return out, nil
}

func compact(in ...keys.Key) []keys.Key {
	out := make([]keys.Key, 0, len(in))
	for _, k := range in {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func dedupe(in []keys.Key) []keys.Key {
	seen := make(map[keys.Key]struct{}, len(in))
	out := make([]keys.Key, 0, len(in))
	for _, k := range in {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
