package connectors

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/oauth"
)

// Credentials are the OAuth client credentials of one connector.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Settings configure the OAuth catalogue.
type Settings struct {
	// PublicURL is where the provider redirects back to, e.g. https://admin.example.com.
	PublicURL   string
	Credentials map[models.ConnectorType]Credentials
}

func (s Settings) redirectURL(connector models.ConnectorType) string {
	return fmt.Sprintf("%s/api/%s/oauth/callback", strings.TrimRight(s.PublicURL, "/"), connector)
}

// OAuthProviders returns the descriptor of every OAuth connector.
func OAuthProviders(settings Settings) []oauth.Provider {
	providers := []oauth.Provider{
		{
			Connector:      models.ConnectorSlack,
			AuthURL:        "https://slack.com/oauth/v2/authorize",
			TokenURL:       "https://slack.com/api/oauth.v2.access",
			AuthStyle:      oauth2.AuthStyleInParams,
			AuthParams:     map[string]string{"scope": "channels:history,channels:read,users:read,team:read"},
			AccessTokenKey: keys.SlackBotToken,
			ExtraFields:    []string{"team"},
			ConfigPaths: map[keys.Key]string{
				keys.SlackTeamID:   "token.team.id",
				keys.SlackTeamName: "token.team.name",
			},
			OwnedKeys:                 []keys.Key{keys.SlackLastSyncCursor},
			ExternalIDPath:            "token.team.id",
			MetadataPaths:             map[string]string{"team_name": "token.team.name"},
			UpdateMetadataOnReinstall: true,
			BackfillOnInstall:         true,
		},
		{
			Connector:       models.ConnectorAsana,
			AuthURL:         "https://app.asana.com/-/oauth_authorize",
			TokenURL:        "https://app.asana.com/-/oauth_token",
			AuthStyle:       oauth2.AuthStyleInParams,
			AccessTokenKey:  keys.AsanaAccessToken,
			RefreshTokenKey: keys.AsanaRefreshToken,
			ExpiresAtKey:    keys.AsanaAccessTokenExpiresAt,
			UsernameKey:     keys.AsanaUsername,
			OwnedKeys:       []keys.Key{keys.AsanaWorkspaceID},
			ExtraFields:     []string{"data"},
			ExternalIDPath:  "token.data.gid || token.data.id",
			UsernamePath:    "token.data.name",
			MetadataPaths:   map[string]string{"email": "token.data.email"},
		},
		{
			Connector:         models.ConnectorClickUp,
			AuthURL:           "https://app.clickup.com/api",
			TokenURL:          "https://api.clickup.com/api/v2/oauth/token",
			AuthStyle:         oauth2.AuthStyleInParams,
			AccessTokenKey:    keys.ClickUpAccessToken,
			IdentityURL:       "https://api.clickup.com/api/v2/team",
			RawTokenAuth:      true,
			ConfigPaths:       map[keys.Key]string{keys.ClickUpTeamID: "identity.teams[0].id"},
			ExternalIDPath:    "identity.teams[0].id",
			MetadataPaths:     map[string]string{"team_name": "identity.teams[0].name"},
			BackfillOnInstall: true,
		},
		{
			Connector:           models.ConnectorGitLab,
			AuthURL:             "{base_url}/oauth/authorize",
			TokenURL:            "{base_url}/oauth/token",
			IdentityURL:         "{base_url}/api/v4/user",
			URLParams:           map[string]keys.Key{"base_url": keys.GitLabBaseURL},
			URLDefaults:         map[string]string{"base_url": "https://gitlab.com"},
			Scopes:              []string{"read_api", "read_user"},
			AuthStyle:           oauth2.AuthStyleInParams,
			UsePKCE:             true,
			AccessTokenKey:      keys.GitLabAccessToken,
			RefreshTokenKey:     keys.GitLabRefreshToken,
			ExpiresAtKey:        keys.GitLabAccessTokenExpiresAt,
			UsernameKey:         keys.GitLabUsername,
			RefreshTokenRotates: true,
			ExternalIDPath:      "identity.id",
			UsernamePath:        "identity.username",
			MetadataPaths:       map[string]string{"base_url": "params.base_url"},
			BackfillOnInstall:   true,
		},
		{
			Connector:         models.ConnectorIntercom,
			AuthURL:           "https://app.intercom.com/oauth",
			TokenURL:          "https://api.intercom.io/auth/eagle/token",
			AuthStyle:         oauth2.AuthStyleInParams,
			AccessTokenKey:    keys.IntercomAccessToken,
			IdentityURL:       "https://api.intercom.io/me",
			ConfigPaths:       map[keys.Key]string{keys.IntercomWorkspaceID: "identity.app.id_code"},
			ExternalIDPath:    "identity.app.id_code",
			MetadataPaths:     map[string]string{"workspace_name": "identity.app.name"},
			BackfillOnInstall: true,
		},
		{
			Connector:                 models.ConnectorZendesk,
			AuthURL:                   "https://{subdomain}.zendesk.com/oauth/authorizations/new",
			TokenURL:                  "https://{subdomain}.zendesk.com/oauth/tokens",
			URLParams:                 map[string]keys.Key{"subdomain": keys.ZendeskSubdomain},
			Scopes:                    []string{"read"},
			AuthStyle:                 oauth2.AuthStyleInParams,
			AccessTokenKey:            keys.ZendeskAccessToken,
			ExternalIDPath:            "params.subdomain",
			MetadataPaths:             map[string]string{"subdomain": "params.subdomain"},
			UpdateMetadataOnReinstall: true,
			BackfillOnInstall:         true,
		},
		{
			Connector:           models.ConnectorPipedrive,
			AuthURL:             "https://oauth.pipedrive.com/oauth/authorize",
			TokenURL:            "https://oauth.pipedrive.com/oauth/token",
			AuthStyle:           oauth2.AuthStyleInHeader,
			AccessTokenKey:      keys.PipedriveAccessToken,
			RefreshTokenKey:     keys.PipedriveRefreshToken,
			ExpiresAtKey:        keys.PipedriveAccessTokenExpiresAt,
			RefreshTokenRotates: true,
			ExtraFields:         []string{"api_domain"},
			ConfigPaths:         map[keys.Key]string{keys.PipedriveAPIDomain: "token.api_domain"},
			ExternalIDPath:      "token.api_domain",
			BackfillOnInstall:   true,
		},
		{
			Connector:            models.ConnectorJira,
			AuthURL:              "https://auth.atlassian.com/authorize",
			TokenURL:             "https://auth.atlassian.com/oauth/token",
			IdentityURL:          "https://api.atlassian.com/oauth/token/accessible-resources",
			Scopes:               []string{"read:jira-work", "read:jira-user", "offline_access"},
			AuthStyle:            oauth2.AuthStyleInParams,
			AuthParams:           map[string]string{"audience": "api.atlassian.com", "prompt": "consent"},
			UsePKCE:              true,
			AccessTokenKey:       keys.JiraAccessToken,
			RefreshTokenKey:      keys.JiraRefreshToken,
			ExpiresAtKey:         keys.JiraAccessTokenExpiresAt,
			RefreshExpiresAtKey:  keys.JiraRefreshTokenExpiresAt,
			RefreshTokenRotates:  true,
			RefreshTokenLifetime: 90 * 24 * time.Hour,
			ConfigPaths: map[keys.Key]string{
				keys.JiraCloudID: "identity[0].id",
				keys.JiraSiteURL: "identity[0].url",
			},
			ExternalIDPath:            "identity[0].id",
			MetadataPaths:             map[string]string{"site_name": "identity[0].name"},
			UpdateMetadataOnReinstall: true,
			BackfillOnInstall:         true,
		},
	}

	for i := range providers {
		creds := settings.Credentials[providers[i].Connector]
		providers[i].ClientID = creds.ClientID
		providers[i].ClientSecret = creds.ClientSecret
		providers[i].RedirectURL = settings.redirectURL(providers[i].Connector)
	}
	return providers
}

// APIKeyConnectors returns the descriptor of every API-key connector.
func APIKeyConnectors() []APIKeyConnector {
	return []APIKeyConnector{
		{
			Connector:                 models.ConnectorSnowflake,
			Sensitive:                 []keys.Key{keys.SnowflakePassword, keys.SnowflakePrivateKey},
			NonSensitive:              []keys.Key{keys.SnowflakeAccount, keys.SnowflakeUsername, keys.SnowflakeWarehouse, keys.SnowflakeDatabase, keys.SnowflakeRole},
			Required:                  []keys.Key{keys.SnowflakeAccount, keys.SnowflakeUsername, keys.SnowflakeWarehouse, keys.SnowflakeDatabase},
			AnyOf:                     []keys.Key{keys.SnowflakePassword, keys.SnowflakePrivateKey},
			ExternalIDKey:             keys.SnowflakeAccount,
			MetadataKeys:              []keys.Key{keys.SnowflakeAccount, keys.SnowflakeWarehouse, keys.SnowflakeDatabase},
			UpdateMetadataOnReinstall: true,
		},
		{
			Connector:         models.ConnectorPostHog,
			Sensitive:         []keys.Key{keys.PostHogAPIKey},
			NonSensitive:      []keys.Key{keys.PostHogHost, keys.PostHogProjectID},
			Required:          []keys.Key{keys.PostHogAPIKey, keys.PostHogHost, keys.PostHogProjectID},
			ExternalIDKey:     keys.PostHogProjectID,
			MetadataKeys:      []keys.Key{keys.PostHogHost},
			BackfillOnInstall: true,
		},
		{
			Connector:         models.ConnectorPylon,
			Sensitive:         []keys.Key{keys.PylonAPIToken},
			Required:          []keys.Key{keys.PylonAPIToken},
			BackfillOnInstall: true,
		},
	}
}
