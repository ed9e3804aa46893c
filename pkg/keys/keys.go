// Package keys is the closed catalogue of tenant configuration keys and their sensitivity.
//
// Sensitive keys live in the encrypted secret store, every other known key lives in the
// relational config table. A key outside the catalogue is unknown and is never routed.
package keys

// Key names one tenant configuration entry.
type Key string

func (k Key) String() string {
	return string(k)
}

// Sensitivity decides which backend stores a key.
type Sensitivity int

const (
	NonSensitive Sensitivity = iota
	Sensitive
)

// Tenant profile.
const (
	CompanyName         Key = "company_name"
	CompanyDomain       Key = "company_domain"
	CompanyContext      Key = "company_context"
	OnboardingCompleted Key = "onboarding_completed"
)

// Slack.
const (
	SlackBotToken       Key = "slack_bot_token"
	SlackTeamID         Key = "slack_team_id"
	SlackTeamName       Key = "slack_team_name"
	SlackLastSyncCursor Key = "slack_last_sync_cursor"
)

// Asana.
const (
	AsanaAccessToken          Key = "asana_access_token"
	AsanaRefreshToken         Key = "asana_refresh_token"
	AsanaAccessTokenExpiresAt Key = "asana_access_token_expires_at"
	AsanaUsername             Key = "asana_username"
	AsanaWorkspaceID          Key = "asana_workspace_id"
)

// ClickUp.
const (
	ClickUpAccessToken Key = "clickup_access_token"
	ClickUpTeamID      Key = "clickup_team_id"
)

// GitLab.
const (
	GitLabAccessToken          Key = "gitlab_access_token"
	GitLabRefreshToken         Key = "gitlab_refresh_token"
	GitLabAccessTokenExpiresAt Key = "gitlab_access_token_expires_at"
	GitLabBaseURL              Key = "gitlab_base_url"
	GitLabUsername             Key = "gitlab_username"
)

// Intercom.
const (
	IntercomAccessToken Key = "intercom_access_token"
	IntercomWorkspaceID Key = "intercom_workspace_id"
)

// Zendesk.
const (
	ZendeskAccessToken Key = "zendesk_access_token"
	ZendeskSubdomain   Key = "zendesk_subdomain"
)

// Pipedrive.
const (
	PipedriveAccessToken          Key = "pipedrive_access_token"
	PipedriveRefreshToken         Key = "pipedrive_refresh_token"
	PipedriveAccessTokenExpiresAt Key = "pipedrive_access_token_expires_at"
	PipedriveAPIDomain            Key = "pipedrive_api_domain"
)

// Jira.
const (
	JiraAccessToken           Key = "jira_access_token"
	JiraRefreshToken          Key = "jira_refresh_token"
	JiraAccessTokenExpiresAt  Key = "jira_access_token_expires_at"
	JiraRefreshTokenExpiresAt Key = "jira_refresh_token_expires_at"
	JiraCloudID               Key = "jira_cloud_id"
	JiraSiteURL               Key = "jira_site_url"
)

// Snowflake.
const (
	SnowflakePassword   Key = "snowflake_password"
	SnowflakePrivateKey Key = "snowflake_private_key"
	SnowflakeAccount    Key = "snowflake_account"
	SnowflakeUsername   Key = "snowflake_username"
	SnowflakeWarehouse  Key = "snowflake_warehouse"
	SnowflakeDatabase   Key = "snowflake_database"
	SnowflakeRole       Key = "snowflake_role"
)

// PostHog.
const (
	PostHogAPIKey    Key = "posthog_api_key"
	PostHogHost      Key = "posthog_host"
	PostHogProjectID Key = "posthog_project_id"
)

// Pylon.
const (
	PylonAPIToken Key = "pylon_api_token"
)

var catalogue = map[Key]Sensitivity{
	CompanyName:         NonSensitive,
	CompanyDomain:       NonSensitive,
	CompanyContext:      NonSensitive,
	OnboardingCompleted: NonSensitive,

	SlackBotToken:       Sensitive,
	SlackTeamID:         NonSensitive,
	SlackTeamName:       NonSensitive,
	SlackLastSyncCursor: NonSensitive,

	AsanaAccessToken:          Sensitive,
	AsanaRefreshToken:         Sensitive,
	AsanaAccessTokenExpiresAt: NonSensitive,
	AsanaUsername:             NonSensitive,
	AsanaWorkspaceID:          NonSensitive,

	ClickUpAccessToken: Sensitive,
	ClickUpTeamID:      NonSensitive,

	GitLabAccessToken:          Sensitive,
	GitLabRefreshToken:         Sensitive,
	GitLabAccessTokenExpiresAt: NonSensitive,
	GitLabBaseURL:              NonSensitive,
	GitLabUsername:             NonSensitive,

	IntercomAccessToken: Sensitive,
	IntercomWorkspaceID: NonSensitive,

	ZendeskAccessToken: Sensitive,
	ZendeskSubdomain:   NonSensitive,

	PipedriveAccessToken:          Sensitive,
	PipedriveRefreshToken:         Sensitive,
	PipedriveAccessTokenExpiresAt: NonSensitive,
	PipedriveAPIDomain:            NonSensitive,

	JiraAccessToken:           Sensitive,
	JiraRefreshToken:          Sensitive,
	JiraAccessTokenExpiresAt:  NonSensitive,
	JiraRefreshTokenExpiresAt: NonSensitive,
	JiraCloudID:               NonSensitive,
	JiraSiteURL:               NonSensitive,

	SnowflakePassword:   Sensitive,
	SnowflakePrivateKey: Sensitive,
	SnowflakeAccount:    NonSensitive,
	SnowflakeUsername:   NonSensitive,
	SnowflakeWarehouse:  NonSensitive,
	SnowflakeDatabase:   NonSensitive,
	SnowflakeRole:       NonSensitive,

	PostHogAPIKey:    Sensitive,
	PostHogHost:      NonSensitive,
	PostHogProjectID: NonSensitive,

	PylonAPIToken: Sensitive,
}

// IsSensitive reports whether key belongs in the secret store. Unknown keys are not sensitive.
func IsSensitive(key Key) bool {
	return catalogue[key] == Sensitive
}

// Known reports whether key is in the catalogue.
func Known(key Key) bool {
	_, ok := catalogue[key]
	return ok
}

// Lookup returns the sensitivity of key and whether it is known.
func Lookup(key Key) (Sensitivity, bool) {
	s, ok := catalogue[key]
	return s, ok
}

// All returns every catalogued key.
func All() []Key {
	all := make([]Key, 0, len(catalogue))
	for k := range catalogue {
		all = append(all, k)
	}
	return all
}

// TenantProfile lists the keys not owned by any connector.
func TenantProfile() []Key {
	return []Key{CompanyName, CompanyDomain, CompanyContext, OnboardingCompleted}
}
