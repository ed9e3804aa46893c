// Package oauth runs the authorization code flow for every OAuth connector. Provider specifics
// live in a Provider descriptor; the Engine issues authorize URLs, exchanges codes, refreshes
// tokens and keeps credentials and installation bookkeeping in sync.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/Ramsey-B/trellis/pkg/configstore"
	"github.com/Ramsey-B/trellis/pkg/expressions"
	"github.com/Ramsey-B/trellis/pkg/httpclient"
	"github.com/Ramsey-B/trellis/pkg/jobs"
	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/redis"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// FlowState is where a tenant is in the connect flow of one connector.
type FlowState string

const (
	StateNotConnected      FlowState = "NOT_CONNECTED"
	StateAwaitingCallback  FlowState = "AWAITING_CALLBACK"
	StateConnected         FlowState = "CONNECTED"
	StateNeedsRefresh      FlowState = "NEEDS_REFRESH"
	StateReconnectRequired FlowState = "RECONNECT_REQUIRED"
)

const (
	// DefaultExpirySkew refreshes tokens slightly before they expire
	DefaultExpirySkew = 60 * time.Second

	refreshLockTTL  = 30 * time.Second
	refreshLockWait = 10 * time.Second
)

// Cache holds PKCE records and the awaiting-callback marker.
type Cache interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Locker serializes refreshes of one tenant's token across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, wait time.Duration, fn func(ctx context.Context) error) error
}

// Installer is the installation bookkeeping used by the flow.
type Installer interface {
	InstallConnector(ctx context.Context, params models.InstallParams) *models.ConnectorInstallation
	UninstallConnector(ctx context.Context, tenantID string, connector models.ConnectorType) bool
	MarkError(ctx context.Context, tenantID string, connector models.ConnectorType) bool
	RecoverMetadata(ctx context.Context, tenantID string, connector models.ConnectorType) models.Metadata
	Active(ctx context.Context, tenantID string, connector models.ConnectorType) *models.ConnectorInstallation
}

// Deps are shared by every engine. Jobs and Locker are optional.
type Deps struct {
	Store     configstore.Store
	Installer Installer
	Jobs      jobs.Enqueuer
	Cache     Cache
	Locker    Locker
	States    *StateCodec
	HTTP      *httpclient.Client
	Evaluator *expressions.Evaluator
	Logger    ectologger.Logger
}

type Engine struct {
	provider  Provider
	store     configstore.Store
	installer Installer
	jobs      jobs.Enqueuer
	cache     Cache
	locker    Locker
	states    *StateCodec
	http      *httpclient.Client
	evaluator *expressions.Evaluator
	logger    ectologger.Logger
	skew      time.Duration
	now       func() time.Time
}

func NewEngine(provider Provider, deps Deps) *Engine {
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = expressions.NewEvaluator()
	}
	return &Engine{
		provider:  provider,
		store:     deps.Store,
		installer: deps.Installer,
		jobs:      deps.Jobs,
		cache:     deps.Cache,
		locker:    deps.Locker,
		states:    deps.States,
		http:      deps.HTTP,
		evaluator: evaluator,
		logger:    deps.Logger,
		skew:      DefaultExpirySkew,
		now:       time.Now,
	}
}

func (e *Engine) Provider() Provider {
	return e.provider
}

// ConnectResult is returned by a successful code exchange.
type ConnectResult struct {
	TenantID     string
	Token        *oauth2.Token
	Installation *models.ConnectorInstallation
}

// StatusReport describes the connector for the settings page.
type StatusReport struct {
	Connector    models.ConnectorType          `json:"connector"`
	State        FlowState                     `json:"state"`
	Username     string                        `json:"username,omitempty"`
	ExpiresAt    *time.Time                    `json:"expires_at,omitempty"`
	Installation *models.ConnectorInstallation `json:"installation,omitempty"`
}

// BuildAuthorizationURL returns the provider authorize URL for tenantID. params are saved as
// tenant config first when they name URL placeholders (e.g. a Zendesk subdomain).
func (e *Engine) BuildAuthorizationURL(ctx context.Context, tenantID string, params map[string]string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "OAuth.BuildAuthorizationURL")
	defer span.End()
	tracing.TenantAttributes(span, tenantID, e.provider.Connector.String())

	if err := e.saveParams(ctx, tenantID, params); err != nil {
		return "", err
	}

	cfg, _, err := e.config(ctx, tenantID)
	if err != nil {
		return "", err
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(e.provider.AuthParams)+1)
	for name, value := range e.provider.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(name, value))
	}

	var state string
	ttl := StateTTL
	if e.provider.UsePKCE {
		verifier := oauth2.GenerateVerifier()
		state = uuid.NewString()
		record, err := pendingAuth{
			TenantID:  tenantID,
			Connector: e.provider.Connector.String(),
			Verifier:  verifier,
		}.encode()
		if err != nil {
			return "", err
		}
		if err := e.cache.Set(ctx, stateKey(state), record, PendingTTL); err != nil {
			tracing.RecordError(span, err, "failed to store pending authorization")
			return "", fmt.Errorf("failed to store pending authorization: %w", err)
		}
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
		ttl = PendingTTL
	} else {
		state, err = e.states.Encode(tenantID, e.provider.Connector)
		if err != nil {
			return "", fmt.Errorf("failed to sign state: %w", err)
		}
	}

	if err := e.cache.Set(ctx, awaitingKey(e.provider.Connector, tenantID), "1", ttl); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("failed to record awaiting callback")
	}

	return cfg.AuthCodeURL(state, opts...), nil
}

// ExchangeCodeForToken completes the flow started by BuildAuthorizationURL. Credentials must be
// saved for the call to succeed; installation bookkeeping and the backfill job are best effort.
func (e *Engine) ExchangeCodeForToken(ctx context.Context, code string, state string) (*ConnectResult, error) {
	ctx, span := tracing.StartSpan(ctx, "OAuth.ExchangeCodeForToken")
	defer span.End()
	connector := e.provider.Connector

	tenantID, verifier, err := e.consumeState(ctx, state)
	if err != nil {
		tracing.RecordError(span, err, "invalid state")
		return nil, err
	}
	tracing.TenantAttributes(span, tenantID, connector.String())
	logger := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"connector": connector,
	})

	cfg, params, err := e.config(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	token, err := cfg.Exchange(e.httpContext(ctx), code, opts...)
	if err != nil {
		metrics.OAuthExchangesTotal.WithLabelValues(connector.String(), "error").Inc()
		tracing.RecordError(span, err, "code exchange failed")
		return nil, e.providerError("code exchange", err)
	}

	data, err := e.responseData(ctx, token, params)
	if err != nil {
		metrics.OAuthExchangesTotal.WithLabelValues(connector.String(), "error").Inc()
		return nil, err
	}

	creds, err := e.credentials(ctx, token, data)
	if err != nil {
		metrics.OAuthExchangesTotal.WithLabelValues(connector.String(), "error").Inc()
		return nil, err
	}
	if err := e.saveAll(ctx, tenantID, creds); err != nil {
		metrics.OAuthExchangesTotal.WithLabelValues(connector.String(), "error").Inc()
		tracing.RecordError(span, err, "failed to save credentials")
		return nil, err
	}

	externalID := e.extract(ctx, e.provider.ExternalIDPath, data)
	if externalID == "" {
		externalID = tenantID
	}

	metadata := e.installer.RecoverMetadata(ctx, tenantID, connector)
	if metadata == nil {
		metadata = models.Metadata{}
	}
	for name, path := range e.provider.MetadataPaths {
		if value := e.extract(ctx, path, data); value != "" {
			metadata[name] = value
		}
	}

	installation := e.installer.InstallConnector(ctx, models.InstallParams{
		TenantID:                 tenantID,
		Type:                     connector,
		ExternalID:               externalID,
		Metadata:                 metadata,
		UpdateMetadataOnExisting: e.provider.UpdateMetadataOnReinstall,
	})

	e.clearAwaiting(ctx, tenantID)

	if e.provider.BackfillOnInstall && e.jobs != nil {
		if err := e.jobs.EnqueueBackfill(ctx, tenantID, connector); err != nil {
			logger.WithError(err).Warn("failed to enqueue backfill after connect")
		}
	}

	metrics.OAuthExchangesTotal.WithLabelValues(connector.String(), "ok").Inc()
	logger.WithField("external_id", externalID).Info("connector authorized")

	return &ConnectResult{TenantID: tenantID, Token: token, Installation: installation}, nil
}

// RefreshAccessToken runs the refresh grant and persists the result. A rejected grant returns
// ErrReconnectRequired and flags the installation; it is never retried.
func (e *Engine) RefreshAccessToken(ctx context.Context, tenantID string) (*oauth2.Token, error) {
	ctx, span := tracing.StartSpan(ctx, "OAuth.RefreshAccessToken")
	defer span.End()
	tracing.TenantAttributes(span, tenantID, e.provider.Connector.String())
	connector := e.provider.Connector.String()

	if !e.provider.SupportsRefresh() {
		return nil, ErrRefreshUnsupported
	}

	refreshToken, err := e.store.Get(ctx, tenantID, e.provider.RefreshTokenKey)
	if err != nil {
		return nil, err
	}
	if refreshToken == nil || *refreshToken == "" {
		metrics.TokenRefreshesTotal.WithLabelValues(connector, "reconnect_required").Inc()
		return nil, e.reconnectRequired(ctx, tenantID, errors.New("no refresh token stored"))
	}

	if e.provider.RefreshExpiresAtKey != "" {
		expiresAt, ok, err := e.readTime(ctx, tenantID, e.provider.RefreshExpiresAtKey)
		if err != nil {
			return nil, err
		}
		if ok && !e.now().Before(expiresAt) {
			metrics.TokenRefreshesTotal.WithLabelValues(connector, "reconnect_required").Inc()
			return nil, e.reconnectRequired(ctx, tenantID, errors.New("refresh token expired"))
		}
	}

	cfg, _, err := e.config(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	token, err := cfg.TokenSource(e.httpContext(ctx), &oauth2.Token{RefreshToken: *refreshToken}).Token()
	if err != nil {
		tracing.RecordError(span, err, "token refresh failed")
		if isInvalidGrant(err) {
			metrics.TokenRefreshesTotal.WithLabelValues(connector, "reconnect_required").Inc()
			return nil, e.reconnectRequired(ctx, tenantID, err)
		}
		metrics.TokenRefreshesTotal.WithLabelValues(connector, "error").Inc()
		return nil, e.providerError("token refresh", err)
	}

	creds := map[keys.Key]string{e.provider.AccessTokenKey: token.AccessToken}
	if e.provider.ExpiresAtKey != "" {
		if token.Expiry.IsZero() {
			// No expiry returned: a stale expires_at would trigger a refresh on every read.
			if _, err := e.store.Delete(ctx, tenantID, e.provider.ExpiresAtKey); err != nil {
				metrics.TokenRefreshesTotal.WithLabelValues(connector, "error").Inc()
				return nil, fmt.Errorf("failed to clear %s: %w", e.provider.ExpiresAtKey, err)
			}
		} else {
			creds[e.provider.ExpiresAtKey] = formatTime(token.Expiry)
		}
	}
	if e.provider.RefreshTokenRotates && token.RefreshToken != "" && token.RefreshToken != *refreshToken {
		creds[e.provider.RefreshTokenKey] = token.RefreshToken
		e.addRefreshExpiry(creds)
	}

	if err := e.saveAll(ctx, tenantID, creds); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(connector, "error").Inc()
		tracing.RecordError(span, err, "failed to save refreshed token")
		return nil, err
	}

	metrics.TokenRefreshesTotal.WithLabelValues(connector, "ok").Inc()
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"connector": connector,
		"rotated":   creds[e.provider.RefreshTokenKey] != "",
	}).Info("access token refreshed")
	return token, nil
}

// GetValidAccessToken returns an access token usable now, refreshing it when it is within the
// expiry skew. Returns nil when the tenant has no token.
func (e *Engine) GetValidAccessToken(ctx context.Context, tenantID string) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "OAuth.GetValidAccessToken")
	defer span.End()
	tracing.TenantAttributes(span, tenantID, e.provider.Connector.String())

	token, err := e.store.Get(ctx, tenantID, e.provider.AccessTokenKey)
	if err != nil {
		return nil, err
	}
	if token == nil || *token == "" {
		return nil, nil
	}

	stale, err := e.needsRefresh(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !stale || !e.provider.SupportsRefresh() {
		return token, nil
	}

	var fresh *string
	refresh := func(ctx context.Context) error {
		// Another holder may have refreshed while we waited for the lock.
		stale, err := e.needsRefresh(ctx, tenantID)
		if err != nil {
			return err
		}
		if !stale {
			fresh, err = e.store.Get(ctx, tenantID, e.provider.AccessTokenKey)
			return err
		}
		refreshed, err := e.RefreshAccessToken(ctx, tenantID)
		if err != nil {
			return err
		}
		fresh = &refreshed.AccessToken
		return nil
	}

	if e.locker == nil {
		err = refresh(ctx)
	} else {
		err = e.locker.WithLock(ctx, refreshLockKey(e.provider.Connector, tenantID), refreshLockTTL, refreshLockWait, refresh)
	}
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// Disconnect deletes every key of the connector and soft-uninstalls it. The bool reports whether
// an active installation was marked disconnected.
func (e *Engine) Disconnect(ctx context.Context, tenantID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "OAuth.Disconnect")
	defer span.End()
	tracing.TenantAttributes(span, tenantID, e.provider.Connector.String())

	for _, key := range e.provider.Keys() {
		if _, err := e.store.Delete(ctx, tenantID, key); err != nil {
			tracing.RecordError(span, err, "failed to delete credentials")
			return false, fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	e.clearAwaiting(ctx, tenantID)

	return e.installer.UninstallConnector(ctx, tenantID, e.provider.Connector), nil
}

// Status reports the flow state without contacting the provider.
func (e *Engine) Status(ctx context.Context, tenantID string) (*StatusReport, error) {
	ctx, span := tracing.StartSpan(ctx, "OAuth.Status")
	defer span.End()

	report := &StatusReport{Connector: e.provider.Connector, State: StateNotConnected}
	report.Installation = e.installer.Active(ctx, tenantID, e.provider.Connector)

	token, err := e.store.Get(ctx, tenantID, e.provider.AccessTokenKey)
	if err != nil {
		return nil, err
	}
	if token == nil || *token == "" {
		if _, err := e.cache.Get(ctx, awaitingKey(e.provider.Connector, tenantID)); err == nil {
			report.State = StateAwaitingCallback
		} else if !errors.Is(err, redis.ErrNotFound) {
			e.logger.WithContext(ctx).WithError(err).Warn("failed to read awaiting callback marker")
		}
		return report, nil
	}

	if e.provider.UsernameKey != "" {
		if username, err := e.store.Get(ctx, tenantID, e.provider.UsernameKey); err == nil && username != nil {
			report.Username = *username
		}
	}

	if report.Installation != nil && report.Installation.Status == models.InstallationError {
		report.State = StateReconnectRequired
		return report, nil
	}

	report.State = StateConnected
	if e.provider.ExpiresAtKey == "" {
		return report, nil
	}
	expiresAt, ok, err := e.readTime(ctx, tenantID, e.provider.ExpiresAtKey)
	if err != nil {
		return nil, err
	}
	if ok {
		report.ExpiresAt = &expiresAt
		if !e.now().Before(expiresAt.Add(-e.skew)) {
			report.State = StateNeedsRefresh
			if !e.provider.SupportsRefresh() {
				report.State = StateReconnectRequired
			}
		}
	}
	return report, nil
}

func (e *Engine) consumeState(ctx context.Context, state string) (string, string, error) {
	if state == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidState)
	}
	if !e.provider.UsePKCE {
		tenantID, err := e.states.Decode(state, e.provider.Connector)
		return tenantID, "", err
	}

	raw, err := e.cache.GetDel(ctx, stateKey(state))
	if errors.Is(err, redis.ErrNotFound) {
		return "", "", fmt.Errorf("%w: unknown or expired", ErrInvalidState)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to load pending authorization: %w", err)
	}
	pending, err := decodePending(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if pending.Connector != e.provider.Connector.String() {
		return "", "", fmt.Errorf("%w: issued for %s", ErrInvalidState, pending.Connector)
	}
	return pending.TenantID, pending.Verifier, nil
}

func (e *Engine) saveParams(ctx context.Context, tenantID string, params map[string]string) error {
	creds := make(map[keys.Key]string, len(params))
	for name, value := range params {
		key, ok := e.provider.URLParams[name]
		if !ok || value == "" {
			continue
		}
		creds[key] = value
	}
	return e.saveAll(ctx, tenantID, creds)
}

// config builds the oauth2 config with URL placeholders resolved for tenantID.
func (e *Engine) config(ctx context.Context, tenantID string) (*oauth2.Config, map[string]string, error) {
	params := make(map[string]string, len(e.provider.URLParams))
	for name, value := range e.provider.URLDefaults {
		params[name] = value
	}
	for name, key := range e.provider.URLParams {
		value, err := e.store.Get(ctx, tenantID, key)
		if err != nil {
			return nil, nil, err
		}
		if value != nil && *value != "" {
			params[name] = *value
		}
	}

	authURL, err := resolve(e.provider.AuthURL, params)
	if err != nil {
		return nil, nil, err
	}
	tokenURL, err := resolve(e.provider.TokenURL, params)
	if err != nil {
		return nil, nil, err
	}

	return &oauth2.Config{
		ClientID:     e.provider.ClientID,
		ClientSecret: e.provider.ClientSecret,
		RedirectURL:  e.provider.RedirectURL,
		Scopes:       e.provider.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: e.provider.AuthStyle,
		},
	}, params, nil
}

func (e *Engine) httpContext(ctx context.Context) context.Context {
	if e.http == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.http.HTTPClient())
}

// responseData is the document the descriptor's JMESPath expressions run against:
// {token: <extra fields>, params: <url params>, identity: <IdentityURL response>}.
func (e *Engine) responseData(ctx context.Context, token *oauth2.Token, params map[string]string) (map[string]any, error) {
	extras := make(map[string]any, len(e.provider.ExtraFields))
	for _, field := range e.provider.ExtraFields {
		if value := token.Extra(field); value != nil {
			extras[field] = value
		}
	}
	paramValues := make(map[string]any, len(params))
	for name, value := range params {
		paramValues[name] = value
	}
	data := map[string]any{"token": extras, "params": paramValues}

	if e.provider.IdentityURL == "" {
		return data, nil
	}

	identityURL, err := resolve(e.provider.IdentityURL, params)
	if err != nil {
		return nil, err
	}
	authorization := "Bearer " + token.AccessToken
	if e.provider.RawTokenAuth {
		authorization = token.AccessToken
	}
	resp, err := e.http.Get(ctx, identityURL, map[string]string{
		"Authorization": authorization,
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s identity request: %v", ErrProviderRequest, e.provider.Connector, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s identity request returned %d: %s", ErrProviderRequest, e.provider.Connector, resp.StatusCode, truncate(string(resp.Body)))
	}
	var identity any
	if err := resp.JSON(&identity); err != nil {
		return nil, fmt.Errorf("%w: %s identity response: %v", ErrProviderRequest, e.provider.Connector, err)
	}
	data["identity"] = identity
	return data, nil
}

func (e *Engine) credentials(ctx context.Context, token *oauth2.Token, data map[string]any) (map[keys.Key]string, error) {
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s token response has no access token", ErrProviderRequest, e.provider.Connector)
	}

	creds := map[keys.Key]string{e.provider.AccessTokenKey: token.AccessToken}
	if e.provider.RefreshTokenKey != "" && token.RefreshToken != "" {
		creds[e.provider.RefreshTokenKey] = token.RefreshToken
		e.addRefreshExpiry(creds)
	}
	if e.provider.ExpiresAtKey != "" && !token.Expiry.IsZero() {
		creds[e.provider.ExpiresAtKey] = formatTime(token.Expiry)
	}
	if e.provider.UsernameKey != "" && e.provider.UsernamePath != "" {
		if username := e.extract(ctx, e.provider.UsernamePath, data); username != "" {
			creds[e.provider.UsernameKey] = username
		}
	}
	for key, path := range e.provider.ConfigPaths {
		if value := e.extract(ctx, path, data); value != "" {
			creds[key] = value
		}
	}
	return creds, nil
}

func (e *Engine) addRefreshExpiry(creds map[keys.Key]string) {
	if e.provider.RefreshExpiresAtKey != "" && e.provider.RefreshTokenLifetime > 0 {
		creds[e.provider.RefreshExpiresAtKey] = formatTime(e.now().Add(e.provider.RefreshTokenLifetime))
	}
}

func (e *Engine) extract(ctx context.Context, path string, data map[string]any) string {
	if path == "" {
		return ""
	}
	value, err := e.evaluator.EvaluateString(path, data)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("connector", e.provider.Connector).Warnf("failed to evaluate %q", path)
		return ""
	}
	return value
}

// saveAll writes every value through the router. A false save is an error.
func (e *Engine) saveAll(ctx context.Context, tenantID string, values map[keys.Key]string) error {
	for key, value := range values {
		ok, err := e.store.Save(ctx, tenantID, key, value)
		if err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrSaveFailed, key)
		}
	}
	return nil
}

func (e *Engine) needsRefresh(ctx context.Context, tenantID string) (bool, error) {
	if e.provider.ExpiresAtKey == "" {
		return false, nil
	}
	expiresAt, ok, err := e.readTime(ctx, tenantID, e.provider.ExpiresAtKey)
	if err != nil || !ok {
		return false, err
	}
	return !e.now().Before(expiresAt.Add(-e.skew)), nil
}

// readTime reads an RFC 3339 or unix-seconds timestamp. ok is false when it is absent or unparsable.
func (e *Engine) readTime(ctx context.Context, tenantID string, key keys.Key) (time.Time, bool, error) {
	value, err := e.store.Get(ctx, tenantID, key)
	if err != nil {
		return time.Time{}, false, err
	}
	if value == nil || *value == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, *value); err == nil {
		return t, true, nil
	}
	if seconds, err := strconv.ParseInt(*value, 10, 64); err == nil {
		return time.Unix(seconds, 0), true, nil
	}
	e.logger.WithContext(ctx).WithField("key", key).Warn("unparsable timestamp in tenant config")
	return time.Time{}, false, nil
}

func (e *Engine) reconnectRequired(ctx context.Context, tenantID string, cause error) error {
	e.installer.MarkError(ctx, tenantID, e.provider.Connector)
	e.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"tenant_id": tenantID,
		"connector": e.provider.Connector,
	}).Warn("refresh grant rejected, reconnect required")
	return fmt.Errorf("%w: %s: %v", ErrReconnectRequired, e.provider.Connector, cause)
}

func (e *Engine) providerError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrProviderRequest, e.provider.Connector, op,
			retrieveErr.Response.StatusCode, truncate(string(retrieveErr.Body)))
	}
	return fmt.Errorf("%w: %s %s: %v", ErrProviderRequest, e.provider.Connector, op, err)
}

func (e *Engine) clearAwaiting(ctx context.Context, tenantID string) {
	if err := e.cache.Del(ctx, awaitingKey(e.provider.Connector, tenantID)); err != nil {
		e.logger.WithContext(ctx).WithError(err).Debug("failed to clear awaiting callback marker")
	}
}

// isInvalidGrant reports whether the token endpoint rejected the grant itself.
func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if retrieveErr.ErrorCode == "invalid_grant" {
		return true
	}
	if retrieveErr.Response == nil {
		return false
	}
	return retrieveErr.Response.StatusCode == 400 || retrieveErr.Response.StatusCode == 401
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string) string {
	const limit = 256
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
