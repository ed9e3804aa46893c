// Package connectors is the catalogue of third-party connectors and the registry the HTTP layer
// resolves them from.
package connectors

import (
	"sort"

	"github.com/Ramsey-B/trellis/pkg/configstore"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/oauth"
)

type Registry struct {
	oauth  map[models.ConnectorType]*oauth.Engine
	apiKey map[models.ConnectorType]*APIKeyFlow
}

func NewRegistry() *Registry {
	return &Registry{
		oauth:  map[models.ConnectorType]*oauth.Engine{},
		apiKey: map[models.ConnectorType]*APIKeyFlow{},
	}
}

// Build creates an engine per OAuth provider and a flow per API-key connector, and registers the
// refreshable engines with router so GetAll hands out live tokens.
func Build(settings Settings, deps oauth.Deps, router *configstore.Router) *Registry {
	registry := NewRegistry()
	for _, provider := range OAuthProviders(settings) {
		engine := oauth.NewEngine(provider, deps)
		registry.AddOAuth(engine)
		if provider.SupportsRefresh() && router != nil {
			router.RegisterRefresher(provider.AccessTokenKey, engine)
		}
	}
	for _, connector := range APIKeyConnectors() {
		registry.AddAPIKey(NewAPIKeyFlow(connector, deps.Store, deps.Installer, deps.Jobs, deps.Logger))
	}
	return registry
}

func (r *Registry) AddOAuth(engine *oauth.Engine) {
	r.oauth[engine.Provider().Connector] = engine
}

func (r *Registry) AddAPIKey(flow *APIKeyFlow) {
	r.apiKey[flow.Connector().Connector] = flow
}

func (r *Registry) OAuth(connector models.ConnectorType) (*oauth.Engine, bool) {
	engine, ok := r.oauth[connector]
	return engine, ok
}

func (r *Registry) APIKey(connector models.ConnectorType) (*APIKeyFlow, bool) {
	flow, ok := r.apiKey[connector]
	return flow, ok
}

// Connectors lists every registered connector, sorted.
func (r *Registry) Connectors() []models.ConnectorType {
	out := make([]models.ConnectorType, 0, len(r.oauth)+len(r.apiKey))
	for connector := range r.oauth {
		out = append(out, connector)
	}
	for connector := range r.apiKey {
		out = append(out, connector)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
