package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Ramsey-B/trellis/pkg/models"
)

const (
	// StateTTL bounds how long an inline state is accepted.
	StateTTL = 10 * time.Minute
	// PendingTTL bounds how long a server-side PKCE record lives.
	PendingTTL = 5 * time.Minute
)

// StateClaims is the payload of an inline state. The audience is the connector.
type StateClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// StateCodec signs and verifies inline states with HS256.
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewStateCodec(secret string) *StateCodec {
	return &StateCodec{secret: []byte(secret), ttl: StateTTL, now: time.Now}
}

// Encode returns a signed state for tenantID valid for connector only.
func (c *StateCodec) Encode(tenantID string, connector models.ConnectorType) (string, error) {
	now := c.now()
	claims := StateClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{connector.String()},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies state and returns its tenant id.
func (c *StateCodec) Decode(state string, connector models.ConnectorType) (string, error) {
	claims := &StateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(connector.String()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.TenantID == "" {
		return "", fmt.Errorf("%w: missing tenant", ErrInvalidState)
	}
	return claims.TenantID, nil
}

// pendingAuth is the server-side half of a PKCE flow.
type pendingAuth struct {
	TenantID  string `json:"tenant_id"`
	Connector string `json:"connector"`
	Verifier  string `json:"verifier"`
}

func (p pendingAuth) encode() (string, error) {
	data, err := json.Marshal(p)
	return string(data), err
}

func decodePending(raw string) (*pendingAuth, error) {
	var p pendingAuth
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	if p.TenantID == "" || p.Verifier == "" {
		return nil, errors.New("incomplete pending authorization")
	}
	return &p, nil
}

func stateKey(state string) string {
	return "oauth-state:" + state
}

func awaitingKey(connector models.ConnectorType, tenantID string) string {
	return fmt.Sprintf("oauth-awaiting:%s:%s", connector, tenantID)
}

func refreshLockKey(connector models.ConnectorType, tenantID string) string {
	return fmt.Sprintf("oauth-refresh:%s:%s", connector, tenantID)
}
