package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/trellis/pkg/models"
)

func TestStateCodec_RoundTrip(t *testing.T) {
	codec := NewStateCodec("secret")
	state, err := codec.Encode("tenant-1", models.ConnectorAsana)
	require.NoError(t, err)

	tenantID, err := codec.Decode(state, models.ConnectorAsana)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
}

func TestStateCodec_Rejects(t *testing.T) {
	codec := NewStateCodec("secret")
	state, err := codec.Encode("tenant-1", models.ConnectorAsana)
	require.NoError(t, err)

	t.Run("other connector", func(t *testing.T) {
		_, err := codec.Decode(state, models.ConnectorClickUp)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewStateCodec("secret")
		late.now = func() time.Time { return time.Now().Add(StateTTL + time.Minute) }
		_, err := late.Decode(state, models.ConnectorAsana)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("tampered", func(t *testing.T) {
		_, err := codec.Decode(state+"x", models.ConnectorAsana)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := codec.Decode("not-a-token", models.ConnectorAsana)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestResolve(t *testing.T) {
	got, err := resolve("https://{subdomain}.zendesk.com/oauth/tokens", map[string]string{"subdomain": "acme"})
	require.NoError(t, err)
	assert.Equal(t, "https://acme.zendesk.com/oauth/tokens", got)

	got, err = resolve("{base_url}/oauth/token", map[string]string{"base_url": "https://gitlab.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://gitlab.example.com/oauth/token", got)

	_, err = resolve("https://{subdomain}.zendesk.com", map[string]string{})
	assert.ErrorIs(t, err, ErrMissingParam)
}
