package secrets_test

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/secrets"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func newTestStore() *secrets.Store {
	return secrets.NewStore(secrets.Config{
		BaseURL: "mem://localhost/trellis-test/" + uuid.NewString(),
	}, getTestLogger())
}

func TestStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	tenantID := "tenant-a"

	value, err := store.Get(ctx, tenantID, keys.SlackBotToken)
	require.NoError(t, err)
	assert.Nil(t, value)

	ok, err := store.Save(ctx, tenantID, keys.SlackBotToken, "xoxb-1")
	require.NoError(t, err)
	assert.True(t, ok)

	value, err = store.Get(ctx, tenantID, keys.SlackBotToken)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "xoxb-1", *value)

	ok, err = store.Save(ctx, tenantID, keys.SlackBotToken, "xoxb-2")
	require.NoError(t, err)
	assert.True(t, ok)

	value, err = store.Get(ctx, tenantID, keys.SlackBotToken)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-2", *value)

	ok, err = store.Delete(ctx, tenantID, keys.SlackBotToken)
	require.NoError(t, err)
	assert.True(t, ok)

	value, err = store.Get(ctx, tenantID, keys.SlackBotToken)
	require.NoError(t, err)
	assert.Nil(t, value)

	// deleting a missing secret is still a success
	ok, err = store.Delete(ctx, tenantID, keys.SlackBotToken)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_GetAllIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.Save(ctx, "tenant-a", keys.GitLabAccessToken, "a-access")
	require.NoError(t, err)
	_, err = store.Save(ctx, "tenant-a", keys.GitLabRefreshToken, "a-refresh")
	require.NoError(t, err)
	_, err = store.Save(ctx, "tenant-b", keys.GitLabAccessToken, "b-access")
	require.NoError(t, err)

	all, err := store.GetAll(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"gitlab_access_token":  "a-access",
		"gitlab_refresh_token": "a-refresh",
	}, all)

	empty, err := store.GetAll(ctx, "tenant-c")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.Save(ctx, "../other", keys.SlackBotToken, "x")
	assert.ErrorIs(t, err, secrets.ErrInvalidSegment)

	_, err = store.GetAll(ctx, "a/b")
	assert.ErrorIs(t, err, secrets.ErrInvalidSegment)
}
