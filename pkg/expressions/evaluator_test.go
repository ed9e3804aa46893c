package expressions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestEvaluateString(t *testing.T) {
	e := NewEvaluator()
	data := decode(t, `{"token":{"team":{"id":"T123","name":"Acme"}},"identity":[{"id":"cloud-1"}],"user":{"id":42}}`)

	tests := []struct {
		name       string
		expression string
		want       string
	}{
		{"nested string", "token.team.id", "T123"},
		{"array index", "identity[0].id", "cloud-1"},
		{"integer", "user.id", "42"},
		{"missing", "token.missing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EvaluateString(tt.expression, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateMap(t *testing.T) {
	e := NewEvaluator()
	data := decode(t, `{"team":{"id":"T1","name":"Acme"}}`)

	got, err := e.EvaluateMap(map[string]string{
		"team_id":   "team.id",
		"team_name": "team.name",
		"absent":    "team.nothing",
	}, data)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"team_id": "T1", "team_name": "Acme"}, got)
}

func TestInvalidExpression(t *testing.T) {
	e := NewEvaluator()
	assert.Error(t, e.Validate("team.[id"))
	_, err := e.EvaluateString("team.[id", map[string]any{})
	assert.Error(t, err)
}
