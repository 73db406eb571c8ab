package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Role tests ---

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("system").Valid())
	assert.False(t, Role("").Valid())
}

func TestMessageConstructors(t *testing.T) {
	before := time.Now()
	u := UserMessage("oi")
	a := AssistantMessage("olá")

	assert.Equal(t, RoleUser, u.Role)
	assert.Equal(t, "oi", u.Content)
	assert.False(t, u.Timestamp.Before(before))

	assert.Equal(t, RoleAssistant, a.Role)
	assert.Equal(t, "olá", a.Content)
}

func TestMessageJSON(t *testing.T) {
	msg := Message{Role: RoleUser, Content: "hello", Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "user", raw["role"])
	assert.Equal(t, "hello", raw["content"])
	assert.Equal(t, "2024-01-02T03:04:05Z", raw["timestamp"])
}

// --- Snapshot tests ---

func TestSnapshotLast(t *testing.T) {
	var empty Snapshot
	_, ok := empty.Last()
	assert.False(t, ok)

	s := Snapshot{Messages: []Message{UserMessage("a"), AssistantMessage("b")}}
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "b", last.Content)
}

func TestSnapshotJSONOmitsEmptyError(t *testing.T) {
	s := Snapshot{Messages: []Message{}, Status: StatusIdle}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "lastError")
	assert.Contains(t, string(data), `"status":"idle"`)
	assert.Contains(t, string(data), `"loading":false`)
}

// --- Client tests ---

func TestClientTypeValid(t *testing.T) {
	tests := []struct {
		in   ClientType
		want bool
	}{
		{ClientTypeCPF, true},
		{ClientTypeCNPJ, true},
		{"cpf", false},
		{"RG", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Valid())
		})
	}
}

func TestClientJSON(t *testing.T) {
	c := Client{ID: "c1", Name: "Acme", Type: ClientTypeCNPJ, Identifier: "00.000.000/0001-00"}
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded Client
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, c.ID, decoded.ID)
	assert.Equal(t, ClientTypeCNPJ, decoded.Type)
	assert.NotContains(t, string(data), "certificate")
}
