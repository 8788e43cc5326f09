package fieldcrypt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(Config{MasterSecret: testSecret, Production: true}, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	require.NoError(t, err)
	return e
}

func TestEncryptFields(t *testing.T) {
	engine := newTestEngine(t)
	record := map[string]any{
		"id":        "client-1",
		"ssn":       "123-45-6789",
		"diagnosis": "Asthma",
		"phone":     "",
		"age":       42,
	}

	out, err := engine.EncryptFields(context.Background(), record, []string{"ssn", "diagnosis", "phone", "age", "missing"})
	require.NoError(t, err)

	assert.Equal(t, "123-45-6789", record["ssn"], "input record must not be mutated")
	assert.Equal(t, "client-1", out["id"])
	assert.True(t, IsEncryptedFormat(out["ssn"].(string)))
	assert.True(t, IsEncryptedFormat(out["diagnosis"].(string)))
	assert.Equal(t, EmptyMarker, out["phone"])
	assert.Equal(t, 42, out["age"])
	assert.NotContains(t, out, "missing")

	back, failures := engine.DecryptFields(context.Background(), out, []string{"ssn", "diagnosis", "phone"})
	assert.Empty(t, failures)
	assert.Equal(t, "123-45-6789", back["ssn"])
	assert.Equal(t, "Asthma", back["diagnosis"])
	assert.Equal(t, "", back["phone"])
	assert.NotContains(t, back, "missing")
}

func TestEncryptFields_AllOrNothing(t *testing.T) {
	engine := newTestEngine(t, WithRandom(failingReader{}))
	record := map[string]any{"ssn": "123-45-6789", "diagnosis": "Asthma"}

	out, err := engine.EncryptFields(context.Background(), record, []string{"ssn", "diagnosis"})
	require.Error(t, err)
	assert.Nil(t, out)
}

func TestEncryptFields_CancelledContext(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.EncryptFields(ctx, map[string]any{"ssn": "123-45-6789"}, []string{"ssn"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDecryptFields_PartialFailure(t *testing.T) {
	engine := newTestEngine(t)
	good, err := engine.EncryptField("Asthma")
	require.NoError(t, err)
	bad, err := engine.EncryptField("123-45-6789")
	require.NoError(t, err)
	parts := strings.Split(bad, ":")
	parts[2] = strings.Repeat("f", tagSize*2)

	record := map[string]any{
		"diagnosis": good,
		"ssn":       strings.Join(parts, ":"),
		"email":     "legacy@example.com",
	}
	out, failures := engine.DecryptFields(context.Background(), record, []string{"diagnosis", "ssn", "email"})

	require.Len(t, failures, 1)
	assert.Equal(t, "ssn", failures[0].Field)
	assert.Equal(t, DecryptionErrorMarker, out["ssn"])
	assert.Equal(t, "Asthma", out["diagnosis"])
	assert.Equal(t, "legacy@example.com", out["email"], "legacy plaintext passes through")
}

func TestDecryptFields_DamagedHexIsMarked(t *testing.T) {
	engine := newTestEngine(t)
	token, err := engine.EncryptField("123-45-6789")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{"non hex character in ciphertext", token[:len(token)-1] + "z"},
		{"non hex character in salt", "g" + token[1:]},
		{"empty segment", strings.Join(append(strings.Split(token, ":")[:3], ""), ":")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.DecryptField(tt.value)
			require.Error(t, err)

			out, failures := engine.DecryptFields(context.Background(), map[string]any{"ssn": tt.value}, []string{"ssn"})
			require.Len(t, failures, 1)
			assert.Equal(t, "ssn", failures[0].Field)
			assert.Equal(t, DecryptionErrorMarker, out["ssn"])
		})
	}
}
