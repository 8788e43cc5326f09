package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phiguard/internal/audit"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, r := range []audit.Record{
		{ID: "1", PrincipalID: "a"},
		{ID: "2", PrincipalID: "b"},
		{ID: "3", PrincipalID: "a"},
	} {
		require.NoError(t, s.Emit(ctx, r))
	}

	recent, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, ids(recent))

	all, err := s.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byA, err := s.ListByPrincipal(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids(byA))

	snapshot := s.All()
	snapshot[0].ID = "mutated"
	assert.Equal(t, "1", s.All()[0].ID)
}

func ids(rs []audit.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
