package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"phiguard/pkg/domain"
)

func TestPrincipalAccessors(t *testing.T) {
	ctx := context.Background()
	_, ok := Principal(ctx)
	assert.False(t, ok)
	assert.Empty(t, PrincipalID(ctx))
	assert.True(t, SessionID(ctx).IsNil())

	sid := domain.NewSessionID()
	ctx = WithPrincipal(ctx, domain.Principal{ID: "cg-1", Role: domain.RoleCaregiver, SessionID: sid})
	p, ok := Principal(ctx)
	assert.True(t, ok)
	assert.Equal(t, domain.RoleCaregiver, p.Role)
	assert.Equal(t, "cg-1", PrincipalID(ctx))
	assert.Equal(t, sid, SessionID(ctx))
}

func TestResolvedPrincipal(t *testing.T) {
	t.Run("inner authentication is visible through the slot", func(t *testing.T) {
		outer := WithPrincipalSlot(context.Background())
		_, ok := ResolvedPrincipal(outer)
		assert.False(t, ok)

		inner := WithPrincipal(outer, domain.Principal{ID: "om-1", Role: domain.RoleOfficeManager})
		_, ok = Principal(outer)
		assert.False(t, ok, "the outer context itself stays anonymous")

		p, ok := ResolvedPrincipal(outer)
		assert.True(t, ok)
		assert.Equal(t, "om-1", p.ID)
		assert.Equal(t, "om-1", PrincipalID(inner))
	})

	t.Run("no slot and no principal", func(t *testing.T) {
		_, ok := ResolvedPrincipal(context.Background())
		assert.False(t, ok)
	})
}

func TestNowFallsBackToWallClock(t *testing.T) {
	before := time.Now()
	assert.False(t, Now(context.Background()).Before(before))

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
}
