package cache

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayplan/plancache/errors"
)

func TestNewPolicy_Validation(t *testing.T) {
	t.Run("rejects empty table", func(t *testing.T) {
		_, err := NewPolicy(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})

	t.Run("rejects nonpositive TTL", func(t *testing.T) {
		_, err := NewPolicy(map[string]time.Duration{"goals": 0})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)

		_, err = NewPolicy(map[string]time.Duration{"goals": -time.Minute})
		require.Error(t, err)
	})
}

func TestPolicy_TTLFor(t *testing.T) {
	policy, err := NewPolicy(map[string]time.Duration{
		"goals":      24 * time.Hour,
		"habits":     12 * time.Hour,
		"timeBlocks": 5 * time.Minute,
	})
	require.NoError(t, err)

	ttl, err := policy.TTLFor("goals")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, ttl)

	ttl, err = policy.TTLFor("timeBlocks")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ttl)

	// The table is closed: an unmapped collection is a configuration
	// error, never a silent default.
	_, err = policy.TTLFor("unknownCollection")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownCollection)
	assert.True(t, errors.IsInvalid(err))
}

func TestPolicy_Collections(t *testing.T) {
	policy, err := NewPolicy(map[string]time.Duration{
		"goals":  24 * time.Hour,
		"habits": 12 * time.Hour,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"goals", "habits"}, policy.Collections())
}

func TestEntry_FreshnessBoundaries(t *testing.T) {
	stored := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	entry := Entry[string]{StoredAt: stored, TTL: 5 * time.Minute}

	assert.True(t, entry.IsFresh(stored), "age zero is fresh")
	assert.True(t, entry.IsFresh(stored.Add(5*time.Minute-time.Nanosecond)),
		"just under TTL is fresh")
	assert.False(t, entry.IsFresh(stored.Add(5*time.Minute)),
		"age exactly equal to TTL is stale")
	assert.False(t, entry.IsFresh(stored.Add(time.Hour)), "well past TTL is stale")
}

// Freshness is a pure function of (now, storedAt, ttl): fresh iff
// now-storedAt < ttl. Check it holds over randomized timestamps.
func TestEntry_FreshnessProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		storedAt := base.Add(time.Duration(rng.Int63n(int64(365 * 24 * time.Hour))))
		ttl := time.Duration(rng.Int63n(int64(48*time.Hour))) + time.Second
		now := storedAt.Add(time.Duration(rng.Int63n(int64(96 * time.Hour))))

		entry := Entry[int]{StoredAt: storedAt, TTL: ttl}
		want := now.Sub(storedAt) < ttl
		if entry.IsFresh(now) != want {
			t.Fatalf("freshness mismatch: storedAt=%v ttl=%v now=%v want=%t",
				storedAt, ttl, now, want)
		}
	}
}

func TestEntry_AgeLabel(t *testing.T) {
	stored := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	entry := Entry[string]{StoredAt: stored}

	cases := []struct {
		age  time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{90 * time.Second, "1 minute ago"},
		{12 * time.Minute, "12 minutes ago"},
		{time.Hour, "1 hour ago"},
		{5 * time.Hour, "5 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{72 * time.Hour, "3 days ago"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, entry.AgeLabel(stored.Add(tc.age)), "age %v", tc.age)
	}
}
