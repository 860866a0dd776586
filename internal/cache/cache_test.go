package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spigell/knot-matcher/internal/discovery"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

func setupCache(t *testing.T) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, time.Minute, zaptest.NewLogger(t)), mr
}

func TestSetGet(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	key := Key("r1", "2024.1", discovery.DefaultOptions(), "abc")

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	entry := Entry{
		Results: []discovery.MatchResult{
			{Candidate: discovery.MatchCandidate{ResponseID: "r2", Name: "Bob"}, Score: 88, Summary: "Very strong compatibility."},
		},
		Stats: discovery.Stats{Pool: 3, Matched: 1, Returned: 1},
	}
	require.NoError(t, c.Set(ctx, key, entry))
	assert.Equal(t, time.Minute, mr.TTL(key))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Results, got.Results)
	assert.Equal(t, entry.Stats, got.Stats)
	assert.False(t, got.CachedAt.IsZero())

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire")
}

func TestInvalidate(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("other", "keep"))
	require.NoError(t, c.Set(ctx, Key("a", "v", discovery.DefaultOptions(), "f"), Entry{}))
	require.NoError(t, c.Set(ctx, Key("b", "v", discovery.DefaultOptions(), "f"), Entry{}))

	require.NoError(t, c.Invalidate(ctx))
	assert.Equal(t, []string{"other"}, mr.Keys())
}

func TestUnavailable(t *testing.T) {
	ctx := context.Background()

	var nilCache *ResultCache
	_, ok, err := nilCache.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, nilCache.Set(ctx, "k", Entry{}))
	assert.NoError(t, nilCache.Invalidate(ctx))

	c, mr := setupCache(t)
	mr.Close()

	_, _, err = c.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, c.Set(ctx, "k", Entry{}))
	assert.True(t, c.warnedUnavailable.Load())
}

func TestConnectBypassesUnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	c := Connect(context.Background(), Config{Addr: addr}, zaptest.NewLogger(t))
	require.NotNil(t, c)
	assert.True(t, c.isUnavailable())
}

func TestKey(t *testing.T) {
	t.Parallel()

	opts := discovery.DefaultOptions()
	base := Key("r1", "2024.1", opts, "f")

	assert.Regexp(t, `^knot:matches:[0-9a-f]{64}$`, base)

	parallel := opts
	parallel.Workers = 8
	assert.Equal(t, base, Key("r1", "2024.1", parallel, "f"))

	stricter := opts
	stricter.MinScore = 90
	assert.NotEqual(t, base, Key("r1", "2024.1", stricter, "f"))
	assert.NotEqual(t, base, Key("r1", "2024.2", opts, "f"))
	assert.NotEqual(t, base, Key("r1", "2024.1", opts, "g"))

	seen := opts
	seen.Exclude = []string{"r3", "r2"}
	reordered := opts
	reordered.Exclude = []string{"r2", "r3", "r2"}
	assert.NotEqual(t, base, Key("r1", "2024.1", seen, "f"))
	assert.Equal(t, Key("r1", "2024.1", seen, "f"), Key("r1", "2024.1", reordered, "f"))
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := questionnaire.Response{ID: "a", Answers: map[string]questionnaire.Answer{"gender": questionnaire.NewChoice("Male")}}
	b := questionnaire.Response{ID: "b", IsComplete: true}

	f1, err := Fingerprint([]questionnaire.Response{a, b})
	require.NoError(t, err)
	f2, err := Fingerprint([]questionnaire.Response{b, a})
	require.NoError(t, err)
	assert.Equal(t, f1, f2, "pool order must not matter")

	a.Answers["gender"] = questionnaire.NewChoice("Female")
	f3, err := Fingerprint([]questionnaire.Response{a, b})
	require.NoError(t, err)
	assert.NotEqual(t, f1, f3)
}
