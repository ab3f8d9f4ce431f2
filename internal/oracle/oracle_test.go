package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pledge/internal/apperr"
	"github.com/starford/pledge/internal/market"
)

type countingSource struct {
	calls int
	value uint64
	err   error
}

func (c *countingSource) Appraise(context.Context, string) (uint64, error) {
	c.calls++
	return c.value, c.err
}

func TestStatic(t *testing.T) {
	s := NewStatic(DefaultValue, map[string]uint64{"nft-1": 42})
	ctx := context.Background()

	v, err := s.Appraise(ctx, "nft-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	v, err = s.Appraise(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, DefaultValue, v)

	s.Replace(7, map[string]uint64{"nft-2": 3})
	v, err = s.Appraise(ctx, "nft-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v, "dropped asset falls back")
	v, err = s.Appraise(ctx, "nft-2")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
}

func TestBounded(t *testing.T) {
	ctx := context.Background()
	b := Bounded{Source: NewStatic(50, map[string]uint64{"low": 5, "high": 500}), Min: 10, Max: 100}

	v, err := b.Appraise(ctx, "mid")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), v)

	_, err = b.Appraise(ctx, "low")
	assert.ErrorIs(t, err, market.ErrInvalidOraclePrice)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = b.Appraise(ctx, "high")
	assert.ErrorIs(t, err, market.ErrInvalidOraclePrice)

	unbounded := Bounded{Source: NewStatic(1<<60, nil)}
	_, err = unbounded.Appraise(ctx, "any")
	assert.NoError(t, err)
}

func TestCachedHitsSourceOnce(t *testing.T) {
	src := &countingSource{value: 9}
	c := NewCached(src, 8, time.Minute, nil)
	ctx := context.Background()

	for range 3 {
		v, err := c.Appraise(ctx, "nft-1")
		require.NoError(t, err)
		assert.Equal(t, uint64(9), v)
	}
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1, c.size())

	c.Purge()
	_, err := c.Appraise(ctx, "nft-1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachedExpires(t *testing.T) {
	src := &countingSource{value: 9}
	c := NewCached(src, 8, 20*time.Millisecond, nil)
	ctx := context.Background()

	_, err := c.Appraise(ctx, "nft-1")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = c.Appraise(ctx, "nft-1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	boom := errors.New("source down")
	src := &countingSource{err: boom}
	c := NewCached(src, 8, time.Minute, nil)

	_, err := c.Appraise(context.Background(), "nft-1")
	assert.ErrorIs(t, err, boom)
	_, err = c.Appraise(context.Background(), "nft-1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, src.calls)
	assert.Zero(t, c.size())
}

func TestNew(t *testing.T) {
	a := New(Config{Values: map[string]uint64{"nft-1": 3}, MinValue: 5, CacheTTL: time.Minute}, nil)
	assert.NotNil(t, a.cached)

	_, err := a.Appraise(context.Background(), "nft-1")
	assert.ErrorIs(t, err, market.ErrInvalidOraclePrice)

	v, err := a.Appraise(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, DefaultValue, v)

	plain := New(Config{}, nil)
	assert.Nil(t, plain.cached)
	_, isBounded := plain.chain.(Bounded)
	assert.True(t, isBounded)
}

func TestRepriceReachesCachedChain(t *testing.T) {
	o := New(Config{Values: map[string]uint64{"nft-1": 40}, MinValue: 5, CacheTTL: time.Hour}, nil)
	ctx := context.Background()

	v, err := o.Appraise(ctx, "nft-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), v)

	o.Reprice(0, map[string]uint64{"nft-1": 90, "nft-2": 2})

	v, err = o.Appraise(ctx, "nft-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(90), v, "cached price survived reprice")

	_, err = o.Appraise(ctx, "nft-2")
	assert.ErrorIs(t, err, market.ErrInvalidOraclePrice, "bounds still apply after reprice")

	v, err = o.Appraise(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, DefaultValue, v)
}
