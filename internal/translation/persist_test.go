package translation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededLocal(capacity int, n int) *fakeLocal {
	s := newFakeLocal()
	s.capacity = capacity
	for i := 0; i < n; i++ {
		key := Key{VideoID: "v", Text: string(rune('a' + i))}
		s.records[key.Hash()] = Record{Key: key, Translation: "x", UpdatedAt: t0.Add(time.Duration(i) * time.Minute)}
	}
	return s
}

func TestStoreWithPrune_PrunesThenRetriesOnce(t *testing.T) {
	store := seededLocal(3, 3)
	rec := Record{Key: Key{VideoID: "v", Text: "new"}, Translation: "y", UpdatedAt: t0.Add(time.Hour)}

	require.NoError(t, StoreWithPrune(context.Background(), store, rec, 2))

	_, puts, prunes, count := store.snapshot()
	assert.Equal(t, 2, puts)
	assert.Equal(t, 1, prunes)
	assert.Equal(t, 3, count)

	_, oldest := store.records[Key{VideoID: "v", Text: "a"}.Hash()]
	assert.False(t, oldest)
	_, added := store.records[rec.Key.Hash()]
	assert.True(t, added)
}

type alwaysFull struct {
	*fakeLocal
}

func (s alwaysFull) Put(ctx context.Context, record Record) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return apperr.QuotaExceeded("disk full")
}

func TestStoreWithPrune_SecondFailureDropped(t *testing.T) {
	store := alwaysFull{seededLocal(0, 5)}
	rec := Record{Key: Key{Text: "new"}, Translation: "y", UpdatedAt: t0}

	err := StoreWithPrune(context.Background(), store, rec, 2)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindQuotaExceeded))

	_, puts, prunes, count := store.snapshot()
	assert.Equal(t, 2, puts)
	assert.Equal(t, 1, prunes)
	assert.Equal(t, 2, count)
}

type brokenStore struct {
	*fakeLocal
}

func (s brokenStore) Put(ctx context.Context, record Record) error {
	return errors.New("database is locked")
}

func TestStoreWithPrune_OtherErrorsSkipPrune(t *testing.T) {
	store := brokenStore{seededLocal(0, 2)}

	err := StoreWithPrune(context.Background(), store, Record{Key: Key{Text: "z"}}, 1)
	require.Error(t, err)
	assert.False(t, apperr.Is(err, apperr.KindQuotaExceeded))

	_, _, prunes, _ := store.snapshot()
	assert.Zero(t, prunes)
}

func TestCompact(t *testing.T) {
	store := seededLocal(0, 5)

	pruned, err := Compact(context.Background(), store, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	pruned, err = Compact(context.Background(), store, 3)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	_, _, prunes, count := store.snapshot()
	assert.Equal(t, 1, prunes)
	assert.Equal(t, 3, count)
}
