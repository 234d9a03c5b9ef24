package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/megaservice/internal/model"
	"github.com/kart-io/megaservice/pkg/component/mongodb"
	mongoopts "github.com/kart-io/megaservice/pkg/options/mongodb"
)

func sampleCirculars() []model.Circular {
	return []model.Circular{
		{CircularID: "RBI/2024-25/01", Title: "KYC", Tags: []string{"kyc"}, References: []string{"RBI/2023-24/09"}},
		{CircularID: "RBI/2023-24/09", Title: "Old KYC", Tags: []string{}, References: []string{}},
		{CircularID: "RBI/2022-23/05", Title: "Fees", Tags: []string{}, References: []string{}, Bookmark: true},
	}
}

// exerciseCircularStore 对任意 CircularStore 实现执行同一组行为检查。
func exerciseCircularStore(t *testing.T, s CircularStore) {
	ctx := context.Background()

	c, err := s.GetCircular(ctx, "RBI/2024-25/01")
	require.NoError(t, err)
	assert.Equal(t, "KYC", c.Title)
	assert.False(t, c.Bookmark)

	_, err = s.GetCircular(ctx, "missing")
	assert.ErrorIs(t, err, ErrCircularNotFound)

	on, conv := true, "conv-1"
	require.NoError(t, s.UpdateCircular(ctx, "RBI/2024-25/01", CircularPatch{Bookmark: &on}))
	require.NoError(t, s.UpdateCircular(ctx, "RBI/2024-25/01", CircularPatch{ConversationID: &conv}))
	assert.ErrorIs(t, s.UpdateCircular(ctx, "missing", CircularPatch{Bookmark: &on}), ErrCircularNotFound)

	// 两次部分更新互不覆盖
	c, err = s.GetCircular(ctx, "RBI/2024-25/01")
	require.NoError(t, err)
	assert.True(t, c.Bookmark)
	assert.Equal(t, "conv-1", c.ConversationID)

	bookmarked, err := s.ListCirculars(ctx, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"RBI/2024-25/01", "RBI/2022-23/05"}, circularIDs(bookmarked))

	all, err := s.ListCirculars(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	refs, err := s.FindCirculars(ctx, []string{"RBI/2023-24/09", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"RBI/2023-24/09"}, circularIDs(refs))

	refs, err = s.FindCirculars(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func circularIDs(cs []model.Circular) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.CircularID)
	}
	return ids
}

func TestMemoryCircularStore(t *testing.T) {
	exerciseCircularStore(t, NewMemoryCircularStore(sampleCirculars()...))
}

func TestMemoryCircularStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryCircularStore(sampleCirculars()...)
	c, err := s.GetCircular(context.Background(), "RBI/2024-25/01")
	require.NoError(t, err)
	c.References[0] = "changed"

	again, err := s.GetCircular(context.Background(), "RBI/2024-25/01")
	require.NoError(t, err)
	assert.Equal(t, "RBI/2023-24/09", again.References[0])
}

func TestMongoCircularStore(t *testing.T) {
	opts := mongoopts.NewOptions()
	opts.ServerSelectionTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := mongodb.New(ctx, opts)
	if err != nil {
		t.Skipf("mongodb not available: %v", err)
	}
	defer func() { _ = client.Close(context.Background()) }()

	db := client.Client().Database("megaservice_circular_test")
	defer func() { _ = db.Drop(context.Background()) }()
	_ = db.Drop(ctx)
	s := &MongoCircularStore{coll: db.Collection(CircularsCollection)}

	docs := make([]any, 0, 3)
	for _, c := range sampleCirculars() {
		docs = append(docs, c)
	}
	_, err = s.coll.InsertMany(ctx, docs)
	require.NoError(t, err)

	exerciseCircularStore(t, s)
}
