package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/session"
)

func gift(sender, name string, value, count int64) domain.GiftEvent {
	return domain.GiftEvent{SenderID: sender, GiftName: name, DiamondValue: value, RepeatCount: count}
}

func streak(sender, name string, value, count int64, ended bool) domain.GiftEvent {
	ev := gift(sender, name, value, count)
	ev.Streakable = true
	ev.StreakEnded = ended
	return ev
}

func TestAggregator_StreakCountsOnlyFinalEvent(t *testing.T) {
	t.Parallel()

	agg := session.NewAggregator()

	for i := int64(1); i <= 7; i++ {
		assert.False(t, agg.Apply(streak("bob", "Rose", 1, i, false)))
	}
	assert.True(t, agg.Empty())

	require.True(t, agg.Apply(streak("bob", "Rose", 1, 7, true)))

	gifts := agg.Gifts()
	require.Len(t, gifts, 1)
	assert.Equal(t, int64(7), gifts[0].Quantity)
	assert.Equal(t, int64(7), agg.TotalValue())
}

func TestAggregator_NonStreakableIsAdditive(t *testing.T) {
	t.Parallel()

	agg := session.NewAggregator()
	agg.Apply(gift("bob", "Lion", 29999, 1))
	agg.Apply(gift("ann", "Lion", 29999, 2))
	agg.Apply(gift("bob", "Lion", 29999, 1))

	gifts := agg.Gifts()
	require.Len(t, gifts, 1)
	assert.Equal(t, int64(4), gifts[0].Quantity)
	assert.Equal(t, int64(4*29999), agg.TotalValue())

	top := agg.TopSenders(domain.TopSenderLimit)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].SenderID)
	assert.Equal(t, int64(2*29999), top[0].TotalValue)
	assert.Equal(t, domain.SenderGift{Quantity: 2, Value: 29999}, top[0].Gifts["Lion"])
}

func TestAggregator_IgnoresUnusableEvents(t *testing.T) {
	t.Parallel()

	agg := session.NewAggregator()
	assert.False(t, agg.Apply(gift("bob", "Rose", 1, 0)))
	assert.False(t, agg.Apply(gift("", "Rose", 1, 1)))
	assert.False(t, agg.Apply(gift("bob", "", 1, 1)))
	assert.True(t, agg.Empty())
}

func TestAggregator_TopSendersStableOnTies(t *testing.T) {
	t.Parallel()

	agg := session.NewAggregator()
	for _, s := range []struct {
		id    string
		value int64
	}{
		{"A", 500}, {"B", 500}, {"C", 300}, {"D", 200}, {"E", 100}, {"F", 50},
	} {
		agg.Apply(gift(s.id, "Coin", s.value, 1))
	}

	top := agg.TopSenders(domain.TopSenderLimit)
	ids := make([]string, 0, len(top))
	for _, s := range top {
		ids = append(ids, s.SenderID)
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, ids)
}

func TestAggregator_TopSendersAreCopies(t *testing.T) {
	t.Parallel()

	agg := session.NewAggregator()
	agg.Apply(gift("bob", "Rose", 1, 1))

	top := agg.TopSenders(1)
	top[0].Gifts["Rose"] = domain.SenderGift{Quantity: 100}

	again := agg.TopSenders(1)
	assert.Equal(t, int64(1), again[0].Gifts["Rose"].Quantity)
}

func TestAggregator_GiftValueFixedAtFirstSight(t *testing.T) {
	t.Parallel()

	agg := session.NewAggregator()
	agg.Apply(gift("bob", "Rose", 1, 2))
	agg.Apply(gift("ann", "Rose", 5, 1))

	gifts := agg.Gifts()
	require.Len(t, gifts, 1)
	assert.Equal(t, int64(1), gifts[0].GiftValue)
	assert.Equal(t, int64(3), agg.TotalValue())
}
