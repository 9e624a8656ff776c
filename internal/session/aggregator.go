package session

import (
	"maps"
	"sort"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

// Aggregator folds gift events into per-gift and per-sender totals.
// It is not safe for concurrent use; Session serializes access.
type Aggregator struct {
	gifts       map[string]*domain.GiftTotal
	giftOrder   []string
	senders     map[string]*domain.SenderTotal
	senderOrder []string
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		gifts:   make(map[string]*domain.GiftTotal),
		senders: make(map[string]*domain.SenderTotal),
	}
}

// Apply adds a final gift event to the totals and reports whether it counted.
// Mid-streak events only carry a running display count and are skipped.
func (a *Aggregator) Apply(ev domain.GiftEvent) bool {
	if !ev.Final() || ev.RepeatCount <= 0 || ev.GiftName == "" || ev.SenderID == "" {
		return false
	}

	gift, ok := a.gifts[ev.GiftName]
	if !ok {
		gift = &domain.GiftTotal{GiftName: ev.GiftName, GiftValue: ev.DiamondValue}
		a.gifts[ev.GiftName] = gift
		a.giftOrder = append(a.giftOrder, ev.GiftName)
	}
	gift.Quantity += ev.RepeatCount

	sender, ok := a.senders[ev.SenderID]
	if !ok {
		sender = &domain.SenderTotal{SenderID: ev.SenderID, Gifts: make(map[string]domain.SenderGift)}
		a.senders[ev.SenderID] = sender
		a.senderOrder = append(a.senderOrder, ev.SenderID)
	}
	sender.TotalValue += ev.DiamondValue * ev.RepeatCount
	sg, ok := sender.Gifts[ev.GiftName]
	if !ok {
		sg.Value = ev.DiamondValue
	}
	sg.Quantity += ev.RepeatCount
	sender.Gifts[ev.GiftName] = sg
	return true
}

// Empty reports whether no gift has been counted yet.
func (a *Aggregator) Empty() bool {
	return len(a.gifts) == 0
}

// Gifts returns the per-gift totals in first-seen order.
func (a *Aggregator) Gifts() []domain.GiftTotal {
	out := make([]domain.GiftTotal, 0, len(a.giftOrder))
	for _, name := range a.giftOrder {
		out = append(out, *a.gifts[name])
	}
	return out
}

// TotalValue sums value times quantity over the gift totals.
func (a *Aggregator) TotalValue() int64 {
	var total int64
	for _, g := range a.gifts {
		total += g.GiftValue * g.Quantity
	}
	return total
}

// TopSenders returns up to n senders by descending total value.
// Equal totals keep the order in which the senders first appeared.
func (a *Aggregator) TopSenders(n int) []domain.SenderTotal {
	ranked := make([]domain.SenderTotal, 0, len(a.senderOrder))
	for _, id := range a.senderOrder {
		s := a.senders[id]
		ranked = append(ranked, domain.SenderTotal{
			SenderID:   s.SenderID,
			TotalValue: s.TotalValue,
			Gifts:      maps.Clone(s.Gifts),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalValue > ranked[j].TotalValue
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
