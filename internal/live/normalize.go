package live

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/libs/numbers"
)

// giftTypeStreakable marks gifts that are re-sent with a running count
// until the streak ends.
const giftTypeStreakable = 1

type giftPayload struct {
	UniqueID     string `json:"uniqueId"`
	GiftID       any    `json:"giftId"`
	GiftName     string `json:"giftName"`
	DiamondCount any    `json:"diamondCount"`
	RepeatCount  any    `json:"repeatCount"`
	GiftType     any    `json:"giftType"`
	RepeatEnd    any    `json:"repeatEnd"`
}

// NormalizeGift converts a bridge gift payload into a GiftEvent. Numeric
// fields may arrive as JSON numbers or strings.
func NormalizeGift(streamer string, data []byte) (domain.GiftEvent, error) {
	ev, err := normalizeGift(data)
	if err != nil {
		return domain.GiftEvent{}, &domain.EventProcessingError{Streamer: streamer, Event: "gift", Err: err}
	}
	return ev, nil
}

func normalizeGift(data []byte) (domain.GiftEvent, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.GiftEvent{}, errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p giftPayload
	if err := dec.Decode(&p); err != nil {
		return domain.GiftEvent{}, fmt.Errorf("decode gift: %w", err)
	}

	sender := strings.TrimSpace(p.UniqueID)
	if sender == "" {
		return domain.GiftEvent{}, errors.New("missing uniqueId")
	}
	name := strings.TrimSpace(p.GiftName)
	if name == "" {
		return domain.GiftEvent{}, errors.New("missing giftName")
	}

	var giftID int64
	if p.GiftID != nil {
		id, err := numbers.ExtractInt(p.GiftID)
		if err != nil {
			return domain.GiftEvent{}, fmt.Errorf("giftId: %w", err)
		}
		giftID = id
	}
	value, err := numbers.ExtractInt(p.DiamondCount)
	if err != nil {
		return domain.GiftEvent{}, fmt.Errorf("diamondCount: %w", err)
	}
	if value < 0 {
		return domain.GiftEvent{}, fmt.Errorf("negative diamondCount %d", value)
	}
	count, err := numbers.ExtractInt(p.RepeatCount)
	if err != nil {
		return domain.GiftEvent{}, fmt.Errorf("repeatCount: %w", err)
	}
	if count < 1 {
		return domain.GiftEvent{}, fmt.Errorf("repeatCount %d below 1", count)
	}
	var giftType int64
	if p.GiftType != nil {
		if giftType, err = numbers.ExtractInt(p.GiftType); err != nil {
			return domain.GiftEvent{}, fmt.Errorf("giftType: %w", err)
		}
	}
	ended, err := numbers.ExtractBool(p.RepeatEnd)
	if err != nil {
		return domain.GiftEvent{}, fmt.Errorf("repeatEnd: %w", err)
	}

	return domain.GiftEvent{
		SenderID:     sender,
		GiftName:     name,
		GiftID:       giftID,
		DiamondValue: value,
		RepeatCount:  count,
		Streakable:   giftType == giftTypeStreakable,
		StreakEnded:  ended,
	}, nil
}
