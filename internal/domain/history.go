package domain

import (
	"errors"
	"fmt"
)

var ErrAggregateDrift = errors.New("day bucket aggregates diverged from streams")

// NewStreamerHistory returns an empty history document.
func NewStreamerHistory(streamerID string) *StreamerHistory {
	return &StreamerHistory{StreamerID: streamerID, History: []DayBucket{}}
}

// Day returns the bucket for date, or nil.
func (h *StreamerHistory) Day(date string) *DayBucket {
	for i := range h.History {
		if h.History[i].Date == date {
			return &h.History[i]
		}
	}
	return nil
}

// AddStream appends rec to the bucket for date, creating the bucket when absent.
// The aggregates move in the same call as the append.
func (h *StreamerHistory) AddStream(date string, rec StreamRecord) {
	day := h.Day(date)
	if day == nil {
		h.History = append(h.History, DayBucket{
			Date:               date,
			Streams:            []StreamRecord{rec},
			TotalStreams:       1,
			TotalGiftsReceived: rec.GiftsReceived(),
			TotalGiftValue:     rec.TotalGiftValue,
		})
		return
	}
	day.Streams = append(day.Streams, rec)
	day.TotalStreams++
	day.TotalGiftsReceived += rec.GiftsReceived()
	day.TotalGiftValue += rec.TotalGiftValue
}

// HasStream reports whether a record with streamID was already merged on date.
func (h *StreamerHistory) HasStream(date, streamID string) bool {
	day := h.Day(date)
	if day == nil {
		return false
	}
	for _, s := range day.Streams {
		if s.StreamID == streamID {
			return true
		}
	}
	return false
}

// Verify checks the denormalized aggregates of every bucket against its streams.
func (h *StreamerHistory) Verify() error {
	for _, d := range h.History {
		var gifts, value int64
		for _, s := range d.Streams {
			gifts += s.GiftsReceived()
			value += s.TotalGiftValue
		}
		switch {
		case d.TotalStreams != int64(len(d.Streams)):
			return fmt.Errorf("%w: %s total_streams=%d streams=%d", ErrAggregateDrift, d.Date, d.TotalStreams, len(d.Streams))
		case d.TotalGiftsReceived != gifts:
			return fmt.Errorf("%w: %s total_gifts_received=%d want %d", ErrAggregateDrift, d.Date, d.TotalGiftsReceived, gifts)
		case d.TotalGiftValue != value:
			return fmt.Errorf("%w: %s total_gift_value=%d want %d", ErrAggregateDrift, d.Date, d.TotalGiftValue, value)
		}
	}
	return nil
}

// Clone returns a copy whose buckets and stream slices can be appended to
// without touching h.
func (h *StreamerHistory) Clone() *StreamerHistory {
	out := &StreamerHistory{
		StreamerID: h.StreamerID,
		Version:    h.Version,
		History:    make([]DayBucket, len(h.History)),
	}
	for i, d := range h.History {
		d.Streams = append([]StreamRecord(nil), d.Streams...)
		out.History[i] = d
	}
	return out
}
