package domain

import "time"

// DateLayout formats day bucket keys.
const DateLayout = "2006-01-02"

// TopSenderLimit bounds StreamRecord.TopSenders.
const TopSenderLimit = 5

// GiftEvent is one normalized gift notification from a live connection.
type GiftEvent struct {
	SenderID     string
	GiftName     string
	GiftID       int64
	DiamondValue int64 // per unit
	RepeatCount  int64
	Streakable   bool
	StreakEnded  bool
}

// Final reports whether the event's RepeatCount is authoritative.
// Mid-streak updates carry a running count for display only.
func (e GiftEvent) Final() bool {
	return !e.Streakable || e.StreakEnded
}

// GiftTotal is the per-gift aggregate for one session.
type GiftTotal struct {
	GiftName  string `json:"gift_name" bson:"gift_name"`
	GiftValue int64  `json:"gift_value" bson:"gift_value"`
	Quantity  int64  `json:"quantity" bson:"quantity"`
}

// SenderGift is one sender's count of a single gift.
type SenderGift struct {
	Quantity int64 `json:"quantity" bson:"quantity"`
	Value    int64 `json:"value" bson:"value"`
}

// SenderTotal is one viewer's contribution to a session.
type SenderTotal struct {
	SenderID   string                `json:"sender_id" bson:"sender_id"`
	TotalValue int64                 `json:"total_value" bson:"total_value"`
	Gifts      map[string]SenderGift `json:"gifts" bson:"gifts"`
}

// EndReason records which trigger concluded a session.
type EndReason string

const (
	EndStreamEnd        EndReason = "stream_end"
	EndPollDisconnected EndReason = "poll_disconnected"
	EndShutdown         EndReason = "shutdown"
)

// StreamRecord is the persisted summary of one completed session.
type StreamRecord struct {
	StreamID        string        `json:"stream_id" bson:"stream_id"`
	StartTime       time.Time     `json:"start_time" bson:"start_time"`
	EndTime         time.Time     `json:"end_time" bson:"end_time"`
	DurationSeconds int64         `json:"duration_seconds" bson:"duration_seconds"`
	Gifts           []GiftTotal   `json:"gifts" bson:"gifts"`
	TotalGiftValue  int64         `json:"total_gift_value" bson:"total_gift_value"`
	TopSenders      []SenderTotal `json:"top_senders" bson:"top_senders"`
	EndReason       EndReason     `json:"end_reason,omitempty" bson:"end_reason,omitempty"`
}

// GiftsReceived is the number of gift units in the record.
func (r StreamRecord) GiftsReceived() int64 {
	var n int64
	for _, g := range r.Gifts {
		n += g.Quantity
	}
	return n
}

// Date is the UTC calendar day the record belongs to.
func (r StreamRecord) Date() string {
	return r.EndTime.UTC().Format(DateLayout)
}

// DayBucket holds every stream of one calendar day plus running aggregates.
type DayBucket struct {
	Date               string         `json:"date" bson:"date"`
	Streams            []StreamRecord `json:"streams" bson:"streams"`
	TotalStreams       int64          `json:"total_streams" bson:"total_streams"`
	TotalGiftsReceived int64          `json:"total_gifts_received" bson:"total_gifts_received"`
	TotalGiftValue     int64          `json:"total_gift_value" bson:"total_gift_value"`
}

// StreamerHistory is the durable root document for one streamer.
type StreamerHistory struct {
	StreamerID string      `json:"streamer_id" bson:"_id"`
	History    []DayBucket `json:"history" bson:"history"`
	Version    int64       `json:"version" bson:"version"`
}

// ConnState is a point-in-time view of a live connection.
type ConnState struct {
	RoomID    string
	Connected bool
}

// Live reports whether the connection still looks attached to a broadcast.
func (s ConnState) Live() bool {
	return s.Connected && s.RoomID != ""
}

// DeadLetter carries a record whose history merge could not be completed.
type DeadLetter struct {
	StreamerID string       `json:"streamer_id"`
	Date       string       `json:"date"`
	Reason     string       `json:"reason"`
	FailedAt   time.Time    `json:"failed_at"`
	Record     StreamRecord `json:"record"`
}
