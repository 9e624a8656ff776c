package kafka

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

// EncodeDeadLetter serializes dl as a protobuf Struct.
func EncodeDeadLetter(dl domain.DeadLetter) ([]byte, error) {
	raw, err := json.Marshal(dl)
	if err != nil {
		return nil, fmt.Errorf("marshal dead letter: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("flatten dead letter: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build dead letter struct: %w", err)
	}
	value, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal dead letter proto: %w", err)
	}
	return value, nil
}

// DecodeDeadLetter is the inverse of EncodeDeadLetter.
func DecodeDeadLetter(value []byte) (domain.DeadLetter, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(value, &st); err != nil {
		return domain.DeadLetter{}, fmt.Errorf("unmarshal dead letter proto: %w", err)
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return domain.DeadLetter{}, fmt.Errorf("marshal dead letter fields: %w", err)
	}
	var dl domain.DeadLetter
	if err := json.Unmarshal(raw, &dl); err != nil {
		return domain.DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if dl.StreamerID == "" || dl.Record.StreamID == "" {
		return domain.DeadLetter{}, fmt.Errorf("decode dead letter: missing streamer or stream id")
	}
	return dl, nil
}
