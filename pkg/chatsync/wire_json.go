package chatsync

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// wireMessageJSON carries the timestamp in its protobuf JSON form, an RFC 3339 string.
type wireMessageJSON struct {
	ID        WireID          `json:"id,omitempty"`
	RoomID    WireID          `json:"room_id,omitempty"`
	SenderID  WireID          `json:"sender_id,omitempty"`
	Text      string          `json:"text"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// MarshalJSON encodes the timestamp with protojson.
func (m WireMessage) MarshalJSON() ([]byte, error) {
	out := wireMessageJSON{ID: m.ID, RoomID: m.RoomID, SenderID: m.SenderID, Text: m.Text}
	if m.Timestamp != nil {
		raw, err := protojson.Marshal(m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("marshal message timestamp: %w", err)
		}
		out.Timestamp = raw
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes the timestamp with protojson. An absent or null timestamp
// leaves Timestamp nil so decoding can reject the message.
func (m *WireMessage) UnmarshalJSON(data []byte) error {
	var in wireMessageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*m = WireMessage{ID: in.ID, RoomID: in.RoomID, SenderID: in.SenderID, Text: in.Text}
	if len(in.Timestamp) == 0 || string(in.Timestamp) == "null" {
		return nil
	}

	timestamp := &timestamppb.Timestamp{}
	if err := protojson.Unmarshal(in.Timestamp, timestamp); err != nil {
		return fmt.Errorf("unmarshal message timestamp: %w", err)
	}
	m.Timestamp = timestamp

	return nil
}
