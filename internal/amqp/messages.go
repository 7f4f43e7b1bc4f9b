package amqp

import (
	"encoding/json"
	"time"
)

// SnapshotChangeMessage announces that a device wrote a new remote snapshot.
// The full serialized snapshot rides along so receivers can merge without a
// second remote read; DeviceID lets the writer skip its own echo.
type SnapshotChangeMessage struct {
	UserID    string          `json:"userId"`
	DeviceID  string          `json:"deviceId"`
	Timestamp time.Time       `json:"timestamp"`
	Snapshot  json.RawMessage `json:"snapshot"`
}

// NewSnapshotChangeMessage builds a change message around an encoded snapshot.
func NewSnapshotChangeMessage(userID, deviceID string, snapshot []byte) *SnapshotChangeMessage {
	return &SnapshotChangeMessage{
		UserID:    userID,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Snapshot:  snapshot,
	}
}

// ToJSON converts the message to JSON bytes.
func (m *SnapshotChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotChangeMessageFromJSON parses a message from JSON bytes.
func SnapshotChangeMessageFromJSON(data []byte) (*SnapshotChangeMessage, error) {
	var msg SnapshotChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
