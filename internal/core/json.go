package core

import (
	"encoding/json"
	"fmt"
)

// EncodeSnapshot serializes a snapshot to its wire form. The payload always
// carries the current schema version.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	if s.SchemaVersion == 0 {
		s.SchemaVersion = SchemaVersionCurrent
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a wire payload into a validated, normalized
// snapshot. Payloads without a schemaVersion field decode as version 1;
// payloads from a newer schema are rejected so callers can treat them as
// undecodable rather than silently dropping fields.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if s.SchemaVersion > SchemaVersionCurrent {
		return Snapshot{}, fmt.Errorf("unsupported schema version %d", s.SchemaVersion)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot: %w", err)
	}
	return s, nil
}
