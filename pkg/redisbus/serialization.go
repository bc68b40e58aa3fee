package redisbus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// Serialization helpers for converting events to and from Redis stream entries.
//
// Stream entries are flat string maps. Scalar fields are stored as-is; payload is
// stored verbatim and metadata is JSON-encoded into a single field.

// EventToValues converts an event to Redis stream entry values.
func EventToValues(e commandbus.EventMessage) (map[string]interface{}, error) {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	return map[string]interface{}{
		"id":           e.ID,
		"aggregate_id": e.AggregateID,
		"sequence":     e.Sequence,
		"type":         e.Type,
		"payload":      string(e.Payload),
		"timestamp_ms": e.Timestamp.UnixMilli(),
		"metadata":     string(metadataJSON),
	}, nil
}

// ValuesToEvent converts Redis stream entry values back to an event.
func ValuesToEvent(values map[string]interface{}) (commandbus.EventMessage, error) {
	field := func(name string) string {
		s, _ := values[name].(string)
		return s
	}

	sequence, err := strconv.ParseInt(field("sequence"), 10, 64)
	if err != nil {
		return commandbus.EventMessage{}, fmt.Errorf("invalid sequence field: %w", err)
	}
	timestampMs, _ := strconv.ParseInt(field("timestamp_ms"), 10, 64)

	var metadata map[string]string
	if raw := field("metadata"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return commandbus.EventMessage{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	event := commandbus.EventMessage{
		ID:          field("id"),
		AggregateID: field("aggregate_id"),
		Sequence:    sequence,
		Type:        field("type"),
		Timestamp:   time.UnixMilli(timestampMs).UTC(),
		Metadata:    metadata,
	}
	if payload := field("payload"); payload != "" {
		event.Payload = json.RawMessage(payload)
	}
	return event, nil
}
