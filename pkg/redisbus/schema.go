package redisbus

import "fmt"

// Redis key pattern helpers
//
// Key pattern: cmdbus:{instance_name}:{entity}:...
// Channel pattern: cmdbus:{instance_name}:{event_type}

// EventStreamKey returns the Redis stream holding one aggregate's events.
// Pattern: cmdbus:{instance_name}:events:{aggregate_type}:{aggregate_id}
func EventStreamKey(instanceName, aggregateType, aggregateID string) string {
	return fmt.Sprintf("cmdbus:%s:events:%s:%s", instanceName, aggregateType, aggregateID)
}

// AggregateIndexKey returns the Redis set of known aggregate IDs of a type.
// Pattern: cmdbus:{instance_name}:aggregates:{aggregate_type}
func AggregateIndexKey(instanceName, aggregateType string) string {
	return fmt.Sprintf("cmdbus:%s:aggregates:%s", instanceName, aggregateType)
}

// CommandQueueKey returns the Redis list commands are submitted to.
// Pattern: cmdbus:{instance_name}:commands
func CommandQueueKey(instanceName string) string {
	return fmt.Sprintf("cmdbus:%s:commands", instanceName)
}

// ResultKey returns the Redis hash holding a command's outcome.
// Pattern: cmdbus:{instance_name}:result:{command_id}
func ResultKey(instanceName, commandID string) string {
	return fmt.Sprintf("cmdbus:%s:result:%s", instanceName, commandID)
}

// EventsChannel returns the Pub/Sub channel committed events are published on.
// Pattern: cmdbus:{instance_name}:event_events
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("cmdbus:%s:event_events", instanceName)
}

// RecoveryChannel returns the Pub/Sub channel recovery signals are published on.
// Pattern: cmdbus:{instance_name}:recovery_events
func RecoveryChannel(instanceName string) string {
	return fmt.Sprintf("cmdbus:%s:recovery_events", instanceName)
}
