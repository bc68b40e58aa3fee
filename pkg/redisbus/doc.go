// Package redisbus provides the Redis-backed collaborators of the command bus:
// an event store, an event bus, the recovery channel, and the command intake
// queue used by the cmdbusd service.
//
// # Overview
//
// Events of each aggregate are stored in their own Redis stream, so loading an
// aggregate is a single XRANGE and appends are guarded by optimistic concurrency
// on the stream length. Committed events are also published on a Pub/Sub channel
// for read-side consumers.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so several
// buses can share one Redis server without seeing each other's aggregates, events
// or recovery signals.
//
// # Usage Example
//
//	client, err := redisbus.NewClient(&redis.Options{Addr: "localhost:6379"}, "prod")
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	bus, err := commandbus.New(cfg, invoker, client,
//		commandbus.WithEventBus(client))
package redisbus
