// Package history records inbound real-time messages.
//
// The Recorder consumes a connection.Manager subscription, batches message
// events, and writes them to a Store. PostgresStore keeps them in the
// inbound_messages table (append-only, one row per received frame).
package history
