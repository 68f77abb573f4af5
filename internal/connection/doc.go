// Package connection implements the real-time Connection Manager.
//
// The Connection Manager:
//   - Keeps one WebSocket per session (user_id and optional token in the query)
//   - Sends a ping probe on a fixed interval and reconnects when pongs stop
//   - Reconnects after abnormal closures with capped exponential backoff
//   - Queues outbound messages while disconnected and drains them FIFO on connect
//   - Publishes status changes and inbound messages to subscribers
package connection
