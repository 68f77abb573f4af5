// Package outbox provides a Redis-backed outbound queue so messages accepted
// while offline survive a process restart.
package outbox
