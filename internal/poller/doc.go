// Package poller implements the Notification Poller component.
//
// The Notification Poller:
//   - Polls the REST API on a fixed interval for the caller's notifications
//   - Delivers each unread notification once, in the order the API lists them
//   - Keeps running through failed polls and reports them in Stats
package poller
