// Package realtime is the client side of the live coordination channel.
//
// A [Manager] owns the one websocket a process keeps open to the hub's
// namespaced endpoint and reconnects it with a bounded number of attempts.
// Every inbound event goes through the Manager's [Router], which calls
// handlers in registration order on the transport's read goroutine.
// Handlers must return quickly and hand longer work to their own goroutine.
//
// Room membership is layered on top by [Rooms]: joins and leaves are
// request/ack exchanges with a timeout, and they fail fast with
// [ErrNotConnected] while the link is down so callers can retry once
// IsConnected reports true. Each successful join hands back a [Membership];
// the server leave is only sent when the last membership for a room is
// released, and held rooms are joined again after a reconnect.
//
// A [Scope] collects the memberships and subscriptions of one screen or
// worker so they can be released together on teardown.
package realtime
