/*
Implementation of a HTTP long polling transport.

This package provides the client half of a logical bidirectional message
stream carried over plain HTTP, for use when better transports (WebSocket,
SSE) are unavailable: a validate-then-loop GET poll for inbound messages and
concurrent POSTs for outbound messages, with a fresh bearer token resolved
for every request. A minimal server-side handler speaking the same wire
contract is included for tests and demos.
*/
package longpolling
