// Package connection implements the subscription session.
//
// The Session:
//   - Owns exactly one WebSocket connection at a time (graphql-transport-ws)
//   - Performs the connection_init / connection_ack handshake
//   - Sends protocol pings and drops silent connections
//   - Reconnects with exponential backoff until closed
//   - Replays every registered topic with a fresh request ID after each handshake
//   - Resolves inbound event frames to their topic and hands them to an EventSink
package connection
