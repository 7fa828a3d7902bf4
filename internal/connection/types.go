package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no inbound frames)")
	ErrAckTimeout      = errors.New("timed out waiting for connection_ack")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Protocol defaults.
const (
	DefaultSubprotocol  = "graphql-transport-ws"
	DefaultAPIKeyHeader = "X-TENSOR-API-KEY"
)

// Frame types of the subscription protocol.
const (
	FrameConnectionInit = "connection_init"
	FrameConnectionAck  = "connection_ack"
	FramePing           = "ping"
	FramePong           = "pong"
	FrameSubscribe      = "subscribe"
	FrameNext           = "next"
	FrameError          = "error"
	FrameComplete       = "complete"
)

// EventField is the data field carrying a transaction event in a "next" frame.
const EventField = "newTransactionTV2"

// SubscriptionQuery selects the transaction, asset and rarity fields of every sale.
const SubscriptionQuery = `subscription NewTransactionTV2($slug: String!) {
  newTransactionTV2(slug: $slug) {
    tx {
      source
      txKey
      txId
      txType
      grossAmount
      grossAmountUnit
      sellerId
      buyerId
      txAt
      txMetadata
    }
    mint {
      onchainId
      name
      imageUri
      metadataUri
      sellRoyaltyFeeBPS
      tokenStandard
      tokenEdition
      attributes
      lastSale {
        price
        txAt
      }
      rarityRankTT
      rarityRankHR
      rarityRankStat
      rarityRankTeam
    }
  }
}`

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Frame is one protocol envelope, inbound or outbound.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the payload of a "subscribe" frame.
type SubscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// nextPayload is the payload of a "next" frame.
type nextPayload struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []GraphQLError             `json:"errors,omitempty"`
}

// GraphQLError is one entry of an "error" frame payload.
type GraphQLError struct {
	Message string `json:"message"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://api.tensor.so/graphql)
	APIKey           string        // Static credential sent at connection-open time
	APIKeyHeader     string        // Header carrying APIKey
	Subprotocol      string        // Negotiated WebSocket sub-protocol
	HandshakeTimeout time.Duration // WebSocket upgrade timeout
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		APIKeyHeader:     DefaultAPIKeyHeader,
		Subprotocol:      DefaultSubprotocol,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	URL               string
	APIKey            string
	APIKeyHeader      string
	Subprotocol       string
	KeepAliveInterval time.Duration // Interval between protocol pings
	AckTimeout        time.Duration // Max wait for connection_ack after connection_init
	PongTimeout       time.Duration // Max silence before the connection is considered dead (0 = disabled)
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
	WriteTimeout      time.Duration
	BufferSize        int
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		APIKeyHeader:      DefaultAPIKeyHeader,
		Subprotocol:       DefaultSubprotocol,
		KeepAliveInterval: 30 * time.Second,
		AckTimeout:        10 * time.Second,
		PongTimeout:       90 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		WriteTimeout:      5 * time.Second,
		BufferSize:        1000,
	}
}

// SessionStats provides statistics about a session.
type SessionStats struct {
	Connected      bool
	Subscriptions  int
	Reconnects     int64
	FramesReceived int64
	EventsRouted   int64
	ParseErrors    int64
	Unresolved     int64
	SendsDropped   int64
}
