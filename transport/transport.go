/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package transport defines the abstract transport contract: an ordered,
// reliable, message-framed, bidirectional byte channel with close
// semantics. The core assumes framing but not confidentiality.
package transport

import (
	"context"

	liberr "github.com/nabbar/genesis-mesh/errors"
)

// ConnectTimeout is the transport connect timeout, in seconds. TCPDialer and
// WebsocketDialer do not apply it; a dial is bounded only by its ctx.
const ConnectTimeout = 10

// Transport is a single connected channel to one remote endpoint. Any
// implementation (TLS WebSocket, QUIC stream, in-process pipe) that provides
// ordered, reliable, framed, bidirectional delivery with close semantics
// satisfies this contract.
type Transport interface {
	// Send writes one complete frame. Send must not interleave partial
	// frames from concurrent callers; implementations serialize internally.
	Send(ctx context.Context, frame []byte) liberr.Error

	// Recv blocks until one complete frame is available, ctx's deadline
	// passes, or the transport is closed. The implementations in this
	// package apply only ctx's deadline: cancelling a ctx that has no
	// deadline does not interrupt a pending Recv.
	Recv(ctx context.Context) ([]byte, liberr.Error)

	// Close is idempotent.
	Close() liberr.Error

	// LocalEndpoint and RemoteEndpoint describe the channel's two sides for
	// logging/audit purposes.
	LocalEndpoint() string
	RemoteEndpoint() string
}

// Dialer creates an outbound Transport to endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, liberr.Error)
}

// Listener accepts inbound Transports.
type Listener interface {
	Accept(ctx context.Context) (Transport, liberr.Error)
	Close() liberr.Error
	LocalEndpoint() string
}
