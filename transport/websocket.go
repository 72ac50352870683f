package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	liberr "github.com/nabbar/genesis-mesh/errors"
)

// wsTransport implements Transport over a gorilla/websocket connection.
// Gorilla's message boundaries already satisfy "message-framed" so no
// additional length-prefixing is applied here (unlike the raw pipe/TCP
// transport).
type wsTransport struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// NewWebsocketTransport wraps an established *websocket.Conn (client or
// server side) as a Transport.
func NewWebsocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(ctx context.Context, frame []byte) liberr.Error {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return liberr.Wrap(liberr.KindTransport, "websocket write", err)
	}
	return nil
}

func (t *wsTransport) Recv(ctx context.Context) ([]byte, liberr.Error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(dl)
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, liberr.Wrap(liberr.KindTransport, "websocket read", err)
	}
	return data, nil
}

func (t *wsTransport) Close() liberr.Error {
	if err := t.conn.Close(); err != nil {
		return liberr.Wrap(liberr.KindTransport, "websocket close", err)
	}
	return nil
}

func (t *wsTransport) LocalEndpoint() string  { return t.conn.LocalAddr().String() }
func (t *wsTransport) RemoteEndpoint() string { return t.conn.RemoteAddr().String() }

// WebsocketDialer dials outbound websocket connections.
type WebsocketDialer struct {
	Dialer websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, endpoint string) (Transport, liberr.Error) {
	conn, _, err := d.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindTransport, "websocket dial", err)
	}
	return NewWebsocketTransport(conn), nil
}

// WebsocketListener upgrades inbound HTTP requests to websocket Transports,
// handing each off on a channel for a caller's Accept loop.
type WebsocketListener struct {
	addr     string
	upgrader websocket.Upgrader
	accept   chan Transport
	server   *http.Server
}

// NewWebsocketListener starts an HTTP server on addr that upgrades every
// request on path to a websocket Transport.
func NewWebsocketListener(addr, path string) *WebsocketListener {
	l := &WebsocketListener{
		addr:   addr,
		accept: make(chan Transport, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		l.accept <- NewWebsocketTransport(conn)
	})
	l.server = &http.Server{Addr: addr, Handler: mux}
	return l
}

// Serve blocks running the HTTP upgrade server until Close is called.
func (l *WebsocketListener) Serve() error {
	return l.server.ListenAndServe()
}

func (l *WebsocketListener) Accept(ctx context.Context) (Transport, liberr.Error) {
	select {
	case <-ctx.Done():
		return nil, liberr.Wrap(liberr.KindTransport, "accept cancelled", ctx.Err())
	case t := <-l.accept:
		return t, nil
	}
}

func (l *WebsocketListener) Close() liberr.Error {
	if err := l.server.Close(); err != nil {
		return liberr.Wrap(liberr.KindTransport, "close websocket listener", err)
	}
	return nil
}

func (l *WebsocketListener) LocalEndpoint() string { return l.addr }
