package transport

import (
	"context"
	"net"
	"sync"

	liberr "github.com/nabbar/genesis-mesh/errors"
)

// pipeTransport implements Transport over any net.Conn, using length-prefix
// framing. It backs both an in-memory net.Pipe()-based test harness and a
// plain TCP dial/listen pair.
type pipeTransport struct {
	conn net.Conn
	wmu  sync.Mutex
}

// NewPipeTransport wraps an already-established net.Conn as a Transport.
func NewPipeTransport(conn net.Conn) Transport {
	return &pipeTransport{conn: conn}
}

func (t *pipeTransport) Send(ctx context.Context, frame []byte) liberr.Error {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
	}
	return WriteFrame(t.conn, frame)
}

func (t *pipeTransport) Recv(ctx context.Context) ([]byte, liberr.Error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(dl)
	}
	return ReadFrame(t.conn)
}

func (t *pipeTransport) Close() liberr.Error {
	if err := t.conn.Close(); err != nil {
		return liberr.Wrap(liberr.KindTransport, "close connection", err)
	}
	return nil
}

func (t *pipeTransport) LocalEndpoint() string  { return t.conn.LocalAddr().String() }
func (t *pipeTransport) RemoteEndpoint() string { return t.conn.RemoteAddr().String() }

// TCPDialer dials plain TCP connections, wrapping them as framed Transports.
// It is the simplest concrete Dialer; production deployments are expected
// to layer TLS underneath (the core does not assume confidentiality, only
// framing).
type TCPDialer struct{}

func (TCPDialer) Dial(ctx context.Context, endpoint string) (Transport, liberr.Error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindTransport, "dial", err)
	}
	return NewPipeTransport(conn), nil
}

// TCPListener accepts plain TCP connections as framed Transports.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP starts a TCP listener on addr.
func ListenTCP(addr string) (*TCPListener, liberr.Error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindTransport, "listen", err)
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Accept(ctx context.Context) (Transport, liberr.Error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, liberr.Wrap(liberr.KindTransport, "accept cancelled", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, liberr.Wrap(liberr.KindTransport, "accept", r.err)
		}
		return NewPipeTransport(r.conn), nil
	}
}

func (l *TCPListener) Close() liberr.Error {
	if err := l.ln.Close(); err != nil {
		return liberr.Wrap(liberr.KindTransport, "close listener", err)
	}
	return nil
}

func (l *TCPListener) LocalEndpoint() string { return l.ln.Addr().String() }
