/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package connection implements the per-peer connection state machine:
// CONNECTING -> HANDSHAKING -> ESTABLISHED -> CLOSING -> CLOSED, with
// FAILED reachable from any non-closed state, a bounded outbound queue
// providing backpressure, and periodic ping/pong latency measurement.
package connection

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	liberr "github.com/nabbar/genesis-mesh/errors"
	liblog "github.com/nabbar/genesis-mesh/logger"
	"github.com/nabbar/genesis-mesh/schema"
	libtck "github.com/nabbar/genesis-mesh/ticker"
	libtrp "github.com/nabbar/genesis-mesh/transport"
)

// DefaultQueueCapacity is the default outbound queue capacity.
const DefaultQueueCapacity = 1000

// PingInterval is the cadence of periodic pings while ESTABLISHED.
const PingInterval = 30 * time.Second

// Config configures a Connection's policy knobs.
type Config struct {
	QueueCapacity int
	// DropOnFull selects the backpressure policy: true drops non-priority
	// sends that find a full queue (counted); false makes every send wait
	// for queue space, bounded by its ctx. Priority sends always wait.
	DropOnFull bool
	// SendRateLimit, if non-zero, caps the sustained outbound message rate
	// via a token bucket. Zero disables limiting.
	SendRateLimit rate.Limit
	SendBurst     int
	Logger        liblog.Logger
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.Logger == nil {
		c.Logger = liblog.Discard()
	}
	return c
}

type queuedMessage struct {
	frame    []byte
	priority bool
}

// OnMessage is called once per inbound application message (i.e. every wire
// message except ping/pong, which the connection answers internally).
type OnMessage func(c *Connection, msg schema.WireMessage)

// OnStateChange observes connection lifecycle transitions.
type OnStateChange func(c *Connection, from, to State)

// Connection is one peer's connection state machine.
type Connection struct {
	id       string
	peerID   string
	transport libtrp.Transport
	cfg      Config

	mu    sync.RWMutex
	state State

	queue chan queuedMessage

	onMessage     OnMessage
	onStateChange OnStateChange

	counters counters
	limiter  *rate.Limiter

	pingMu   sync.Mutex
	pingSent map[string]time.Time

	sendTick libtck.Ticker
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	closeOnce sync.Once
}

// New constructs a Connection over an already-dialed/accepted transport.
// The state starts at CONNECTING; call Start to begin the receive/send/ping
// tasks, which immediately transitions to HANDSHAKING.
func New(peerID string, t libtrp.Transport, cfg Config, onMessage OnMessage, onStateChange OnStateChange) *Connection {
	cfg = cfg.withDefaults()
	c := &Connection{
		id:            uuid.NewString(),
		peerID:        peerID,
		transport:     t,
		cfg:           cfg,
		state:         StateConnecting,
		queue:         make(chan queuedMessage, cfg.QueueCapacity),
		onMessage:     onMessage,
		onStateChange: onStateChange,
		pingSent:      make(map[string]time.Time),
	}
	if cfg.SendRateLimit > 0 {
		burst := cfg.SendBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.SendRateLimit, burst)
	}
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) PeerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerID
}

// SetPeerID rewrites the connection's peer id, used once a provisional id
// (a random accept-side id, or a bootstrap anchor placeholder) is resolved
// to the peer's real node id at handshake completion.
func (c *Connection) SetPeerID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerID = id
}

func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(to State) {
	c.mu.Lock()
	from := c.state
	if !validTransition(from, to) {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.mu.Unlock()

	c.cfg.Logger.Debug("connection state transition", liblog.Fields{
		"connection_id": c.id, "peer_id": c.peerID, "from": from.String(), "to": to.String(),
	})
	if c.onStateChange != nil {
		c.onStateChange(c, from, to)
	}
}

// Start transitions CONNECTING -> HANDSHAKING and launches the receive,
// send, and ping tasks. It is the caller's responsibility to subsequently
// drive the handshake (send/await HANDSHAKE_ACK) which transitions to
// ESTABLISHED via MarkEstablished.
func (c *Connection) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.setState(StateHandshaking)

	c.wg.Add(2)
	go c.receiveLoop(cctx)
	go c.sendLoop(cctx)

	c.sendTick = libtck.New(PingInterval, c.onPingTick)
	c.sendTick.Start(cctx)
}

// MarkEstablished transitions HANDSHAKING -> ESTABLISHED upon receipt of a
// valid HANDSHAKE_ACK.
func (c *Connection) MarkEstablished() {
	c.setState(StateEstablished)
}

// MarkFailed transitions to FAILED from any non-closed state.
func (c *Connection) MarkFailed() {
	c.setState(StateFailed)
	c.counters.onError()
}

// Send enqueues msg for delivery. Priority sends always wait for queue
// space (bounded by ctx); non-priority sends that find a full queue are
// dropped and counted when the connection's policy is drop-on-full.
func (c *Connection) Send(ctx context.Context, msg schema.WireMessage, priority bool) liberr.Error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return liberr.Wrap(liberr.KindValidation, "marshal wire message", err)
	}

	item := queuedMessage{frame: frame, priority: priority}

	if priority || !c.cfg.DropOnFull {
		select {
		case c.queue <- item:
			return nil
		case <-ctx.Done():
			return liberr.Wrap(liberr.KindTransport, "send cancelled", ctx.Err())
		}
	}

	select {
	case c.queue <- item:
		return nil
	default:
		c.counters.onDrop()
		return liberr.New(liberr.KindCapacity, "send queue full")
	}
}

// SendPing emits a ping and records its send timestamp for RTT computation
// against the matching pong.
func (c *Connection) SendPing(ctx context.Context) liberr.Error {
	id := uuid.NewString()
	msg := schema.WireMessage{
		MessageID: id,
		Type:      schema.MsgPing,
		Timestamp: time.Now().Unix(),
		SenderID:  c.peerID,
		TTL:       1,
	}

	c.pingMu.Lock()
	c.pingSent[id] = time.Now()
	c.pingMu.Unlock()

	return c.Send(ctx, msg, true)
}

func (c *Connection) onPingTick(ctx context.Context, _ *time.Ticker) error {
	if c.State() != StateEstablished {
		return nil
	}
	return c.SendPing(ctx)
}

func (c *Connection) sendLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.queue:
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if err := c.transport.Send(ctx, item.frame); err != nil {
				c.counters.onError()
				c.MarkFailed()
				return
			}
			c.counters.onSend(len(item.frame))
		}
	}
}

func (c *Connection) receiveLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		frame, err := c.transport.Recv(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.counters.onError()
			c.MarkFailed()
			return
		}

		c.counters.onRecv(len(frame))

		var msg schema.WireMessage
		if jerr := json.Unmarshal(frame, &msg); jerr != nil {
			c.counters.onError()
			continue
		}

		c.dispatch(ctx, msg)
	}
}

func (c *Connection) dispatch(ctx context.Context, msg schema.WireMessage) {
	switch msg.Type {
	case schema.MsgPong:
		c.onPong(msg)
		return
	case schema.MsgPing:
		c.onPingReceived(ctx, msg)
		return
	case schema.MsgHandshakeAck:
		c.MarkEstablished()
	}
	if c.onMessage != nil {
		c.onMessage(c, msg)
	}
}

func (c *Connection) onPingReceived(ctx context.Context, msg schema.WireMessage) {
	pong := schema.WireMessage{
		MessageID: msg.MessageID,
		Type:      schema.MsgPong,
		Timestamp: time.Now().Unix(),
		SenderID:  c.peerID,
		TTL:       1,
	}
	_ = c.Send(ctx, pong, true)
}

func (c *Connection) onPong(msg schema.WireMessage) {
	c.pingMu.Lock()
	sentAt, ok := c.pingSent[msg.MessageID]
	if ok {
		delete(c.pingSent, msg.MessageID)
	}
	c.pingMu.Unlock()

	if ok {
		c.counters.setLatency(time.Since(sentAt))
	}
}

// Stats returns a point-in-time statistics snapshot.
func (c *Connection) Stats() Stats {
	return c.counters.snapshot(len(c.queue), cap(c.queue))
}

// Close transitions through CLOSING to CLOSED, cancels all tasks, and
// closes the underlying transport. It is safe to call more than once.
func (c *Connection) Close() liberr.Error {
	var retErr liberr.Error
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		if c.cancel != nil {
			c.cancel()
		}
		if c.sendTick != nil {
			c.sendTick.Stop()
		}
		// Closing the transport first unblocks a pending Recv or Send that
		// does not observe ctx cancellation, so the task join cannot hang.
		retErr = c.transport.Close()
		c.wg.Wait()
		c.setState(StateClosed)
	})
	return retErr
}
