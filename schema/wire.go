package schema

import (
	"encoding/json"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
)

// MessageType enumerates the wire message types exchanged between nodes.
// String values are normative.
type MessageType string

const (
	MsgHandshake       MessageType = "handshake"
	MsgHandshakeAck    MessageType = "handshake_ack"
	MsgPing            MessageType = "ping"
	MsgPong            MessageType = "pong"
	MsgDisconnect      MessageType = "disconnect"
	MsgPeerAnnounce    MessageType = "peer_announce"
	MsgPeerRequest     MessageType = "peer_request"
	MsgPeerResponse    MessageType = "peer_response"
	MsgRouteAnnounce   MessageType = "route_announce"
	MsgRouteUpdate     MessageType = "route_update"
	MsgRouteWithdraw   MessageType = "route_withdraw"
	MsgData            MessageType = "data"
	MsgDataAck         MessageType = "data_ack"
	MsgControlMessage  MessageType = "control_message"
	MsgPolicyUpdate    MessageType = "policy_update"
	MsgRevocation      MessageType = "revocation"
	MsgServiceAnnounce MessageType = "service_announce"
	MsgServiceRequest  MessageType = "service_request"
	MsgServiceResponse MessageType = "service_response"
)

// DefaultTTL is the default hop budget for a freshly minted Wire Message.
const DefaultTTL = 10

// WireMessage is the envelope carried over the transport.
type WireMessage struct {
	MessageID   string      `json:"message_id"`
	Type        MessageType `json:"type"`
	Timestamp   int64       `json:"timestamp"` // unix seconds
	SenderID    string      `json:"sender_id"`
	RecipientID *string     `json:"recipient_id,omitempty"`
	TTL         int         `json:"ttl"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Signature   *Signature  `json:"signature,omitempty"`
}

type wireSigningView struct {
	MessageID   string          `json:"message_id"`
	Type        MessageType     `json:"type"`
	Timestamp   int64           `json:"timestamp"`
	SenderID    string          `json:"sender_id"`
	RecipientID *string         `json:"recipient_id,omitempty"`
	TTL         int             `json:"ttl"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Canonical returns the canonical bytes signed by the sender.
func (m WireMessage) Canonical() ([]byte, liberr.Error) {
	return libcry.Canonical(wireSigningView{
		MessageID:   m.MessageID,
		Type:        m.Type,
		Timestamp:   m.Timestamp,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		TTL:         m.TTL,
		Payload:     m.Payload,
	})
}

// Sign signs the message as its SenderID and attaches the result.
func (m *WireMessage) Sign(sk libcry.PrivateKey) liberr.Error {
	canonical, err := m.Canonical()
	if err != nil {
		return err
	}
	sig := libcry.Sign(sk, canonical)
	m.Signature = &Signature{KeyID: m.SenderID, Value: libcry.EncodeSig(sig)}
	return nil
}

// Verify reports whether the attached signature verifies against pk. A
// message with no signature reports false; callers decide whether an
// unsigned message type (e.g. ping) is acceptable.
func (m WireMessage) Verify(pk libcry.PublicKey) bool {
	if m.Signature == nil {
		return false
	}
	canonical, err := m.Canonical()
	if err != nil {
		return false
	}
	raw, derr := libcry.DecodeSig(m.Signature.Value)
	if derr != nil {
		return false
	}
	return libcry.Verify(pk, canonical, raw)
}

// IsBroadcast reports whether the message has no specific recipient.
func (m WireMessage) IsBroadcast() bool {
	return m.RecipientID == nil
}

// DecrementTTL returns a copy of m with TTL decremented by one, and whether
// the result is still forwardable (TTL > 0 after decrement).
func (m WireMessage) DecrementTTL() (WireMessage, bool) {
	out := m
	out.TTL--
	return out, out.TTL > 0
}
