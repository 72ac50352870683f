package transport

import (
	"encoding/binary"
	"io"

	liberr "github.com/nabbar/genesis-mesh/errors"
)

// MaxFrameSize bounds a single frame to guard against a misbehaving or
// malicious peer exhausting memory with a bogus length prefix.
const MaxFrameSize = 16 * 1024 * 1024

// WriteFrame writes b to w prefixed with its 4-byte big-endian length, the
// length-prefixing that makes a raw byte stream (e.g. a TCP net.Conn)
// satisfy the "message-framed" half of the transport contract.
func WriteFrame(w io.Writer, b []byte) liberr.Error {
	if len(b) > MaxFrameSize {
		return liberr.New(liberr.KindValidation, "frame too large")
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return liberr.Wrap(liberr.KindTransport, "write frame header", err)
	}
	if _, err := w.Write(b); err != nil {
		return liberr.Wrap(liberr.KindTransport, "write frame body", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, liberr.Error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, liberr.Wrap(liberr.KindTransport, "read frame header", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, liberr.New(liberr.KindValidation, "frame too large")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, liberr.Wrap(liberr.KindTransport, "read frame body", err)
	}
	return buf, nil
}
