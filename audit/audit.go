/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package audit implements the tamper-evident, hash-chained event log:
// every event's hash binds the previous event's hash, so a single mismatch
// anywhere in the chain fails verification from that point forward.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	liberr "github.com/nabbar/genesis-mesh/errors"
	libcry "github.com/nabbar/genesis-mesh/crypto"
)

// GenesisHash is the PreviousHash of the first event in a chain.
const GenesisHash = ""

// Event is one tamper-evident log entry.
type Event struct {
	EventID      string                 `json:"event_id"`
	Type         string                 `json:"type"`
	Timestamp    time.Time              `json:"timestamp"`
	NodeID       string                 `json:"node_id"`
	Actor        string                 `json:"actor"`
	Target       string                 `json:"target,omitempty"`
	Action       string                 `json:"action"`
	Result       string                 `json:"result"`
	Details      map[string]interface{} `json:"details,omitempty"`
	PreviousHash string                 `json:"previous_hash"`
	EventHash    string                 `json:"event_hash"`
}

type eventHashView struct {
	EventID      string                 `json:"event_id"`
	Type         string                 `json:"type"`
	Timestamp    time.Time              `json:"timestamp"`
	NodeID       string                 `json:"node_id"`
	Actor        string                 `json:"actor"`
	Target       string                 `json:"target,omitempty"`
	Action       string                 `json:"action"`
	Result       string                 `json:"result"`
	Details      map[string]interface{} `json:"details,omitempty"`
	PreviousHash string                 `json:"previous_hash"`
}

func computeHash(e Event) (string, liberr.Error) {
	canonical, err := libcry.Canonical(eventHashView{
		EventID:      e.EventID,
		Type:         e.Type,
		Timestamp:    e.Timestamp,
		NodeID:       e.NodeID,
		Actor:        e.Actor,
		Target:       e.Target,
		Action:       e.Action,
		Result:       e.Result,
		Details:      e.Details,
		PreviousHash: e.PreviousHash,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Log is an append-only, hash-chained event log.
type Log struct {
	mu     sync.Mutex
	nodeID string
	events []Event
}

// New constructs an empty Log for nodeID.
func New(nodeID string) *Log {
	return &Log{nodeID: nodeID}
}

// Append computes the new event's hash over the previous event's hash and
// appends it to the chain.
func (l *Log) Append(eventID, typ, actor, target, action, result string, details map[string]interface{}) (Event, liberr.Error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := GenesisHash
	if n := len(l.events); n > 0 {
		prev = l.events[n-1].EventHash
	}

	e := Event{
		EventID:      eventID,
		Type:         typ,
		Timestamp:    time.Now(),
		NodeID:       l.nodeID,
		Actor:        actor,
		Target:       target,
		Action:       action,
		Result:       result,
		Details:      details,
		PreviousHash: prev,
	}

	hash, err := computeHash(e)
	if err != nil {
		return Event{}, err
	}
	e.EventHash = hash

	l.events = append(l.events, e)
	return e, nil
}

// All returns a copy of every event in the chain, oldest first.
func (l *Log) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Verify walks a chain of events and fails at the first event whose
// recomputed hash does not match its stored EventHash, or whose
// PreviousHash does not match its predecessor's EventHash. It returns the
// index of the first failure, or -1 if the whole chain verifies.
func Verify(events []Event) (int, liberr.Error) {
	prev := GenesisHash
	for i, e := range events {
		if e.PreviousHash != prev {
			return i, liberr.New(liberr.KindValidation, "previous_hash does not chain to the prior event")
		}
		want, err := computeHash(e)
		if err != nil {
			return i, err
		}
		if want != e.EventHash {
			return i, liberr.New(liberr.KindValidation, "event_hash does not match recomputed hash")
		}
		prev = e.EventHash
	}
	return -1, nil
}
