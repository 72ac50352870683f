/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package errors classifies every failure the mesh core can produce into one
// of the kinds described by the error handling design: Validation, Signature,
// Authorization, Transport, Staleness, Capacity or Fatal. Each error carries
// an optional parent chain so a low-level transport failure can be reported
// to an operator without losing the fact that, e.g., it triggered a
// blacklist.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error per the error handling design table.
type Kind uint8

const (
	// KindUnknown is the zero value; avoid constructing errors with it.
	KindUnknown Kind = iota
	KindValidation
	KindSignature
	KindAuthorization
	KindTransport
	KindStaleness
	KindCapacity
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSignature:
		return "signature"
	case KindAuthorization:
		return "authorization"
	case KindTransport:
		return "transport"
	case KindStaleness:
		return "staleness"
	case KindCapacity:
		return "capacity"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the mesh-wide error interface. It extends error with a Kind, an
// optional parent chain, and compatibility with errors.Is / errors.As.
type Error interface {
	error

	Kind() Kind
	IsKind(k Kind) bool

	HasParent() bool
	Parents() []error
	Add(parents ...error) Error

	Unwrap() error
}

type mErr struct {
	kind    Kind
	message string
	parents []error
}

// New builds a new Error of the given kind with a message. Use Wrap instead
// when an underlying error should be preserved as a parent.
func New(k Kind, message string) Error {
	return &mErr{kind: k, message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(k Kind, format string, args ...interface{}) Error {
	return &mErr{kind: k, message: fmt.Sprintf(format, args...)}
}

// Wrap builds a new Error of the given kind, chaining parent as its cause.
// A nil parent yields an Error with no parent chain.
func Wrap(k Kind, message string, parent error) Error {
	e := &mErr{kind: k, message: message}
	if parent != nil {
		e.parents = append(e.parents, parent)
	}
	return e
}

func (e *mErr) Error() string {
	if len(e.parents) == 0 {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.message, e.parents[0].Error())
}

func (e *mErr) Kind() Kind { return e.kind }

func (e *mErr) IsKind(k Kind) bool {
	if e.kind == k {
		return true
	}
	for _, p := range e.parents {
		var me Error
		if errors.As(p, &me) && me.IsKind(k) {
			return true
		}
	}
	return false
}

func (e *mErr) HasParent() bool { return len(e.parents) > 0 }

func (e *mErr) Parents() []error {
	out := make([]error, len(e.parents))
	copy(out, e.parents)
	return out
}

func (e *mErr) Add(parents ...error) Error {
	for _, p := range parents {
		if p != nil {
			e.parents = append(e.parents, p)
		}
	}
	return e
}

// Unwrap exposes the first parent for errors.Is / errors.As traversal.
func (e *mErr) Unwrap() error {
	if len(e.parents) == 0 {
		return nil
	}
	return e.parents[0]
}

// Is reports whether target is an Error of the same Kind, satisfying
// errors.Is(err, errors.New(KindX, "")) style probes used by callers that
// only care about classification, not message text.
func (e *mErr) Is(target error) bool {
	var me Error
	if errors.As(target, &me) {
		return me.Kind() == e.kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) a mesh Error.
// Returns KindUnknown otherwise.
func KindOf(err error) Kind {
	var me Error
	if errors.As(err, &me) {
		return me.Kind()
	}
	return KindUnknown
}
