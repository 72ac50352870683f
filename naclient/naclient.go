/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package naclient is a thin HTTP client for the Network Authority's
// bootstrap contract: health, genesis retrieval, join, and policy
// retrieval. The NA server itself is out of scope; this package only
// speaks its four calls on behalf of a node's bootstrap path and its
// certificate manager's renewal closure.
package naclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/schema"
)

// DefaultTimeout bounds every call made by Client when the caller's
// context carries no earlier deadline.
const DefaultTimeout = 10 * time.Second

// Client speaks the NA's bootstrap HTTP contract.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a Client pointed at baseURL (e.g. "https://na.example.net").
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: DefaultTimeout},
	}
}

// HealthReply is the body of GET /health.
type HealthReply struct {
	Status  string `json:"status"`
	Network string `json:"network"`
	Version string `json:"version"`
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (HealthReply, liberr.Error) {
	var out HealthReply
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Genesis calls GET /genesis and returns the signed Genesis Block.
func (c *Client) Genesis(ctx context.Context) (schema.GenesisBlock, liberr.Error) {
	var out schema.GenesisBlock
	err := c.do(ctx, http.MethodGet, "/genesis", nil, &out)
	return out, err
}

// JoinRequest is the body of POST /join.
type JoinRequest struct {
	NodePublicKey  string   `json:"node_public_key"`
	Roles          []string `json:"roles"`
	ValidityHours  int      `json:"validity_hours"`
}

// Join calls POST /join and returns the newly issued Join Certificate.
func (c *Client) Join(ctx context.Context, req JoinRequest) (schema.Certificate, liberr.Error) {
	var out schema.Certificate
	err := c.do(ctx, http.MethodPost, "/join", req, &out)
	return out, err
}

// Policy calls GET /policy and returns the signed Policy Manifest.
func (c *Client) Policy(ctx context.Context) (schema.Policy, liberr.Error) {
	var out schema.Policy
	err := c.do(ctx, http.MethodGet, "/policy", nil, &out)
	return out, err
}

// RenewCert adapts Join into the certmanager.RenewFunc shape: it requests a
// fresh certificate under the same roles and node key as current, valid for
// validityHours from now.
func (c *Client) RenewCert(validityHours int) func(ctx context.Context, current schema.Certificate) (schema.Certificate, liberr.Error) {
	return func(ctx context.Context, current schema.Certificate) (schema.Certificate, liberr.Error) {
		return c.Join(ctx, JoinRequest{
			NodePublicKey: current.NodePublicKey,
			Roles:         current.Roles,
			ValidityHours: validityHours,
		})
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) liberr.Error {
	var reader io.Reader
	if body != nil {
		raw, jerr := json.Marshal(body)
		if jerr != nil {
			return liberr.Wrap(liberr.KindValidation, "encode na request", jerr)
		}
		reader = bytes.NewReader(raw)
	}

	req, rerr := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if rerr != nil {
		return liberr.Wrap(liberr.KindTransport, "build na request", rerr)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, derr := c.httpClient().Do(req)
	if derr != nil {
		return liberr.Wrap(liberr.KindTransport, "na request failed", derr)
	}
	defer resp.Body.Close()

	raw, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return liberr.Wrap(liberr.KindTransport, "read na response", rerr)
	}

	if resp.StatusCode >= 300 {
		return liberr.New(liberr.KindTransport, fmt.Sprintf("na %s %s: status %d: %s", method, path, resp.StatusCode, string(raw)))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if jerr := json.Unmarshal(raw, out); jerr != nil {
		return liberr.Wrap(liberr.KindValidation, "decode na response", jerr)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: DefaultTimeout}
}
