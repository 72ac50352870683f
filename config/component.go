/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package config provides the node's Viper-backed configuration and a
// Component lifecycle contract modeled on nabbar-golib's config.Component:
// every subsystem (transport, peer manager, routing, control plane, ...)
// is registered, topologically ordered by its declared dependencies, and
// driven through Init/Start/Reload/Stop together.
package config

import (
	"context"

	liberr "github.com/nabbar/genesis-mesh/errors"
)

// Component is the lifecycle contract every node subsystem implements so
// the Manager can sequence startup, reload, and shutdown across all of
// them in dependency order.
type Component interface {
	// Name identifies the component for logging and dependency references.
	Name() string

	// Dependencies lists the component names that must be started before
	// this one, and stopped after it.
	Dependencies() []string

	// Init wires the component to the shared Viper instance before Start.
	Init(v *Store) liberr.Error

	// Start brings the component into service.
	Start(ctx context.Context) liberr.Error

	// Reload re-reads configuration and applies changes without a full
	// restart where possible.
	Reload(ctx context.Context) liberr.Error

	// Stop shuts the component down. It must not block indefinitely.
	Stop()
}
