package config

import (
	"github.com/spf13/cobra"

	liberr "github.com/nabbar/genesis-mesh/errors"
)

// BindFlags registers the node's command-line flags on cmd and binds each
// one to its Store key, so CLI > config file > default precedence falls out
// of Viper for free. No environment variables are bound.
func BindFlags(cmd *cobra.Command, store *Store) liberr.Error {
	flags := cmd.Flags()

	flags.String("listen-addr", "", "address to listen on, e.g. 0.0.0.0:7000")
	flags.String("transport", "", "transport to use: tcp or websocket")
	flags.String("genesis", "", "path to the genesis block file")
	flags.String("cert", "", "path to this node's join certificate")
	flags.String("key", "", "path to this node's private key")
	flags.StringSlice("bootstrap-anchor", nil, "bootstrap anchor endpoint (repeatable)")
	flags.String("na-endpoint", "", "network authority HTTP endpoint")
	flags.String("log-level", "", "log level: fatal, error, warn, info, debug")
	flags.String("metrics-listen-addr", "", "address the Prometheus metrics server listens on")
	flags.String("data-dir", "", "directory for persisted node state")

	bindings := map[string]string{
		"listen-addr":         KeyListenAddr,
		"transport":           KeyTransport,
		"genesis":             KeyGenesisPath,
		"cert":                KeyCertPath,
		"key":                 KeyPrivateKeyPath,
		"bootstrap-anchor":    KeyBootstrapAnchors,
		"na-endpoint":         KeyNAEndpoint,
		"log-level":           KeyLogLevel,
		"metrics-listen-addr": KeyMetricsListenAddr,
		"data-dir":            KeyDataDir,
	}

	for flag, key := range bindings {
		if err := store.Raw().BindPFlag(key, flags.Lookup(flag)); err != nil {
			return liberr.Wrap(liberr.KindValidation, "bind flag "+flag, err)
		}
	}

	return nil
}
