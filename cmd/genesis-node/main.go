/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Command genesis-node runs a Genesis Mesh node, and offers two auxiliary
// subcommands (genesis verify, cert show) for inspecting the key material a
// node needs before it can join a network.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nabbar/genesis-mesh/config"
	liblog "github.com/nabbar/genesis-mesh/logger"
	"github.com/nabbar/genesis-mesh/node"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "genesis-node",
		Short: "Run and inspect a Genesis Mesh node",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML/JSON node configuration file")

	root.AddCommand(runCmd(&cfgFile), genesisCmd(), certCmd())
	return root
}

func loadStore(cfgFile string, cmd *cobra.Command) (*config.Store, liblog.Logger, error) {
	store := config.NewStore(viper.New())
	config.ApplyDefaults(store)

	if err := config.BindFlags(cmd, store); err != nil {
		return nil, nil, err
	}
	if cfgFile != "" {
		store.SetConfigFile(cfgFile)
		if err := store.ReadInConfig(); err != nil {
			return nil, nil, err
		}
	}

	lvl := parseLevel(store.String(config.KeyLogLevel))
	logger := liblog.New(os.Stderr, lvl)
	return store, logger, nil
}

func parseLevel(s string) liblog.Level {
	switch s {
	case "fatal":
		return liblog.FatalLevel
	case "error":
		return liblog.ErrorLevel
	case "warn":
		return liblog.WarnLevel
	case "debug":
		return liblog.DebugLevel
	default:
		return liblog.InfoLevel
	}
}

func runCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a node and block until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, logger, err := loadStore(*cfgFile, cmd)
			if err != nil {
				return err
			}
			cfg := config.LoadNodeConfig(store)

			identity, ierr := node.LoadIdentity(cfg.GenesisPath, cfg.CertPath, cfg.PrivateKeyPath, cfg.TrustedControlKeysPath)
			if ierr != nil {
				return ierr
			}

			n, nerr := node.New(node.Options{
				Cfg:      cfg,
				Identity: identity,
				Logger:   logger,
			})
			if nerr != nil {
				return nerr
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if serr := n.Start(ctx); serr != nil {
				return serr
			}
			logger.Info("node started", liblog.Fields{"listen_addr": n.ListenAddr(), "transport": cfg.Transport})

			serveMetrics(ctx, n, cfg.MetricsListenAddr, logger)

			<-ctx.Done()
			logger.Info("shutting down", nil)
			n.Stop()
			return nil
		},
	}
	return cmd
}

func genesisCmd() *cobra.Command {
	parent := &cobra.Command{Use: "genesis", Short: "Genesis Block operations"}

	verify := &cobra.Command{
		Use:   "verify <genesis-file>",
		Short: "Verify a Genesis Block's root signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			gb, perr := node.ParseGenesisBlock(raw)
			if perr != nil {
				return perr
			}
			if !gb.Verify() {
				return fmt.Errorf("genesis block %s: root signature does not verify", args[0])
			}
			fmt.Printf("OK: network %q protocol %q signed by root key is valid\n", gb.NetworkName, gb.ProtocolVersion)
			return nil
		},
	}
	parent.AddCommand(verify)
	return parent
}

func certCmd() *cobra.Command {
	parent := &cobra.Command{Use: "cert", Short: "Join certificate operations"}

	show := &cobra.Command{
		Use:   "show <cert-file>",
		Short: "Print a certificate's identity and validity window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cert, perr := node.ParseCertificate(raw)
			if perr != nil {
				return perr
			}
			out, jerr := json.MarshalIndent(map[string]interface{}{
				"cert_id":     cert.CertID,
				"network":     cert.NetworkName,
				"roles":       cert.Roles,
				"issued_at":   cert.IssuedAt,
				"expires_at":  cert.ExpiresAt,
				"issuer_key":  cert.IssuerKeyID,
			}, "", "  ")
			if jerr != nil {
				return jerr
			}
			fmt.Println(string(out))
			return nil
		},
	}
	parent.AddCommand(show)
	return parent
}
