/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Command genesis-na is a reference stub of the Network Authority's
// bootstrap HTTP contract (health, genesis, join, policy). It exists so
// integration tests and local development have something to dial; it
// holds no persistent state and is not a substitute for a production NA.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	"github.com/nabbar/genesis-mesh/naclient"
	"github.com/nabbar/genesis-mesh/schema"
)

// allowedRolePrefixes are the role values the stub will issue certificates
// for, per the NA HTTP contract's join validation rule.
var allowedRolePrefixes = []string{"role:anchor", "role:bridge", "role:client", "role:operator", "role:service:"}

type server struct {
	genesis schema.GenesisBlock
	naKey   libcry.PrivateKey
	naKeyID string
	policy  schema.Policy
}

func main() {
	genesisPath := flag.String("genesis", "", "path to a signed genesis block JSON file")
	naKeyPath := flag.String("na-key", "", "path to the NA's private key file")
	naKeyID := flag.String("na-key-id", "", "key id under which signatures are issued (defaults to the genesis's embedded NA key)")
	listenAddr := flag.String("listen-addr", "127.0.0.1:7080", "address to listen on")
	flag.Parse()

	if *genesisPath == "" || *naKeyPath == "" {
		log.Fatal("both -genesis and -na-key are required")
	}

	raw, err := os.ReadFile(*genesisPath)
	if err != nil {
		log.Fatalf("read genesis: %v", err)
	}
	var gb schema.GenesisBlock
	if err := json.Unmarshal(raw, &gb); err != nil {
		log.Fatalf("parse genesis: %v", err)
	}
	if !gb.Verify() {
		log.Fatal("genesis block root signature does not verify")
	}

	keyRaw, err := os.ReadFile(*naKeyPath)
	if err != nil {
		log.Fatalf("read na key: %v", err)
	}
	sk, perr := libcry.ParsePrivateKey(strings.TrimSpace(string(keyRaw)))
	if perr != nil {
		log.Fatalf("parse na key: %v", perr)
	}

	keyID := *naKeyID
	if keyID == "" {
		keyID = gb.NetworkAuthority.PublicKey
	}

	policy := schema.Policy{
		PolicyID:         "bootstrap-default",
		IssuedAt:         time.Now(),
		MinClientVersion: gb.ProtocolVersion,
		AllowedServices:  nil,
	}
	if err := policy.SignNA(keyID, sk); err != nil {
		log.Fatalf("sign default policy: %v", err)
	}

	srv := &server{genesis: gb, naKey: sk, naKeyID: keyID, policy: policy}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/genesis", srv.handleGenesis)
	mux.HandleFunc("/join", srv.handleJoin)
	mux.HandleFunc("/policy", srv.handlePolicy)

	log.Printf("genesis-na stub listening on %s for network %q", *listenAddr, gb.NetworkName)
	log.Fatal(http.ListenAndServe(*listenAddr, mux))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, naclient.HealthReply{
		Status:  "ok",
		Network: s.genesis.NetworkName,
		Version: s.genesis.ProtocolVersion,
	})
}

func (s *server) handleGenesis(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.genesis)
}

func (s *server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.policy)
}

func (s *server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req naclient.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	for _, role := range req.Roles {
		if !roleAllowed(role) {
			http.Error(w, "role not permitted: "+role, http.StatusBadRequest)
			return
		}
	}
	if req.ValidityHours <= 0 {
		req.ValidityHours = 24
	}

	now := time.Now()
	cert := schema.Certificate{
		CertID:        uniqueCertID(req.NodePublicKey),
		NodePublicKey: req.NodePublicKey,
		NetworkName:   s.genesis.NetworkName,
		Roles:         req.Roles,
		IssuedAt:      now,
		ExpiresAt:     now.Add(time.Duration(req.ValidityHours) * time.Hour),
		IssuerKeyID:   s.naKeyID,
	}
	if err := cert.SignNA(s.naKeyID, s.naKey); err != nil {
		http.Error(w, "sign certificate failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, cert)
}

func roleAllowed(role string) bool {
	for _, prefix := range allowedRolePrefixes {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

// uniqueCertID derives a stable certificate id from the requester's public
// key, since the stub has no separate node-id namespace.
func uniqueCertID(nodePublicKey string) string {
	if len(nodePublicKey) > 12 {
		return "cert-" + nodePublicKey[:12]
	}
	return "cert-" + nodePublicKey
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
