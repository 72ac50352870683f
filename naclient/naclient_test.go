package naclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nabbar/genesis-mesh/naclient"
	"github.com/nabbar/genesis-mesh/schema"
)

func TestClientHealthGenesisPolicy(t *testing.T) {
	gb := schema.GenesisBlock{NetworkName: "test-mesh", ProtocolVersion: "1"}
	policy := schema.Policy{PolicyID: "p1", IssuedAt: time.Now()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_ = json.NewEncoder(w).Encode(naclient.HealthReply{Status: "ok", Network: "test-mesh", Version: "1"})
		case "/genesis":
			_ = json.NewEncoder(w).Encode(gb)
		case "/policy":
			_ = json.NewEncoder(w).Encode(policy)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cli := naclient.New(srv.URL)

	h, err := cli.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Status != "ok" || h.Network != "test-mesh" {
		t.Fatalf("unexpected health reply: %+v", h)
	}

	got, err := cli.Genesis(context.Background())
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if got.NetworkName != gb.NetworkName {
		t.Fatalf("unexpected genesis: %+v", got)
	}

	p, err := cli.Policy(context.Background())
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if p.PolicyID != "p1" {
		t.Fatalf("unexpected policy: %+v", p)
	}
}

func TestClientJoin(t *testing.T) {
	var received naclient.JoinRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/join" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(schema.Certificate{
			CertID:        "node-a",
			NodePublicKey: received.NodePublicKey,
			Roles:         received.Roles,
		})
	}))
	defer srv.Close()

	cli := naclient.New(srv.URL)
	cert, err := cli.Join(context.Background(), naclient.JoinRequest{
		NodePublicKey: "abc",
		Roles:         []string{"role:client"},
		ValidityHours: 24,
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if cert.CertID != "node-a" || cert.NodePublicKey != "abc" {
		t.Fatalf("unexpected certificate: %+v", cert)
	}
	if received.ValidityHours != 24 {
		t.Fatalf("server did not receive expected request: %+v", received)
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad role"}`))
	}))
	defer srv.Close()

	cli := naclient.New(srv.URL)
	if _, err := cli.Join(context.Background(), naclient.JoinRequest{}); err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
}
