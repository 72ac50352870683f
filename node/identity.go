/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

package node

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strings"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/schema"
)

// Identity bundles the cryptographic and trust material a node is built
// from: its own keypair and join certificate, the network's Genesis Block,
// and the set of control-plane issuer keys it trusts.
type Identity struct {
	NodeID              string
	PrivateKey          libcry.PrivateKey
	Genesis             schema.GenesisBlock
	Cert                schema.Certificate
	TrustedControlKeys  map[string]libcry.PublicKey
}

// LoadIdentity reads the Genesis Block, this node's Join Certificate, and
// its private key from the given file paths, and the control-plane trusted
// issuer keys from trustedKeysPath (a JSON object of key id to base64
// Ed25519 public key; a missing file is not an error, it just yields no
// trusted issuers).
func LoadIdentity(genesisPath, certPath, keyPath, trustedKeysPath string) (Identity, liberr.Error) {
	var id Identity

	gb, err := loadGenesis(genesisPath)
	if err != nil {
		return id, err
	}
	id.Genesis = gb

	cert, err := loadCertificate(certPath)
	if err != nil {
		return id, err
	}
	id.Cert = cert
	id.NodeID = cert.CertID

	sk, err := loadPrivateKey(keyPath)
	if err != nil {
		return id, err
	}
	id.PrivateKey = sk

	trusted, err := loadTrustedControlKeys(trustedKeysPath)
	if err != nil {
		return id, err
	}
	id.TrustedControlKeys = trusted

	return id, nil
}

func loadGenesis(path string) (schema.GenesisBlock, liberr.Error) {
	raw, rerr := os.ReadFile(path)
	if rerr != nil {
		return schema.GenesisBlock{}, liberr.Wrap(liberr.KindTransport, "read genesis block", rerr)
	}
	gb, err := ParseGenesisBlock(raw)
	if err != nil {
		return gb, err
	}
	if !gb.Verify() {
		return gb, liberr.New(liberr.KindSignature, "invalid signature")
	}
	return gb, nil
}

func loadCertificate(path string) (schema.Certificate, liberr.Error) {
	raw, rerr := os.ReadFile(path)
	if rerr != nil {
		return schema.Certificate{}, liberr.Wrap(liberr.KindTransport, "read certificate", rerr)
	}
	return ParseCertificate(raw)
}

func loadPrivateKey(path string) (libcry.PrivateKey, liberr.Error) {
	raw, rerr := os.ReadFile(path)
	if rerr != nil {
		return libcry.PrivateKey{}, liberr.Wrap(liberr.KindTransport, "read private key", rerr)
	}
	return libcry.ParsePrivateKey(decodeKeyFile(raw))
}

// decodeKeyFile concatenates every non-comment, non-blank line of a key
// file into the single base64 string its lines were split across. Lines
// starting with '#' are comments.
func decodeKeyFile(raw []byte) string {
	var b strings.Builder
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// ParseGenesisBlock unmarshals a Genesis Block from its JSON file contents,
// without verifying its root signature (callers that need the acceptance
// rule should call Verify themselves, e.g. the "genesis verify" CLI command).
func ParseGenesisBlock(raw []byte) (schema.GenesisBlock, liberr.Error) {
	var gb schema.GenesisBlock
	if jerr := json.Unmarshal(raw, &gb); jerr != nil {
		return gb, liberr.Wrap(liberr.KindValidation, "parse genesis block", jerr)
	}
	return gb, nil
}

// ParseCertificate unmarshals a Join Certificate from its JSON file
// contents, without checking its validity window or NA signature.
func ParseCertificate(raw []byte) (schema.Certificate, liberr.Error) {
	var cert schema.Certificate
	if jerr := json.Unmarshal(raw, &cert); jerr != nil {
		return cert, liberr.Wrap(liberr.KindValidation, "parse certificate", jerr)
	}
	return cert, nil
}

func loadTrustedControlKeys(path string) (map[string]libcry.PublicKey, liberr.Error) {
	out := make(map[string]libcry.PublicKey)
	if path == "" {
		return out, nil
	}

	raw, rerr := os.ReadFile(path)
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return out, nil
		}
		return out, liberr.Wrap(liberr.KindTransport, "read trusted control keys", rerr)
	}

	var encoded map[string]string
	if jerr := json.Unmarshal(raw, &encoded); jerr != nil {
		return out, liberr.Wrap(liberr.KindValidation, "parse trusted control keys", jerr)
	}
	for keyID, b64 := range encoded {
		pk, err := libcry.ParsePublicKey(b64)
		if err != nil {
			return out, err
		}
		out[keyID] = pk
	}
	return out, nil
}
