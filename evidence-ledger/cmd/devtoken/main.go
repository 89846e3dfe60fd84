// devtoken generates an RS256 key pair for local deployments and mints
// bearer tokens the evidence ledger service accepts.
//
//	devtoken -gen-key -key-out devops/certs/ledger.key -pub-out devops/certs/ledger.pub
//	devtoken -key devops/certs/ledger.key -sub officer-1 -role POLICE -designation Inspector
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Kaaval/Main/evidence-ledger/internal/auth"
	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func main() {
	genKey := flag.Bool("gen-key", false, "generate a new key pair and exit")
	keyOut := flag.String("key-out", "devops/certs/ledger.key", "private key output path (with -gen-key)")
	pubOut := flag.String("pub-out", "devops/certs/ledger.pub", "public key output path (with -gen-key)")
	keyPath := flag.String("key", "devops/certs/ledger.key", "private key used to sign")
	issuer := flag.String("issuer", "", "token issuer (iss)")
	sub := flag.String("sub", "", "principal id (sub)")
	name := flag.String("name", "", "display name")
	role := flag.String("role", "POLICE", "ADMIN, POLICE, FORENSICS or LEGAL")
	designation := flag.String("designation", "", "designation")
	org := flag.String("org", "", "organisation")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *genKey {
		must(generateKeyPair(*keyOut, *pubOut))
		fmt.Printf("wrote private key -> %s\nwrote public key -> %s\n", *keyOut, *pubOut)
		return
	}

	priv, err := readPrivateKey(*keyPath)
	must(err)
	p := models.Principal{
		ID:          *sub,
		Name:        *name,
		Role:        models.Role(strings.ToUpper(*role)),
		Designation: *designation,
		Org:         *org,
	}
	if p.ID == "" || !p.Role.Valid() {
		must(errors.New("-sub and a valid -role are required"))
	}
	token, err := auth.SignToken(priv, p, *issuer, *ttl, time.Now())
	must(err)
	fmt.Println(token)
}

func generateKeyPair(keyOut, pubOut string) error {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	for _, p := range []string{keyOut, pubOut} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(keyOut, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600); err != nil {
		return err
	}
	return os.WriteFile(pubOut, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o644)
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block", path)
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rsaKey, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: not an RSA key", path)
	}
	return rsaKey, nil
}
