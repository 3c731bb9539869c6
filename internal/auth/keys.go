package auth

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Key file names written by WriteKeyPair.
const (
	PrivateKeyFile = "jwt_private.pem"
	PublicKeyFile  = "jwt_public.pem"
)

// WriteKeyPair generates an Ed25519 key pair and writes it as PEM files in
// dir, mode 0600. Existing key files are never overwritten.
func WriteKeyPair(dir string) (privPath, pubPath string, err error) {
	privPath = filepath.Join(dir, PrivateKeyFile)
	pubPath = filepath.Join(dir, PublicKeyFile)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("auth: create %s: %w", dir, err)
	}
	for _, path := range []string{privPath, pubPath} {
		if _, err := os.Stat(path); err == nil {
			return "", "", fmt.Errorf("auth: %s already exists, delete it first to rotate keys", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", "", fmt.Errorf("auth: stat %s: %w", path, err)
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("auth: generate key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", fmt.Errorf("auth: marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", "", fmt.Errorf("auth: marshal public key: %w", err)
	}

	if err := writePEM(privPath, "PRIVATE KEY", privDER); err != nil {
		return "", "", err
	}
	if err := writePEM(pubPath, "PUBLIC KEY", pubDER); err != nil {
		return "", "", err
	}
	return privPath, pubPath, nil
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // path built from operator-supplied dir
	if err != nil {
		return fmt.Errorf("auth: create %s: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return fmt.Errorf("auth: write %s: %w", path, err)
	}
	return f.Close()
}

// LoadKeyPair reads a PKCS#8 private key and a PKIX public key from PEM
// files and checks that they belong together.
func LoadKeyPair(privPath, pubPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	priv, err := readPEMKey[ed25519.PrivateKey](privPath, x509.ParsePKCS8PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	pub, err := readPEMKey[ed25519.PublicKey](pubPath, x509.ParsePKIXPublicKey)
	if err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(priv.Public().(ed25519.PublicKey), pub) {
		return nil, nil, errors.New("auth: public key does not match private key")
	}
	return priv, pub, nil
}

func readPEMKey[K any](path string, parse func([]byte) (any, error)) (K, error) {
	var zero K
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return zero, fmt.Errorf("auth: read %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return zero, fmt.Errorf("auth: %s holds no PEM block", path)
	}
	key, err := parse(block.Bytes)
	if err != nil {
		return zero, fmt.Errorf("auth: parse %s: %w", path, err)
	}
	k, ok := key.(K)
	if !ok {
		return zero, fmt.Errorf("auth: %s is not an Ed25519 key", path)
	}
	return k, nil
}
