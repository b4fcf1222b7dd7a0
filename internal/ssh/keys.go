package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	xssh "golang.org/x/crypto/ssh"
)

// KeyInfo describes a private key file.
type KeyInfo struct {
	Type        string
	Fingerprint string
	// Encrypted is set for passphrase-protected keys; Type and Fingerprint are
	// filled only when the file carries its public half.
	Encrypted bool
}

// InspectPrivateKey parses the private key at path without a passphrase.
func InspectPrivateKey(path string) (KeyInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyInfo{}, fmt.Errorf("read private key: %w", err)
	}
	signer, err := xssh.ParsePrivateKey(data)
	if err != nil {
		var missing *xssh.PassphraseMissingError
		if errors.As(err, &missing) {
			info := KeyInfo{Encrypted: true}
			if missing.PublicKey != nil {
				info.Type = missing.PublicKey.Type()
				info.Fingerprint = xssh.FingerprintSHA256(missing.PublicKey)
			}
			return info, nil
		}
		return KeyInfo{}, fmt.Errorf("parse private key: %w", err)
	}
	pub := signer.PublicKey()
	return KeyInfo{Type: pub.Type(), Fingerprint: xssh.FingerprintSHA256(pub)}, nil
}

// GenerateEd25519Keypair creates an ed25519 keypair, writing the private key in
// OpenSSH format to privateKeyPath (0600) and the public key next to it with a
// .pub suffix. An existing file is never overwritten.
func GenerateEd25519Keypair(privateKeyPath, comment string) (publicAuthorized string, err error) {
	if _, err := os.Stat(privateKeyPath); err == nil {
		return "", fmt.Errorf("private key already exists: %s", privateKeyPath)
	}
	pubKey, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	block, err := xssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(privateKeyPath), 0o700); err != nil {
		return "", fmt.Errorf("mkdir key dir: %w", err)
	}
	f, err := os.OpenFile(privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("write private key: %w", err)
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write private key: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write private key: %w", err)
	}

	sshPub, err := xssh.NewPublicKey(pubKey)
	if err != nil {
		return "", fmt.Errorf("public key: %w", err)
	}
	pub := xssh.MarshalAuthorizedKey(sshPub)
	if err := os.WriteFile(privateKeyPath+".pub", pub, 0o644); err != nil {
		return "", fmt.Errorf("write public key: %w", err)
	}
	return string(pub), nil
}
