package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF info labels for the sub-keys derived from the master key.
const (
	SessionKeyInfo = "jnanayoni-session"
	QRKeyInfo      = "jnanayoni-qr-label"
	BackupKeyInfo  = "jnanayoni-backup"
)

// ErrInvalidKeyLength is returned when the provided key length is invalid.
var ErrInvalidKeyLength = errors.New("invalid key length")

// DeriveKey derives a 32-byte sub-key from the master key using HKDF-SHA256.
func DeriveKey(master []byte, info string) ([]byte, error) {
	if len(master) != 32 {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Keys bundles the sub-keys used by the server.
type Keys struct {
	Session []byte
	QR      []byte
	Backup  []byte
}

// DeriveKeys derives every sub-key from master.
func DeriveKeys(master []byte) (Keys, error) {
	var k Keys
	var err error
	if k.Session, err = DeriveKey(master, SessionKeyInfo); err != nil {
		return Keys{}, err
	}
	if k.QR, err = DeriveKey(master, QRKeyInfo); err != nil {
		return Keys{}, err
	}
	if k.Backup, err = DeriveKey(master, BackupKeyInfo); err != nil {
		return Keys{}, err
	}
	return k, nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
