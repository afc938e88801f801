package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

// ExpiryWarning is how long before NotAfter a certificate counts as expiring soon.
const ExpiryWarning = 30 * 24 * time.Hour

var (
	ErrExpired     = errors.New("certificate expired")
	ErrNotYetValid = errors.New("certificate not yet valid")
)

// Pair is a loaded TLS key pair and its parsed leaf certificate.
type Pair struct {
	Certificate tls.Certificate
	Leaf        *x509.Certificate
	// ExpiresSoon is set when the leaf expires within ExpiryWarning of the check time.
	ExpiresSoon bool
}

// CheckPair loads the PEM certificate and key used for TLS and validates the leaf
// against now. A certificate outside its validity window is an error.
func CheckPair(certFile, keyFile string, now time.Time) (*Pair, error) {
	leaf, err := loadCertificate(certFile)
	if err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	if now.Before(leaf.NotBefore) {
		return nil, fmt.Errorf("%s valid from %s: %w", certFile, leaf.NotBefore.Format(time.RFC3339), ErrNotYetValid)
	}
	if IsExpired(leaf, now) {
		return nil, fmt.Errorf("%s expired %s: %w", certFile, leaf.NotAfter.Format(time.RFC3339), ErrExpired)
	}
	return &Pair{
		Certificate: cert,
		Leaf:        leaf,
		ExpiresSoon: leaf.NotAfter.Sub(now) < ExpiryWarning,
	}, nil
}

// TLSConfig serves the pair with a TLS 1.2 floor.
func (p *Pair) TLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{p.Certificate},
		MinVersion:   tls.VersionTLS12,
	}
}

// loadCertificate loads the first certificate from a PEM file.
func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, errors.New("failed to parse certificate PEM")
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
}

// IsExpired checks if a certificate is expired at now.
func IsExpired(cert *x509.Certificate, now time.Time) bool {
	return cert.NotAfter.Before(now)
}
