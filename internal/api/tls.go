package api

import (
	"crypto/tls"
	"fmt"
)

// TLSConfig names the certificate and key files of the API server.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

var tlsConfig *TLSConfig

// InitTLS enables TLS when both files are given (STIMULI_TLS_CERT and
// STIMULI_TLS_KEY). Half a pair is an error.
func InitTLS(certFile, keyFile string) error {
	switch {
	case certFile == "" && keyFile == "":
		tlsConfig = nil
		return nil
	case certFile == "" || keyFile == "":
		return fmt.Errorf("tls: both certificate and key are required")
	}
	tlsConfig = &TLSConfig{CertFile: certFile, KeyFile: keyFile}
	return nil
}

// IsTLSEnabled returns true if TLS is configured.
func IsTLSEnabled() bool {
	return tlsConfig != nil && tlsConfig.CertFile != "" && tlsConfig.KeyFile != ""
}

// LoadTLSConfig loads the configured key pair. It returns nil without an
// error when TLS is disabled.
func LoadTLSConfig() (*tls.Config, error) {
	if !IsTLSEnabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// SetTLSConfigForTest allows tests to set TLS config directly.
func SetTLSConfigForTest(cfg *TLSConfig) {
	tlsConfig = cfg
}
