// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tlsutil builds client TLS configurations.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrCertNotFound is returned when the certificate file does not exist.
	ErrCertNotFound = errors.New("certificate file not found")
	// ErrKeyNotFound is returned when the key file does not exist.
	ErrKeyNotFound = errors.New("key file not found")
	// ErrCANotFound is returned when the CA file does not exist.
	ErrCANotFound = errors.New("CA file not found")
	// ErrIncompleteKeyPair is returned when only one of CertPath and KeyPath is set.
	ErrIncompleteKeyPair = errors.New("certificate and key must be set together")
	// ErrLoadCertFailed is returned when loading the certificate fails.
	ErrLoadCertFailed = errors.New("failed to load certificate")
	// ErrParseCAFailed is returned when parsing the CA certificate fails.
	ErrParseCAFailed = errors.New("failed to parse CA certificate")
)

// Config holds the TLS parameters of a client.
type Config struct {
	// CAPath is a PEM bundle trusted in addition to the system roots.
	CAPath string
	// CertPath and KeyPath are the client certificate and key.
	CertPath string
	KeyPath  string
	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool
}

// IsZero reports whether c leaves the default transport configuration.
func (c Config) IsZero() bool {
	return c == Config{}
}

// BuildClientTLSConfig builds a tls.Config from the provided configuration.
//
// Returns nil, nil when config is nil or zero.
// Returns an error if:
//   - CAPath, CertPath or KeyPath does not exist
//   - only one of CertPath and KeyPath is set
//   - loading the key pair or parsing the CA bundle fails
func BuildClientTLSConfig(config *Config) (*tls.Config, error) {
	if config == nil || config.IsZero() {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: config.InsecureSkipVerify, //nolint:gosec
	}

	if config.CAPath != "" {
		caBytes, err := os.ReadFile(config.CAPath)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCANotFound, config.CAPath)
		} else if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}

		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("%w: %s", ErrParseCAFailed, config.CAPath)
		}
		tlsConfig.RootCAs = pool
	}

	if (config.CertPath == "") != (config.KeyPath == "") {
		return nil, ErrIncompleteKeyPair
	}
	if config.CertPath != "" {
		if _, err := os.Stat(config.CertPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCertNotFound, config.CertPath)
		}
		if _, err := os.Stat(config.KeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, config.KeyPath)
		}

		cert, err := tls.LoadX509KeyPair(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadCertFailed, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
