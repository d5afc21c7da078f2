//go:build unit

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

package tlsutil_test

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/tagconverge/internal/util/tlsutil"
)

// writeServerCA writes the certificate of srv as a PEM bundle.
func writeServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestBuildClientTLSConfig_Zero(t *testing.T) {
	t.Parallel()

	for _, config := range []*tlsutil.Config{nil, {}} {
		tlsConfig, err := tlsutil.BuildClientTLSConfig(config)
		assert.NoError(t, err)
		assert.Nil(t, tlsConfig)
	}
}

func TestBuildClientTLSConfig_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	tests := []struct {
		name    string
		config  tlsutil.Config
		wantErr error
	}{
		{
			name:    "missing CA",
			config:  tlsutil.Config{CAPath: filepath.Join(dir, "missing.pem")},
			wantErr: tlsutil.ErrCANotFound,
		},
		{
			name:    "unparsable CA",
			config:  tlsutil.Config{CAPath: garbage},
			wantErr: tlsutil.ErrParseCAFailed,
		},
		{
			name:    "cert without key",
			config:  tlsutil.Config{CertPath: garbage},
			wantErr: tlsutil.ErrIncompleteKeyPair,
		},
		{
			name:    "missing cert",
			config:  tlsutil.Config{CertPath: filepath.Join(dir, "c.pem"), KeyPath: garbage},
			wantErr: tlsutil.ErrCertNotFound,
		},
		{
			name:    "missing key",
			config:  tlsutil.Config{CertPath: garbage, KeyPath: filepath.Join(dir, "k.pem")},
			wantErr: tlsutil.ErrKeyNotFound,
		},
		{
			name:    "invalid key pair",
			config:  tlsutil.Config{CertPath: garbage, KeyPath: garbage},
			wantErr: tlsutil.ErrLoadCertFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tlsutil.BuildClientTLSConfig(&tt.config)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildClientTLSConfig_TrustsCA(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tlsConfig, err := tlsutil.BuildClientTLSConfig(&tlsutil.Config{CAPath: writeServerCA(t, srv)})
	require.NoError(t, err)
	require.NotNil(t, tlsConfig.RootCAs)

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestBuildClientTLSConfig_InsecureSkipVerify(t *testing.T) {
	t.Parallel()

	tlsConfig, err := tlsutil.BuildClientTLSConfig(&tlsutil.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.True(t, tlsConfig.InsecureSkipVerify)
	assert.Nil(t, tlsConfig.RootCAs)
}
