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

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexandremahdhaoui/tagconverge/internal/metrics"
	"github.com/go-logr/logr"
)

// setupMetricsServer creates an HTTP server for the run metrics.
func setupMetricsServer(addr string, rec *metrics.Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())

	return &http.Server{ //nolint:exhaustruct
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serveMetrics starts srv in the background and returns a function stopping it.
func serveMetrics(srv *http.Server, log logr.Logger) (stop func()) {
	go func() {
		log.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
