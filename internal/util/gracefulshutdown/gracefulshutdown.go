/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package gracefulshutdown cancels a run on SIGINT or SIGTERM and lets
// tracked work, such as pending reverts, finish before the process exits.
package gracefulshutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-logr/logr"
)

// ExitInterrupted is the exit code used when a signal stops the run.
const ExitInterrupted = 130

// GracefulShutdown holds the run context and the work that must complete
// before exiting.
type GracefulShutdown struct {
	ctx    context.Context
	cancel context.CancelFunc
	name   string
	log    logr.Logger

	once       sync.Once
	readyOnce  sync.Once
	finishOnce sync.Once
	wg         sync.WaitGroup

	// ready is closed once every Track call has been made.
	ready chan struct{}
	// finished is closed when the run completed without a signal.
	finished chan struct{}

	// exitFunc allows injecting exit behavior for testing
	exitFunc func(int)
}

// NewWithExit creates a GracefulShutdown with a custom exit function.
func NewWithExit(parent context.Context, name string, log logr.Logger, exitFunc func(int)) *GracefulShutdown {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGTERM, os.Interrupt)

	gs := &GracefulShutdown{
		ctx:      ctx,
		cancel:   cancel,
		name:     name,
		log:      log,
		ready:    make(chan struct{}),
		finished: make(chan struct{}),
		exitFunc: exitFunc,
	}

	go func() {
		select {
		case <-gs.finished:
			return
		case <-ctx.Done():
		}

		// Finish closes finished before cancelling.
		select {
		case <-gs.finished:
			return
		default:
		}

		select {
		case <-gs.ready:
		default:
			gs.log.Info("interrupted before the run started", "name", gs.name)
		}
		gs.Shutdown(ExitInterrupted)
	}()

	return gs
}

// New creates a GracefulShutdown exiting the process with os.Exit.
func New(parent context.Context, name string, log logr.Logger) *GracefulShutdown {
	return NewWithExit(parent, name, log, os.Exit)
}

// Context returns the run context. It is cancelled by a signal or Shutdown.
func (s *GracefulShutdown) Context() context.Context {
	return s.ctx
}

// Track registers work that must complete before exiting. Call the returned
// function when it is done. Every Track call must happen before Ready.
func (s *GracefulShutdown) Track() (done func()) {
	s.wg.Add(1)
	return s.wg.Done
}

// Ready signals that all Track calls have been made.
func (s *GracefulShutdown) Ready() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Finish releases the signal handler after a normal completion. A signal
// received afterwards no longer exits the process.
func (s *GracefulShutdown) Finish() {
	s.finishOnce.Do(func() {
		close(s.finished)
		s.cancel()
	})
}

// Shutdown cancels the run, waits for tracked work and exits with exitCode.
// Only the first call has any effect.
func (s *GracefulShutdown) Shutdown(exitCode int) {
	s.once.Do(func() {
		s.log.Info("gracefully shutting down, waiting for pending reverts", "name", s.name)
		s.cancel()
		s.wg.Wait()
		s.exitFunc(exitCode)
	})
}
