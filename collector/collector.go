// Package collector implements the ingress listener that receives output
// events emitted by the Logstash container and forwards them to the test
// driver over a bounded queue.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

const shutdownGrace = 5 * time.Second

// Config for the response collector.
type Config struct {
	// Port the listener binds on all interfaces; the container posts here.
	Port int
	// Events is the send end of the single-producer/single-consumer queue.
	// A full queue suspends the request, applying backpressure to the
	// engine under test.
	Events chan<- types.Event
	Log    log.Logger
}

// Collector accepts POST requests with a JSON body on the root path and
// pushes each parsed event onto the queue. It has no per-test-case boundary
// signal; correlation is entirely the driver's concern.
type Collector struct {
	cfg Config
}

func New(cfg Config) *Collector {
	return &Collector{cfg: cfg}
}

// Run serves until ctx is cancelled, then shuts the listener down gracefully
// and returns. Any other server failure is a CommunicationError.
func (c *Collector) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.cfg.Port),
		Handler: c.Handler(ctx),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	c.cfg.Log.Debug("Response collector listening", "addr", server.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return types.NewCommunicationError("running response collector", err)
	}
}

// Handler returns the collector's HTTP surface. Split out so tests can drive
// it through httptest without binding the fixed port.
func (c *Collector) Handler(ctx context.Context) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		c.handleEvent(ctx, w, req)
	}).Methods(http.MethodPost)
	return r
}

func (c *Collector) handleEvent(ctx context.Context, w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "request body is not valid JSON", http.StatusBadRequest)
		return
	}

	// The send blocks while the queue is full; that suspension is the only
	// backpressure mechanism in the system. When the consuming end is gone
	// the listener is done for.
	select {
	case c.cfg.Events <- types.Event(body):
		w.WriteHeader(http.StatusNoContent)
	case <-ctx.Done():
		http.Error(w, "collector is shutting down", http.StatusServiceUnavailable)
	}
}
