// Package api exposes the market over HTTP: last result, clearing log and
// participant tree.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kilianp07/gridmarket/api/clearing"
	"github.com/kilianp07/gridmarket/api/participants"
	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/clearinglog"
	"github.com/kilianp07/gridmarket/infra/logger"
)

// Config enables the HTTP API.
type Config struct {
	// Addr is the listen address, e.g. ":8080". Empty disables the API.
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on the clearing routes.
	Token string `json:"token"`
}

// NewRouter mounts every route on a new mux.
func NewRouter(c *auction.Clearer, store clearinglog.Store, token string) http.Handler {
	if store == nil {
		store = clearinglog.NopStore{}
	}
	mux := http.NewServeMux()
	mux.Handle("/api/clearing/result", clearing.NewResultHandler(c, token))
	mux.Handle("/api/clearing/logs", clearing.NewLogHandler(store, token))
	mux.Handle("/api/participants/status", participants.NewStatusHandler(c.Root()))
	return mux
}

// Serve runs h on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	log := logger.New("api")
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("api shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("serving api on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
