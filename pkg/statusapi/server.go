// Package statusapi serves the latest status snapshot over HTTP.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	apis "github.com/cheeseonhead/bb-for-fun/pkg/api/v1alpha1"
	"github.com/cheeseonhead/bb-for-fun/pkg/port"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	status  *port.Port
	limiter *rate.Limiter
	mux     *http.ServeMux
}

func NewServer(status *port.Port, limiter *rate.Limiter) *Server {
	s := &Server{
		status:  status,
		limiter: limiter,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/healthz", handleHealthz)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		requestLatency.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	}()

	// Rate limiting
	if !s.limiter.Allow() {
		klog.V(2).Info("Status API rate limit exceeded")
		requestsRateLimited.Inc()
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	klog.V(5).Infof("Status API %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "invalid method", http.StatusMethodNotAllowed)
		return
	}

	var snap apis.StatusSnapshot
	if !s.status.Read(&snap) {
		http.Error(w, "no status yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&snap); err != nil {
		klog.Errorf("Failed to write status: %v", err)
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("Status API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
