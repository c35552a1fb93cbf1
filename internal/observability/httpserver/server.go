// Package httpserver serves /metrics, /healthz and optionally /debug/pprof/.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	rtsup "github.com/rcomino/gabriel-messenger/internal/runtime/supervisor"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const (
	DefaultAddr     = "127.0.0.1:9090"
	shutdownTimeout = 2 * time.Second
)

// Config controls the server.
//
// Security: prefer binding to localhost (default). Pprof on a non-loopback
// address is refused.
type Config struct {
	Addr  string
	Pprof bool
}

// HealthFunc returns the body of /healthz and whether the process is healthy.
type HealthFunc func() (body any, ok bool)

type Service struct {
	cfg    Config
	log    logx.Logger
	gather prometheus.Gatherer
	health HealthFunc

	mu   sync.Mutex
	sup  *rtsup.Supervisor
	addr string
}

func New(cfg Config, gather prometheus.Gatherer, health HealthFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	return &Service{cfg: cfg, gather: gather, health: health, log: log.With(logx.String("comp", "httpserver"))}
}

// Start runs the server under a restart loop. Start is idempotent.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.Pprof && !isLoopbackAddr(s.cfg.Addr) {
		return errors.New("pprof refused to start: non-loopback addr " + s.cfg.Addr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	ready := make(chan struct{})
	var once sync.Once
	s.sup.GoRestart("http.serve", func(c context.Context) error {
		return s.serveOnce(c, func() { once.Do(func() { close(ready) }) })
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))

	select {
	case <-ready:
	case <-time.After(time.Second):
	}
	return nil
}

// Addr is the bound listen address once started.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	_ = sup.Stop(ctx)
	s.log.Info("http server stopped")
}

// Handler builds the mux. Exposed for tests.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.gather != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		var (
			body any = "ok"
			ok       = true
		)
		if s.health != nil {
			body, ok = s.health()
		}
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return mux
}

func (s *Service) serveOnce(ctx context.Context, started func()) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.log.Error("listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	started()
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
