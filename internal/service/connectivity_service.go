package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Prober answers a single reachability question against the remote API.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ConnectivityService polls the remote API and exposes a reachable/
// unreachable signal. Subscribers are invoked on every transition; the
// unreachable→reachable edge is what the agent uses to trigger an
// opportunistic flush instead of waiting for the next periodic tick.
type ConnectivityService struct {
	prober   Prober
	interval time.Duration
	log      zerolog.Logger

	online atomic.Bool

	mu   sync.Mutex
	subs []func(online bool)
}

// NewConnectivityService creates a new ConnectivityService. The initial
// state is offline until the first successful probe.
func NewConnectivityService(prober Prober, interval time.Duration, log zerolog.Logger) *ConnectivityService {
	return &ConnectivityService{
		prober:   prober,
		interval: interval,
		log:      log.With().Str("component", "connectivity").Logger(),
	}
}

// Start begins the probe loop. Call in a goroutine; returns when ctx ends.
func (s *ConnectivityService) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("Connectivity observer started")

	// Probe immediately so the agent does not sit in the offline default
	// for a full interval after startup.
	s.observe(s.prober.Probe(ctx))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Connectivity observer stopped")
			return
		case <-ticker.C:
			s.observe(s.prober.Probe(ctx))
		}
	}
}

// Online reports the last observed reachability state.
func (s *ConnectivityService) Online() bool {
	return s.online.Load()
}

// ForceCheck probes immediately and applies the result, returning it.
// Used by the loopback API so the UI can refresh the indicator on demand.
func (s *ConnectivityService) ForceCheck(ctx context.Context) bool {
	online := s.prober.Probe(ctx)
	s.observe(online)
	return online
}

// Subscribe registers a transition callback. Callbacks run sequentially on
// the observer's goroutine and must not block; rapid flapping only ever
// produces alternating true/false calls, never concurrent ones.
func (s *ConnectivityService) Subscribe(fn func(online bool)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *ConnectivityService) observe(online bool) {
	previous := s.online.Swap(online)
	if previous == online {
		return
	}

	s.log.Info().Bool("online", online).Msg("Connectivity changed")

	s.mu.Lock()
	subs := make([]func(bool), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}
