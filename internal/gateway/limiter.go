package gateway

import (
	"context"
	"net"
	"sync"
	"time"
)

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

// strikes counts one host's failed handshakes since the first of them.
type strikes struct {
	count int
	since time.Time
}

// authRateLimiter refuses handshakes from a host once it has failed
// authRateMaxFails times within authRateWindow of its first failure.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string]*strikes
	now      func() time.Time
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{
		failures: make(map[string]*strikes),
		now:      time.Now,
	}
}

// remoteHost strips the port so every connection from one machine shares a
// budget.
func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	return remoteAddr
}

// current returns host's live strikes, dropping them once the window passed.
func (l *authRateLimiter) current(host string) *strikes {
	st, ok := l.failures[host]
	if !ok {
		return nil
	}
	if l.now().Sub(st.since) >= authRateWindow {
		delete(l.failures, host)
		return nil
	}
	return st
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.current(remoteHost(remoteAddr))
	return st == nil || st.count < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := remoteHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if st := l.current(host); st != nil {
		st.count++
		return
	}
	if len(l.failures) >= authRateMaxIPs {
		l.evictOldest()
	}
	l.failures[host] = &strikes{count: 1, since: l.now()}
}

func (l *authRateLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for host := range l.failures {
		l.current(host)
	}
}

func (l *authRateLimiter) evictOldest() {
	var victim string
	var oldest time.Time
	for host, st := range l.failures {
		if victim == "" || st.since.Before(oldest) {
			victim, oldest = host, st.since
		}
	}
	delete(l.failures, victim)
}

// run sweeps expired entries every minute until ctx ends.
func (l *authRateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}
