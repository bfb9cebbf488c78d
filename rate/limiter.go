// Package rate throttles API clients with one token bucket per client key.
package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out a token bucket per client key and forgets clients that
// have been idle for longer than Expiry.
type Limiter struct {
	Expiry   time.Duration
	Burst    int
	LimitRPS float64

	mu      sync.Mutex
	clients map[string]*clientLimiter
	done    chan struct{}
	once    sync.Once
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewLimiter(burst int, expiry time.Duration, limitRPS float64) *Limiter {
	lm := &Limiter{
		Expiry:   expiry,
		LimitRPS: limitRPS,
		Burst:    burst,
		clients:  make(map[string]*clientLimiter),
		done:     make(chan struct{}),
	}
	go lm.refresh(time.Minute)
	return lm
}

// Check consumes a token for key and reports whether the request may proceed.
func (l *Limiter) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.LimitRPS), l.Burst)}
		l.clients[key] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter.Allow()
}

// RetryAfter is the time a throttled client waits for its next token,
// rounded up to whole seconds.
func (l *Limiter) RetryAfter() time.Duration {
	if l.LimitRPS <= 0 {
		return l.Expiry
	}
	d := time.Duration(float64(time.Second) / l.LimitRPS)
	return (d + time.Second - 1) / time.Second * time.Second
}

// Close stops the background sweep of idle clients.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) refresh(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, cl := range l.clients {
		if time.Since(cl.lastAccess) > l.Expiry {
			delete(l.clients, key)
		}
	}
}

// Every converts the minimum interval between requests to a rate.
func Every(interval time.Duration) float64 {
	return float64(rate.Every(interval))
}
