package services

import (
	"sync"

	"livechat/internal/core/domain"
	"livechat/internal/platform/metrics"

	"golang.org/x/time/rate"
)

// Governor applies the inbound token bucket per connection. Outbound
// backpressure lives in each client's bounded queue; the governor only
// tracks who is allowed to push work in.
type Governor struct {
	mu    sync.Mutex
	conns map[string]*rate.Limiter

	sendRate  rate.Limit
	sendBurst int
}

func NewGovernor(sendRate float64, sendBurst int) *Governor {
	if sendRate <= 0 {
		sendRate = 1
	}
	if sendBurst <= 0 {
		sendBurst = 5
	}
	return &Governor{
		conns:     make(map[string]*rate.Limiter),
		sendRate:  rate.Limit(sendRate),
		sendBurst: sendBurst,
	}
}

func (g *Governor) limiter(connID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.conns[connID]
	if !ok {
		l = rate.NewLimiter(g.sendRate, g.sendBurst)
		g.conns[connID] = l
	}
	return l
}

// Admit returns domain.ErrRateLimited when the connection's bucket is
// empty. A throttled attempt consumes no sequence number.
func (g *Governor) Admit(connID string) error {
	if !g.limiter(connID).Allow() {
		metrics.RateLimited.Inc()
		return domain.ErrRateLimited
	}
	return nil
}

// Forget drops the limiter state for a closed connection.
func (g *Governor) Forget(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, connID)
}
