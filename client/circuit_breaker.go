package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// CircuitBreakerClient guards the mutating calls of a Client with
// per-host circuit breakers. It never retries: once a breaker opens,
// further mutations against that host fail immediately.
type CircuitBreakerClient struct {
	*Client
	threshold int64
	breakers  map[string]*circuit.Breaker
}

// NewCircuitBreakerClient wraps c. The breaker for a host trips after
// threshold consecutive failures; a threshold of 0 disables it.
func NewCircuitBreakerClient(c *Client, threshold int64) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		Client:    c,
		threshold: threshold,
		breakers:  make(map[string]*circuit.Breaker),
	}
}

// getBreaker returns or creates the breaker for host.
func (cbc *CircuitBreakerClient) getBreaker(host string) *circuit.Breaker {
	if breaker, ok := cbc.breakers[host]; ok {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker := circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(cbc.threshold),
	})
	cbc.breakers[host] = breaker
	return breaker
}

func (cbc *CircuitBreakerClient) call(rawURL string, fn func() error) error {
	if cbc.threshold <= 0 {
		return fn()
	}
	host := extractHost(rawURL)
	breaker := cbc.getBreaker(host)
	if !breaker.Ready() {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrRegistryUnavailable)
	}
	return breaker.Call(fn, 0)
}

// Delete wraps Client.Delete with the host's breaker.
func (cbc *CircuitBreakerClient) Delete(ctx context.Context, url string) error {
	return cbc.call(url, func() error {
		return cbc.Client.Delete(ctx, url)
	})
}

// Put wraps Client.Put with the host's breaker.
func (cbc *CircuitBreakerClient) Put(ctx context.Context, url string, body io.Reader, size int64) ([]byte, error) {
	var out []byte
	err := cbc.call(url, func() error {
		var putErr error
		out, putErr = cbc.Client.Put(ctx, url, body, size)
		return putErr
	})
	return out, err
}

// BreakerState returns "open" or "closed" per host seen so far.
func (cbc *CircuitBreakerClient) BreakerState() map[string]string {
	states := make(map[string]string, len(cbc.breakers))
	for host, breaker := range cbc.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// extractHost extracts the host of a URL for breaker grouping.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
