package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

type stubFetcher struct {
	calls int
	err   error
}

func (s *stubFetcher) Fetch(ctx context.Context, cfg EndpointConfig) (Payload, error) {
	s.calls++
	if s.err != nil {
		return Payload{}, s.err
	}
	return Payload{Body: []byte(`{}`), URL: cfg.URL}, nil
}

func TestBreakerFetcher_OpensAfterConsecutiveNetworkFailures(t *testing.T) {
	stub := &stubFetcher{err: &Error{Kind: KindConnection, Err: errors.New("refused")}}
	b := NewBreakerFetcher(stub, BreakerConfig{Name: "weather", ConsecutiveFailures: 3, OpenTimeout: time.Minute}, nil)
	cfg := EndpointConfig{URL: "http://weather.local"}

	for i := 0; i < 3; i++ {
		if _, err := b.Fetch(context.Background(), cfg); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if b.State() != "open" {
		t.Fatalf("State = %s, want open", b.State())
	}

	_, err := b.Fetch(context.Background(), cfg)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if kind, _ := KindOf(err); kind != KindConnection {
		t.Errorf("Kind = %s, want %s", kind, KindConnection)
	}
	if stub.calls != 3 {
		t.Errorf("underlying calls = %d, want 3", stub.calls)
	}
}

func TestBreakerFetcher_DataErrorsDoNotTrip(t *testing.T) {
	stub := &stubFetcher{err: &Error{Kind: KindParse, Err: errors.New("bad json")}}
	b := NewBreakerFetcher(stub, BreakerConfig{Name: "feed", ConsecutiveFailures: 2}, nil)

	for i := 0; i < 5; i++ {
		_, _ = b.Fetch(context.Background(), EndpointConfig{URL: "http://feed.local"})
	}
	if b.State() != "closed" {
		t.Errorf("State = %s, want closed", b.State())
	}
	if stub.calls != 5 {
		t.Errorf("underlying calls = %d, want 5", stub.calls)
	}
}

func TestBreakerFetcher_PassesPayloadThrough(t *testing.T) {
	b := NewBreakerFetcher(&stubFetcher{}, BreakerConfig{Name: "metrics"}, nil)
	p, err := b.Fetch(context.Background(), EndpointConfig{URL: "http://metrics.local"})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if p.URL != "http://metrics.local" {
		t.Errorf("URL = %q", p.URL)
	}
}
