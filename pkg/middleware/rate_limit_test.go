package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingLimiter struct {
	hits map[string]int
	err  error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return true, l.err
	}
	l.hits[key]++
	return l.hits[key] <= limit, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func TestRateLimitBlocksAfterBudget(t *testing.T) {
	l := &countingLimiter{hits: map[string]int{}}
	h := RateLimit(l, RateLimitConfig{Requests: 2, Window: time.Minute})(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 3, l.hits["ip:203.0.113.7"])
}

func TestRateLimitFailsOpen(t *testing.T) {
	l := &countingLimiter{err: errors.New("redis down")}
	h := RateLimit(l, RateLimitConfig{Requests: 1, Window: time.Minute})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	assert.Equal(t, []string{"ip:198.51.100.1"}, ClientIPKey(req))
}
