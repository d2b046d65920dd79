// Package rates looks up currency conversion rates with safe fallbacks. A
// failed lookup never aborts a workflow: callers get the last good table,
// or the built-in defaults.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

// DefaultRates is the table used when no lookup has ever succeeded.
var DefaultRates = map[string]float64{
	"USD": 1,
	"EUR": 1.08,
	"GBP": 1.27,
}

type Service interface {
	GetRates(ctx context.Context) map[string]float64
}

// StaticService always returns a fixed table. Tests and offline runs use it.
type StaticService struct {
	Rates map[string]float64
}

func (s StaticService) GetRates(context.Context) map[string]float64 {
	if s.Rates == nil {
		return DefaultRates
	}
	return s.Rates
}

type httpService struct {
	log    *logger.Logger
	url    string
	client *http.Client

	mu       sync.RWMutex
	lastGood map[string]float64
}

// NewHTTPService builds a rates client against the given endpoint. The
// endpoint is expected to return a flat {"USD": 1, ...} JSON object.
func NewHTTPService(url string, baseLog *logger.Logger) (Service, error) {
	if url == "" {
		return nil, fmt.Errorf("missing rates url")
	}
	return &httpService{
		log:    baseLog.With("service", "RatesService"),
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (s *httpService) GetRates(ctx context.Context) map[string]float64 {
	fetched, err := s.fetch(ctx)
	if err == nil {
		s.mu.Lock()
		s.lastGood = fetched
		s.mu.Unlock()
		return fetched
	}
	s.log.Warn("Rates lookup failed, falling back", "error", err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastGood != nil {
		return s.lastGood
	}
	return DefaultRates
}

func (s *httpService) fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates endpoint returned %d", resp.StatusCode)
	}
	var out map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rates endpoint returned empty table")
	}
	return out, nil
}
