// Package riskapi queries an external token-reputation service and
// normalizes its response shapes into one fixed report type.
package riskapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// Report is the normalized external risk assessment. Score is 0-100,
// higher = safer. A nil *Report means "no data", never an error.
type Report struct {
	Score            int      `json:"score"`
	RiskFlags        []string `json:"risk_flags,omitempty"`
	Rugged           bool     `json:"rugged"`
	InsidersDetected int      `json:"insiders_detected"`
	LPLocked         bool     `json:"lp_locked"`
	Verified         bool     `json:"verified"`
}

// Config configures the external risk client.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	ReportTimeout  time.Duration `yaml:"report_timeout"`
	SummaryTimeout time.Duration `yaml:"summary_timeout"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.rugcheck.xyz/v1",
		ReportTimeout:  8 * time.Second,
		SummaryTimeout: 3 * time.Second,
		RetryBackoff:   500 * time.Millisecond,
	}
}

// Client fetches token risk reports.
type Client struct {
	config     Config
	httpClient *http.Client

	// Stats.
	reportHits  atomic.Int64
	summaryHits atomic.Int64
	misses      atomic.Int64
	rateLimited atomic.Int64
}

// NewClient creates a risk API client.
func NewClient(config Config) *Client {
	if config.ReportTimeout == 0 {
		config.ReportTimeout = 8 * time.Second
	}
	if config.SummaryTimeout == 0 {
		config.SummaryTimeout = 3 * time.Second
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{},
	}
}

// Fetch returns the best available risk report for a mint, trying the
// detailed report first and falling back to the lighter summary. Any
// failure degrades to nil; evaluation always proceeds without it.
func (c *Client) Fetch(ctx context.Context, mint solana.Pubkey) *Report {
	if report := c.fetchDetailed(ctx, mint); report != nil {
		c.reportHits.Add(1)
		return report
	}

	if report := c.fetchSummary(ctx, mint); report != nil {
		c.summaryHits.Add(1)
		return report
	}

	c.misses.Add(1)
	log.Debug().Str("mint", mint.Short()).Msg("riskapi: no data from either endpoint")
	return nil
}

// fetchDetailed queries the full report endpoint, including insider data.
func (c *Client) fetchDetailed(ctx context.Context, mint solana.Pubkey) *Report {
	var resp struct {
		ScoreNormalised int  `json:"score_normalised"`
		Rugged          bool `json:"rugged"`
		Risks           []struct {
			Name  string `json:"name"`
			Level string `json:"level"`
		} `json:"risks"`
		Verification *struct {
			JupVerified bool `json:"jup_verified"`
		} `json:"verification"`
		Markets []struct {
			LP struct {
				LockedPct float64 `json:"lpLockedPct"`
			} `json:"lp"`
		} `json:"markets"`
		InsiderNetworks []struct {
			Size int `json:"size"`
		} `json:"insiderNetworks"`
	}

	url := fmt.Sprintf("%s/tokens/%s/report", c.config.BaseURL, mint)
	if !c.fetchJSON(ctx, url, c.config.ReportTimeout, &resp) {
		return nil
	}

	report := &Report{
		Score:  clampScore(100 - resp.ScoreNormalised),
		Rugged: resp.Rugged,
	}
	for _, r := range resp.Risks {
		report.RiskFlags = append(report.RiskFlags, r.Name)
	}
	if resp.Verification != nil {
		report.Verified = resp.Verification.JupVerified
	}
	for _, m := range resp.Markets {
		if m.LP.LockedPct >= 90 {
			report.LPLocked = true
			break
		}
	}
	for _, n := range resp.InsiderNetworks {
		if n.Size > 0 {
			report.InsidersDetected += n.Size
		}
	}

	return report
}

// fetchSummary queries the lighter endpoint; it omits insider data.
func (c *Client) fetchSummary(ctx context.Context, mint solana.Pubkey) *Report {
	var resp struct {
		ScoreNormalised int  `json:"score_normalised"`
		Rugged          bool `json:"rugged"`
		Risks           []struct {
			Name string `json:"name"`
		} `json:"risks"`
	}

	url := fmt.Sprintf("%s/tokens/%s/report/summary", c.config.BaseURL, mint)
	if !c.fetchJSON(ctx, url, c.config.SummaryTimeout, &resp) {
		return nil
	}

	report := &Report{
		Score:  clampScore(100 - resp.ScoreNormalised),
		Rugged: resp.Rugged,
	}
	for _, r := range resp.Risks {
		report.RiskFlags = append(report.RiskFlags, r.Name)
	}
	return report
}

// FetchInsiderCount queries the standalone insider-graph endpoint.
// Best effort: failures return 0 and are never surfaced.
func (c *Client) FetchInsiderCount(ctx context.Context, mint solana.Pubkey) int {
	var resp []struct {
		Size int `json:"size"`
	}

	url := fmt.Sprintf("%s/tokens/%s/insiders/graph", c.config.BaseURL, mint)
	if !c.fetchJSON(ctx, url, c.config.SummaryTimeout, &resp) {
		return 0
	}

	count := 0
	for _, n := range resp {
		count += n.Size
	}
	return count
}

// fetchJSON performs one GET with its own timeout, retrying exactly once
// with fixed backoff on HTTP 429. Returns false on any failure.
func (c *Client) fetchJSON(ctx context.Context, url string, timeout time.Duration, out any) bool {
	for attempt := 0; attempt < 2; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		body, status, err := c.doGet(reqCtx, url)
		cancel()

		if err != nil {
			log.Debug().Err(err).Str("url", url).Msg("riskapi: request failed")
			return false
		}

		if status == http.StatusTooManyRequests {
			c.rateLimited.Add(1)
			if attempt == 0 {
				select {
				case <-time.After(c.config.RetryBackoff):
					continue
				case <-ctx.Done():
					return false
				}
			}
			return false
		}

		if status != http.StatusOK {
			return false
		}

		if err := json.Unmarshal(body, out); err != nil {
			log.Debug().Err(err).Str("url", url).Msg("riskapi: unparseable response")
			return false
		}
		return true
	}
	return false
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("riskapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("riskapi: http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("riskapi: read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Stats reports endpoint hit counters.
type Stats struct {
	ReportHits  int64 `json:"report_hits"`
	SummaryHits int64 `json:"summary_hits"`
	Misses      int64 `json:"misses"`
	RateLimited int64 `json:"rate_limited"`
}

func (c *Client) Stats() Stats {
	return Stats{
		ReportHits:  c.reportHits.Load(),
		SummaryHits: c.summaryHits.Load(),
		Misses:      c.misses.Load(),
		RateLimited: c.rateLimited.Load(),
	}
}
