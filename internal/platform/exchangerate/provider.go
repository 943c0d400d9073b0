// Package exchangerate converts Pi amounts to Egyptian pounds.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/platform/resilience"
)

const serviceName = "exchange-rate"

// egpPlaces is the precision EGP amounts are rounded to.
const egpPlaces = 2

// Conversion is the result of converting a Pi amount.
type Conversion struct {
	AmountEGP decimal.Decimal
	Rate      decimal.Decimal
}

// StaticProvider converts with a fixed configured rate.
type StaticProvider struct {
	rate decimal.Decimal
}

func NewStaticProvider(rate decimal.Decimal) *StaticProvider {
	return &StaticProvider{rate: rate}
}

func (p *StaticProvider) Convert(_ context.Context, amountPi decimal.Decimal) (Conversion, error) {
	return convert(amountPi, p.rate), nil
}

// HTTPProvider fetches the current Pi/EGP rate on every conversion.
type HTTPProvider struct {
	url      string
	http     *http.Client
	executor *resilience.Executor
	logger   *slog.Logger
}

type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

func NewHTTPProvider(url string, executor *resilience.Executor, httpClient *http.Client, logger *slog.Logger) *HTTPProvider {
	return &HTTPProvider{url: url, http: httpClient, executor: executor, logger: logger}
}

func (p *HTTPProvider) Convert(ctx context.Context, amountPi decimal.Decimal) (Conversion, error) {
	rate, err := resilience.Call(ctx, p.executor, p.fetchRate)
	if err != nil {
		return Conversion{}, err
	}
	return convert(amountPi, rate), nil
}

func (p *HTTPProvider) fetchRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return decimal.Zero, resilience.Permanent(fmt.Errorf("failed to build rate request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate service returned status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rate response: %w", err)
	}
	if !body.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rate service returned non-positive rate %s", body.Rate)
	}

	p.logger.Debug("Fetched exchange rate", "rate", body.Rate.String())
	return body.Rate, nil
}

// Provider converts Pi amounts into EGP.
type Provider interface {
	Convert(ctx context.Context, amountPi decimal.Decimal) (Conversion, error)
}

// NewProvider picks the HTTP provider when a URL is configured, otherwise the
// static rate.
func NewProvider(cfg config.ExchangeRateConfig, resilienceCfg config.ResilienceConfig, callTimeout time.Duration, logger *slog.Logger) Provider {
	if cfg.URL == "" {
		return NewStaticProvider(cfg.PiToEGP)
	}
	executor := resilience.NewExecutor(serviceName, resilienceCfg, callTimeout, logger)
	return NewHTTPProvider(cfg.URL, executor, &http.Client{}, logger)
}

func convert(amountPi, rate decimal.Decimal) Conversion {
	return Conversion{AmountEGP: amountPi.Mul(rate).Round(egpPlaces), Rate: rate}
}
