package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimeZoneProvider resolves zoned wall-clock values.
type TimeZoneProvider interface {
	LocalTime(instant time.Time, zoneID string) (LocalTime, error)
	Location(zoneID string) (*time.Location, error)
}

// Limits are the per-payment and daily amount bounds.
type Limits struct {
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	DailyLimit decimal.Decimal
}

// Validator binds the pure checks to one jurisdiction.
type Validator struct {
	limits   Limits
	window   TradingWindow
	zoneID   string
	timezone TimeZoneProvider
}

// NewValidator creates a validator for zoneID.
func NewValidator(limits Limits, window TradingWindow, zoneID string, tz TimeZoneProvider) *Validator {
	return &Validator{limits: limits, window: window, zoneID: zoneID, timezone: tz}
}

// ZoneID is the jurisdiction time zone.
func (v *Validator) ZoneID() string {
	return v.zoneID
}

// ValidateAmount checks amount against the configured limits.
func (v *Validator) ValidateAmount(amount, dailyTotal decimal.Decimal) error {
	return ValidateAmount(amount, v.limits.MinAmount, v.limits.MaxAmount, dailyTotal, v.limits.DailyLimit)
}

// ValidateTradingWindow checks ts against the jurisdiction's trading window.
func (v *Validator) ValidateTradingWindow(_ context.Context, ts time.Time) error {
	lt, err := v.timezone.LocalTime(ts, v.zoneID)
	if err != nil {
		return fmt.Errorf("failed to resolve local time: %w", err)
	}
	return v.window.Check(lt)
}

// DayStart returns the start of ts's local day, used for the rolling daily total.
func (v *Validator) DayStart(ts time.Time) (time.Time, error) {
	loc, err := v.timezone.Location(v.zoneID)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfLocalDay(ts, loc), nil
}
