// Package rules holds the jurisdiction's business rules as pure functions of
// their inputs: per-payment and daily amount limits, and the local trading
// window during which financial operations are allowed.
package rules

import (
	"fmt"
	"time"

	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LocalTime is the part of a zoned instant the trading window looks at.
type LocalTime struct {
	Hour    int
	Weekday time.Weekday
}

// LocalTimeAt converts ts into loc.
func LocalTimeAt(ts time.Time, loc *time.Location) LocalTime {
	local := ts.In(loc)
	return LocalTime{Hour: local.Hour(), Weekday: local.Weekday()}
}

// TradingWindow is the local-hour range [StartHour, EndHour) on open days.
type TradingWindow struct {
	StartHour  int
	EndHour    int
	ClosedDays []time.Weekday
}

// Check rejects closed days first, then hours outside [StartHour, EndHour).
func (w TradingWindow) Check(lt LocalTime) error {
	for _, closed := range w.ClosedDays {
		if lt.Weekday == closed {
			return shared.ValidationError{
				Code:    shared.CodeWeekendRestricted,
				Message: fmt.Sprintf("trading is closed on %s", lt.Weekday),
			}
		}
	}
	if lt.Hour < w.StartHour || lt.Hour >= w.EndHour {
		return shared.ValidationError{
			Code:    shared.CodeOutsideTradingHours,
			Message: fmt.Sprintf("local hour %02d is outside trading hours %02d:00-%02d:00", lt.Hour, w.StartHour, w.EndHour),
		}
	}
	return nil
}

// ValidateTradingWindow checks ts, seen in loc, against w.
func ValidateTradingWindow(ts time.Time, loc *time.Location, w TradingWindow) error {
	return w.Check(LocalTimeAt(ts, loc))
}

// ValidateAmount enforces min <= amount <= max (with amount > 0) and
// dailyTotal + amount <= dailyLimit.
func ValidateAmount(amount, minAmount, maxAmount, dailyTotal, dailyLimit decimal.Decimal) error {
	if !amount.IsPositive() || amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return shared.ValidationError{
			Code:    shared.CodeAmountOutOfRange,
			Message: fmt.Sprintf("amount %s must be between %s and %s", amount, minAmount, maxAmount),
		}
	}
	if dailyTotal.Add(amount).GreaterThan(dailyLimit) {
		return shared.ValidationError{
			Code:    shared.CodeDailyLimitExceeded,
			Message: fmt.Sprintf("daily total %s plus %s exceeds limit %s", dailyTotal, amount, dailyLimit),
		}
	}
	return nil
}

// RequiresEscrow reports whether amount must be held in escrow.
func RequiresEscrow(amount, threshold decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(threshold)
}

// StartOfLocalDay returns local midnight of ts's day in loc.
func StartOfLocalDay(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
