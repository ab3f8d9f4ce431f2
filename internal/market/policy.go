package market

import (
	"fmt"
	"math"
	"time"
)

// Policy bounds the terms a new loan may carry. Zero maximums are unbounded.
type Policy struct {
	MinLoanAmount      uint64
	MaxLoanAmount      uint64
	MinDuration        time.Duration
	MaxDuration        time.Duration
	MaxInterestRateBps uint16
}

// DefaultPolicy only demands positive terms.
func DefaultPolicy() Policy {
	return Policy{MinLoanAmount: 1, MinDuration: time.Second}
}

// Check validates loan terms against the policy.
func (p Policy) Check(amount uint64, durationSeconds int64, rateBps uint16) error {
	if amount == 0 || amount < p.MinLoanAmount || (p.MaxLoanAmount > 0 && amount > p.MaxLoanAmount) {
		return fmt.Errorf("%w: %d", ErrInsufficientLoanAmount, amount)
	}
	if durationSeconds <= 0 || durationSeconds > math.MaxInt64/int64(time.Second) {
		return fmt.Errorf("%w: %ds", ErrInvalidLoanDuration, durationSeconds)
	}
	d := time.Duration(durationSeconds) * time.Second
	if d < p.MinDuration || (p.MaxDuration > 0 && d > p.MaxDuration) {
		return fmt.Errorf("%w: %ds", ErrInvalidLoanDuration, durationSeconds)
	}
	if rateBps == 0 || (p.MaxInterestRateBps > 0 && rateBps > p.MaxInterestRateBps) {
		return fmt.Errorf("%w: %d bps", ErrInvalidInterestRate, rateBps)
	}
	return nil
}
