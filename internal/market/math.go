package market

import (
	"math"
	"math/bits"

	"github.com/holiman/uint256"

	"github.com/starford/pledge/internal/models"
)

const (
	basisPoints    = 10_000
	secondsPerYear = 365 * 24 * 3600

	// DefaultLiquidationThresholdBps is the 80% loan-to-value ceiling.
	DefaultLiquidationThresholdBps = 8000
)

// CalculateInterest returns simple annualized interest, truncated toward zero:
// floor(loanAmount * rateBps * elapsed / (10000 * 365 * 24 * 3600)).
// Products are formed in 256 bits so large loans cannot wrap.
func CalculateInterest(loanAmount uint64, rateBps uint16, elapsedSeconds int64) (uint64, error) {
	if loanAmount == 0 || rateBps == 0 || elapsedSeconds <= 0 {
		return 0, nil
	}
	n := uint256.NewInt(loanAmount)
	n.Mul(n, uint256.NewInt(uint64(rateBps)))
	n.Mul(n, uint256.NewInt(uint64(elapsedSeconds)))
	n.Div(n, uint256.NewInt(basisPoints*secondsPerYear))
	if !n.IsUint64() {
		return 0, ErrAmountOverflow
	}
	return n.Uint64(), nil
}

// RepaymentDue returns principal plus interest accrued up to now.
func RepaymentDue(l *models.Loan, now int64) (total, interest uint64, err error) {
	interest, err = CalculateInterest(l.LoanAmount, l.InterestRateBps, now-l.StartTime)
	if err != nil {
		return 0, 0, err
	}
	total, carry := bits.Add64(l.LoanAmount, interest, 0)
	if carry != 0 {
		return 0, 0, ErrAmountOverflow
	}
	return total, interest, nil
}

// CollateralRatioBps returns floor(value * 10000 / outstanding). ok is false
// when outstanding is zero and no ratio exists. Ratios beyond 64 bits
// saturate.
func CollateralRatioBps(value, outstanding uint64) (ratio uint64, ok bool) {
	if outstanding == 0 {
		return 0, false
	}
	n := uint256.NewInt(value)
	n.Mul(n, uint256.NewInt(basisPoints))
	n.Div(n, uint256.NewInt(outstanding))
	if !n.IsUint64() {
		return math.MaxUint64, true
	}
	return n.Uint64(), true
}

// Expired reports whether now is past the loan's maturity.
func Expired(l *models.Loan, now int64) bool {
	return now > l.Maturity()
}

// IsLiquidatable reports whether the loan may be liquidated at now given the
// collateral valuation. A loan with nothing outstanding can only become
// liquidatable by expiry.
func IsLiquidatable(l *models.Loan, now int64, collateralValue uint64) bool {
	if Expired(l, now) {
		return true
	}
	ratio, ok := CollateralRatioBps(collateralValue, l.OutstandingAmount)
	if !ok {
		return false
	}
	return ratio < uint64(l.LiquidationThresholdBps)
}

// LiquidationPrice is the collateral valuation at which the loan's ratio
// reaches its threshold; any lower valuation makes it liquidatable.
func LiquidationPrice(outstanding uint64, thresholdBps uint16) uint64 {
	n := uint256.NewInt(outstanding)
	n.Mul(n, uint256.NewInt(uint64(thresholdBps)))
	n.Div(n, uint256.NewInt(basisPoints))
	return n.Uint64()
}
