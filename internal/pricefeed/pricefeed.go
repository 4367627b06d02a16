// Package pricefeed converts base currency (wei denominated) amounts to the
// stable reference currency using an external price aggregator. The
// aggregator is modelled after the usual on-chain feed interface: the latest
// published answer plus the decimal count of the feed.
package pricefeed

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

type (
	// Aggregator is the external price feed capability. LatestRoundData
	// returns the most recently published base->reference rate and the
	// number of decimals the answer is scaled with.
	Aggregator interface {
		LatestRoundData(ctx context.Context) (answer *big.Int, decimals uint8, err error)
	}

	// Adapter performs the conversion on top of an Aggregator.
	Adapter struct {
		feed Aggregator
	}

	// NonPositiveAmountError is returned when the amount to convert is zero.
	NonPositiveAmountError struct {
		Amount *uint256.Int
	}

	// InvalidRateError is returned when the aggregator publishes a zero or
	// negative rate.
	InvalidRateError struct {
		Rate *big.Int
	}

	// ConversionOverflowError is returned when amount * rate does not fit
	// into 256 bits.
	ConversionOverflowError struct {
		Amount *uint256.Int
		Rate   *big.Int
	}
)

func (e *NonPositiveAmountError) Error() string {
	return fmt.Sprintf("amount must be positive, got %s", e.Amount)
}

func (e *InvalidRateError) Error() string {
	return fmt.Sprintf("price feed returned invalid rate %s", e.Rate)
}

func (e *ConversionOverflowError) Error() string {
	return fmt.Sprintf("converting %s at rate %s overflows the amount range", e.Amount, e.Rate)
}

func NewAdapter(feed Aggregator) *Adapter {
	return &Adapter{feed: feed}
}

// ConvertEthToUsd converts the base currency amount to reference currency
// units using the latest published rate: amount * rate / 10^decimals.
// The latest answer is used as is, there is no retry and no staleness check.
func (a *Adapter) ConvertEthToUsd(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, &NonPositiveAmountError{Amount: amount}
	}
	answer, decimals, err := a.feed.LatestRoundData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read price feed: %w", err)
	}
	if answer == nil || answer.Sign() <= 0 {
		return nil, &InvalidRateError{Rate: answer}
	}
	rate, overflow := uint256.FromBig(answer)
	if overflow {
		return nil, &InvalidRateError{Rate: answer}
	}
	scale := uint256.NewInt(10)
	scale.Exp(scale, uint256.NewInt(uint64(decimals)))

	res, overflow := uint256.NewInt(0).MulOverflow(amount, rate)
	if overflow {
		return nil, &ConversionOverflowError{Amount: amount.Clone(), Rate: answer}
	}
	return res.Div(res, scale), nil
}
