package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type mockAggregator struct {
	latestRoundData func(ctx context.Context) (*big.Int, uint8, error)
}

func (m *mockAggregator) LatestRoundData(ctx context.Context) (*big.Int, uint8, error) {
	return m.latestRoundData(ctx)
}

func TestConvertEthToUsd(t *testing.T) {
	t.Parallel()

	ether := func(n uint64) *uint256.Int {
		wei := uint256.NewInt(n)
		return wei.Mul(wei, uint256.NewInt(1e18))
	}

	t.Run("one base unit at rate 2000", func(t *testing.T) {
		// 2000 reference units per base unit, published with 8 decimals
		adapter := NewAdapter(NewStaticAggregator(big.NewInt(2000_0000_0000), 8))
		usd, err := adapter.ConvertEthToUsd(context.Background(), ether(1))
		require.NoError(t, err)
		require.Equal(t, ether(2000), usd)
	})

	t.Run("conversion uses the feed decimals", func(t *testing.T) {
		adapter := NewAdapter(NewStaticAggregator(big.NewInt(2000), 0))
		usd, err := adapter.ConvertEthToUsd(context.Background(), uint256.NewInt(3))
		require.NoError(t, err)
		require.Equal(t, uint256.NewInt(6000), usd)
	})

	t.Run("zero amount is rejected", func(t *testing.T) {
		adapter := NewAdapter(NewStaticAggregator(big.NewInt(2000), 0))
		_, err := adapter.ConvertEthToUsd(context.Background(), uint256.NewInt(0))
		napErr := &NonPositiveAmountError{}
		require.ErrorAs(t, err, &napErr)
	})

	t.Run("nil amount is rejected", func(t *testing.T) {
		adapter := NewAdapter(NewStaticAggregator(big.NewInt(2000), 0))
		_, err := adapter.ConvertEthToUsd(context.Background(), nil)
		napErr := &NonPositiveAmountError{}
		require.ErrorAs(t, err, &napErr)
	})

	t.Run("zero and negative rates are invalid", func(t *testing.T) {
		for _, rate := range []int64{0, -1} {
			adapter := NewAdapter(NewStaticAggregator(big.NewInt(rate), 8))
			_, err := adapter.ConvertEthToUsd(context.Background(), ether(1))
			rateErr := &InvalidRateError{}
			require.ErrorAs(t, err, &rateErr, "rate %d", rate)
			require.Equal(t, big.NewInt(rate), rateErr.Rate)
		}
	})

	t.Run("conversion overflowing 256 bits is rejected", func(t *testing.T) {
		adapter := NewAdapter(NewStaticAggregator(big.NewInt(4), 0))
		huge := uint256.NewInt(1)
		huge.Lsh(huge, 255)
		_, err := adapter.ConvertEthToUsd(context.Background(), huge)
		overflowErr := &ConversionOverflowError{}
		require.ErrorAs(t, err, &overflowErr)
		require.Equal(t, huge, overflowErr.Amount)
		require.Equal(t, big.NewInt(4), overflowErr.Rate)
	})

	t.Run("feed error is propagated", func(t *testing.T) {
		expErr := fmt.Errorf("feed is down")
		adapter := NewAdapter(&mockAggregator{
			latestRoundData: func(ctx context.Context) (*big.Int, uint8, error) {
				return nil, 0, expErr
			},
		})
		_, err := adapter.ConvertEthToUsd(context.Background(), ether(1))
		require.ErrorIs(t, err, expErr)
	})

	t.Run("updated answer is used by the next conversion", func(t *testing.T) {
		feed := NewStaticAggregator(big.NewInt(2000), 0)
		adapter := NewAdapter(feed)

		usd, err := adapter.ConvertEthToUsd(context.Background(), uint256.NewInt(1))
		require.NoError(t, err)
		require.Equal(t, uint256.NewInt(2000), usd)

		feed.UpdateAnswer(big.NewInt(3000))
		usd, err = adapter.ConvertEthToUsd(context.Background(), uint256.NewInt(1))
		require.NoError(t, err)
		require.Equal(t, uint256.NewInt(3000), usd)
	})
}
