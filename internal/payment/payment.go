// Package payment defines the outbound funds capability used by the
// marketplace for seller withdrawals and by the NFT issuer for mint fee
// refunds. The marketplace never pushes funds directly, every outgoing
// transfer goes through a Gateway implementation.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrInvalidRecipient = errors.New("invalid recipient address")

// Gateway transfers base currency out of the marketplace to the recipient.
// Implementations must either complete the transfer or return an error, a
// returned error means no funds moved.
type Gateway interface {
	Pay(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// MemGateway is an in-process Gateway keeping per-address running totals.
// Used by the local deployment mode and by tests.
type MemGateway struct {
	mu   sync.Mutex
	paid map[common.Address]*uint256.Int

	// PayErr, when set, is returned by Pay without moving funds.
	PayErr error
}

func NewMemGateway() *MemGateway {
	return &MemGateway{paid: map[common.Address]*uint256.Int{}}
}

func (g *MemGateway) Pay(_ context.Context, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil {
		return fmt.Errorf("invalid payment amount: nil")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.PayErr != nil {
		return g.PayErr
	}
	total, ok := g.paid[to]
	if !ok {
		total = uint256.NewInt(0)
		g.paid[to] = total
	}
	total.Add(total, amount)
	return nil
}

// TotalPaid returns the accumulated amount paid out to the address.
func (g *MemGateway) TotalPaid(to common.Address) *uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if total, ok := g.paid[to]; ok {
		return total.Clone()
	}
	return uint256.NewInt(0)
}
