// Package carnft implements the CryptoWheels unique asset collection: fee
// gated minting with overpayment refund, ownership, transfer approvals and
// transfers. The marketplace ledger consumes it through the asset registry
// capability, see Router.
package carnft

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cryptowheels/marketplace/internal/event"
	"github.com/cryptowheels/marketplace/internal/logger"
	"github.com/cryptowheels/marketplace/internal/payment"
)

const (
	Name   = "CryptoWheels"
	Symbol = "CWS"
)

type (
	// Collection is a single unique asset registry with sequential asset ids.
	Collection struct {
		registryID common.Address
		mintFee    *uint256.Int
		store      Store
		refunds    payment.Gateway
		events     event.Handler
		log        logger.Logger
	}

	// AssetMintedEvent is emitted after a successful mint.
	AssetMintedEvent struct {
		Creator common.Address
		AssetID uint64
		URI     string
	}

	// OwnershipTransferredEvent is emitted whenever asset ownership changes,
	// including the initial assignment on mint (From is the zero address).
	OwnershipTransferredEvent struct {
		From    common.Address
		To      common.Address
		AssetID uint64
	}
)

func NewCollection(registryID common.Address, mintFee *uint256.Int, store Store, refunds payment.Gateway, events event.Handler, log logger.Logger) (*Collection, error) {
	if mintFee == nil {
		return nil, errors.New("mint fee must be assigned")
	}
	if store == nil {
		return nil, errors.New("token store must be assigned")
	}
	if refunds == nil {
		return nil, errors.New("refund gateway must be assigned")
	}
	return &Collection{
		registryID: registryID,
		mintFee:    mintFee.Clone(),
		store:      store,
		refunds:    refunds,
		events:     events,
		log:        log,
	}, nil
}

func (c *Collection) RegistryID() common.Address {
	return c.registryID
}

func (c *Collection) MintFee() *uint256.Int {
	return c.mintFee.Clone()
}

/*
Mint creates the next sequential asset owned by the caller, carrying the
given metadata URI. The attached payment must cover the mint fee; any excess
is refunded to the caller through the refund gateway. A failed refund rolls
the mint back, the operation never completes with a lost refund.
*/
func (c *Collection) Mint(ctx context.Context, caller common.Address, uri string, paymentSent *uint256.Int) (uint64, error) {
	if paymentSent == nil || paymentSent.Lt(c.mintFee) {
		return 0, &IncorrectFeeValueError{Required: c.mintFee.Clone(), Provided: cloneOrZero(paymentSent)}
	}

	var id uint64
	err := c.store.WithTransaction(func(txs StoreTx) error {
		supply, err := txs.GetTotalSupply()
		if err != nil {
			return fmt.Errorf("failed to read total supply: %w", err)
		}
		id = supply + 1
		if err := txs.SetToken(id, &TokenRecord{Owner: caller, URI: uri}); err != nil {
			return fmt.Errorf("failed to store token record: %w", err)
		}
		return txs.SetTotalSupply(id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mint asset: %w", err)
	}

	refund := uint256.NewInt(0).Sub(paymentSent, c.mintFee)
	if !refund.IsZero() {
		if err := c.refunds.Pay(ctx, caller, refund); err != nil {
			err = fmt.Errorf("failed to refund mint overpayment: %w", err)
			if rbErr := c.rollbackMint(id); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to roll back mint of asset %d: %w", id, rbErr))
			}
			return 0, err
		}
	}

	c.logDebug("minted asset %d for %s", id, caller)
	c.events.Emit(event.AssetMinted, &AssetMintedEvent{Creator: caller, AssetID: id, URI: uri})
	c.events.Emit(event.OwnershipTransferred, &OwnershipTransferredEvent{To: caller, AssetID: id})
	return id, nil
}

func (c *Collection) rollbackMint(id uint64) error {
	return c.store.WithTransaction(func(txs StoreTx) error {
		if err := txs.RemoveToken(id); err != nil {
			return err
		}
		supply, err := txs.GetTotalSupply()
		if err != nil {
			return err
		}
		// a re-entrant mint from the refund callback may have moved the
		// counter past id; it must never regress below a live token, the
		// rolled back id is then simply never reused
		if supply == id {
			return txs.SetTotalSupply(id - 1)
		}
		return nil
	})
}

// Approve records the operator as the address allowed to transfer the asset
// on the owner's behalf. Only the current owner may approve; approving the
// zero address clears a previous approval.
func (c *Collection) Approve(ctx context.Context, caller, operator common.Address, assetID uint64) error {
	return c.store.WithTransaction(func(txs StoreTx) error {
		rec, err := txs.GetToken(assetID)
		if err != nil {
			return err
		}
		if rec == nil {
			return &UnknownAssetError{ID: assetID}
		}
		if rec.Owner != caller {
			return &NotTokenOwnerError{Caller: caller}
		}
		rec.Approved = operator
		return txs.SetToken(assetID, rec)
	})
}

/*
Transfer moves the asset from its current owner to the recipient. The
operation fails unless from is the current owner and the operator is either
the owner or the approved transfer agent. A completed transfer clears the
approval.
*/
func (c *Collection) Transfer(ctx context.Context, operator common.Address, assetID uint64, from, to common.Address) error {
	err := c.store.WithTransaction(func(txs StoreTx) error {
		rec, err := txs.GetToken(assetID)
		if err != nil {
			return err
		}
		if rec == nil {
			return &UnknownAssetError{ID: assetID}
		}
		if rec.Owner != from {
			return fmt.Errorf("transfer denied: %s is not the owner of asset %d", from, assetID)
		}
		if operator != rec.Owner && operator != rec.Approved {
			return fmt.Errorf("transfer denied: %s is not approved for asset %d", operator, assetID)
		}
		rec.Owner = to
		rec.Approved = common.Address{}
		return txs.SetToken(assetID, rec)
	})
	if err != nil {
		return err
	}
	c.events.Emit(event.OwnershipTransferred, &OwnershipTransferredEvent{From: from, To: to, AssetID: assetID})
	return nil
}

func (c *Collection) OwnerOf(ctx context.Context, assetID uint64) (common.Address, error) {
	rec, err := c.token(assetID)
	if err != nil {
		return common.Address{}, err
	}
	return rec.Owner, nil
}

func (c *Collection) TokenURI(ctx context.Context, assetID uint64) (string, error) {
	rec, err := c.token(assetID)
	if err != nil {
		return "", err
	}
	return rec.URI, nil
}

func (c *Collection) GetApproved(ctx context.Context, assetID uint64) (common.Address, error) {
	rec, err := c.token(assetID)
	if err != nil {
		return common.Address{}, err
	}
	return rec.Approved, nil
}

// TotalSupply returns the number of assets minted so far. The counter is
// monotonically non-decreasing, ids of burned assets are never reused.
func (c *Collection) TotalSupply(ctx context.Context) (uint64, error) {
	return c.store.Do().GetTotalSupply()
}

func (c *Collection) token(assetID uint64) (*TokenRecord, error) {
	rec, err := c.store.Do().GetToken(assetID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &UnknownAssetError{ID: assetID}
	}
	return rec, nil
}

func (c *Collection) logDebug(format string, args ...interface{}) {
	if c.log != nil {
		c.log.Debug(format, args...)
	}
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v.Clone()
}
