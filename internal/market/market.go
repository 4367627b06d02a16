/*
Package market implements the marketplace ledger: the listing table, the
seller balance table and the listing/purchase/cancel/update/withdraw state
machine on top of them.

The asset registry and the payment gateway are external capabilities that may
call back into the ledger before returning (a hostile registry can re-enter
BuyItem or WithdrawBalance from inside Transfer). Every mutating operation
therefore commits all of its own state changes before making any outbound
call, so a re-entrant call always observes consistent, already updated state.
When the outbound call fails the operation is rolled back with a compensating
storage transaction and the whole operation fails.
*/
package market

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

type (
	// AssetRegistry is the external capability owning asset identity,
	// ownership and transfer approval state. Ownership is re-validated at
	// the start of every mutating operation, never cached: it can change
	// out-of-band between listing and purchase.
	AssetRegistry interface {
		OwnerOf(ctx context.Context, registryID common.Address, assetID uint64) (common.Address, error)
		IsApprovedForMarketplace(ctx context.Context, registryID common.Address, assetID uint64) (bool, error)
		// Transfer fails if from is not the current owner.
		Transfer(ctx context.Context, registryID common.Address, assetID uint64, from, to common.Address) error
	}

	// PriceConverter converts a base currency amount to reference currency
	// units, see the pricefeed package.
	PriceConverter interface {
		ConvertEthToUsd(ctx context.Context, amount *uint256.Int) (*uint256.Int, error)
	}

	// Ledger exclusively owns the listing and seller balance tables. It
	// holds non-owning references to the asset registry, the price
	// converter and the payout gateway.
	Ledger struct {
		store     Store
		registry  AssetRegistry
		converter PriceConverter
		payouts   payment.Gateway
		events    event.Handler
		log       logger.Logger
	}

	ItemListedEvent struct {
		Seller      common.Address
		RegistryID  common.Address
		AssetID     uint64
		PriceInBase *uint256.Int
	}

	ItemBoughtEvent struct {
		Seller     common.Address
		Buyer      common.Address
		AssetID    uint64
		RegistryID common.Address
		Price      *uint256.Int
	}

	ItemCancelledEvent struct {
		Seller     common.Address
		RegistryID common.Address
		AssetID    uint64
	}

	ItemUpdatedEvent struct {
		Seller     common.Address
		RegistryID common.Address
		AssetID    uint64
		NewPrice   *uint256.Int
	}

	WithdrawalEvent struct {
		Amount *uint256.Int
		Seller common.Address
	}
)

func NewLedger(store Store, registry AssetRegistry, converter PriceConverter, payouts payment.Gateway, events event.Handler, log logger.Logger) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("ledger store must be assigned")
	}
	if registry == nil {
		return nil, errors.New("asset registry must be assigned")
	}
	if converter == nil {
		return nil, errors.New("price converter must be assigned")
	}
	if payouts == nil {
		return nil, errors.New("payout gateway must be assigned")
	}
	return &Ledger{
		store:     store,
		registry:  registry,
		converter: converter,
		payouts:   payouts,
		events:    events,
		log:       log,
	}, nil
}

/*
ListItem creates a listing for the asset at the given base currency price.
The caller must own the asset, the price must be positive, the asset must not
be listed already and the marketplace must be approved as the transfer agent.
The reference currency price is derived once, at listing time.
*/
func (l *Ledger) ListItem(ctx context.Context, caller, registryID common.Address, assetID uint64, priceInBase *uint256.Int) error {
	key := ListingKey{RegistryID: registryID, AssetID: assetID}
	if err := l.requireOwner(ctx, caller, key); err != nil {
		return err
	}
	if priceInBase == nil || priceInBase.IsZero() {
		return &InvalidPriceError{Price: priceInBase}
	}
	listing, err := l.store.Do().GetListing(key)
	if err != nil {
		return fmt.Errorf("failed to read listing: %w", err)
	}
	if listing.IsPresent() {
		return &AlreadyListedError{RegistryID: registryID, AssetID: assetID}
	}
	approved, err := l.registry.IsApprovedForMarketplace(ctx, registryID, assetID)
	if err != nil {
		return fmt.Errorf("failed to check marketplace approval: %w", err)
	}
	if !approved {
		return ErrMarketplaceNotApproved
	}

	priceInReference, err := l.converter.ConvertEthToUsd(ctx, priceInBase)
	if err != nil {
		return fmt.Errorf("failed to convert listing price: %w", err)
	}
	err = l.store.WithTransaction(func(txs StoreTx) error {
		// the approval check and the conversion call out of the ledger, a
		// re-entrant ListItem may have created the listing meanwhile
		listing, err := txs.GetListing(key)
		if err != nil {
			return err
		}
		if listing.IsPresent() {
			return &AlreadyListedError{RegistryID: registryID, AssetID: assetID}
		}
		return txs.SetListing(key, &Listing{
			PriceInBase:      priceInBase,
			PriceInReference: priceInReference,
			Seller:           caller,
		})
	})
	if err != nil {
		return err
	}

	l.logDebug("asset %d of registry %s listed by %s", assetID, registryID, caller)
	l.events.Emit(event.ItemListed, &ItemListedEvent{
		Seller:      caller,
		RegistryID:  registryID,
		AssetID:     assetID,
		PriceInBase: priceInBase.Clone(),
	})
	return nil
}

/*
BuyItem purchases the listed asset. The listing is deleted and the seller
balance credited in one atomic storage transaction before the asset transfer
is invoked on the registry: the transfer call is the one point where control
may re-enter the ledger and by then the listing is already gone and the
credit already posted. Excess payment over the listing price is retained.
*/
func (l *Ledger) BuyItem(ctx context.Context, buyer, registryID common.Address, assetID uint64, paymentSent *uint256.Int) error {
	key := ListingKey{RegistryID: registryID, AssetID: assetID}

	var seller common.Address
	var price *uint256.Int
	err := l.store.WithTransaction(func(txs StoreTx) error {
		listing, err := txs.GetListing(key)
		if err != nil {
			return err
		}
		if !listing.IsPresent() {
			return &NotListedError{RegistryID: registryID, AssetID: assetID}
		}
		if paymentSent == nil || paymentSent.Lt(listing.PriceInBase) {
			return &InvalidPaymentError{
				RegistryID: registryID,
				AssetID:    assetID,
				Required:   listing.PriceInBase.Clone(),
				Provided:   cloneOrZero(paymentSent),
			}
		}
		seller = listing.Seller
		price = listing.PriceInBase.Clone()
		if err := txs.RemoveListing(key); err != nil {
			return err
		}
		balance, err := txs.GetBalance(seller)
		if err != nil {
			return err
		}
		return txs.SetBalance(seller, balance.Add(balance, price))
	})
	if err != nil {
		return err
	}

	// local state is committed, only now call out to the registry
	if err := l.registry.Transfer(ctx, registryID, assetID, seller, buyer); err != nil {
		err = fmt.Errorf("failed to transfer asset %d of registry %s: %w", assetID, registryID, err)
		if rbErr := l.rollbackPurchase(key, seller, price); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to roll back purchase: %w", rbErr))
		}
		return err
	}

	l.logDebug("asset %d of registry %s bought by %s for %s", assetID, registryID, buyer, price)
	l.events.Emit(event.ItemBought, &ItemBoughtEvent{
		Seller:     seller,
		Buyer:      buyer,
		AssetID:    assetID,
		RegistryID: registryID,
		Price:      price.Clone(),
	})
	return nil
}

// rollbackPurchase restores the listing and debits the credited proceeds
// after a failed asset transfer. The reference price is re-derived from the
// current feed rate; when the feed fails it is restored as zero, the base
// price stays authoritative.
func (l *Ledger) rollbackPurchase(key ListingKey, seller common.Address, price *uint256.Int) error {
	return l.store.WithTransaction(func(txs StoreTx) error {
		balance, err := txs.GetBalance(seller)
		if err != nil {
			return err
		}
		if balance.Lt(price) {
			// the credit was already withdrawn, nothing left to debit
			balance.Clear()
		} else {
			balance.Sub(balance, price)
		}
		if err := txs.SetBalance(seller, balance); err != nil {
			return err
		}
		priceInReference, err := l.converter.ConvertEthToUsd(context.Background(), price)
		if err != nil {
			priceInReference = uint256.NewInt(0)
		}
		return txs.SetListing(key, &Listing{
			PriceInBase:      price,
			PriceInReference: priceInReference,
			Seller:           seller,
		})
	})
}

// CancelListing removes the caller's listing. Only the current asset owner
// may cancel; no funds move.
func (l *Ledger) CancelListing(ctx context.Context, caller, registryID common.Address, assetID uint64) error {
	key := ListingKey{RegistryID: registryID, AssetID: assetID}
	if err := l.requireOwner(ctx, caller, key); err != nil {
		return err
	}

	var seller common.Address
	err := l.store.WithTransaction(func(txs StoreTx) error {
		listing, err := txs.GetListing(key)
		if err != nil {
			return err
		}
		if !listing.IsPresent() {
			return &NotListedError{RegistryID: registryID, AssetID: assetID}
		}
		seller = listing.Seller
		return txs.RemoveListing(key)
	})
	if err != nil {
		return err
	}

	l.logDebug("listing of asset %d of registry %s cancelled", assetID, registryID)
	l.events.Emit(event.ItemCancelled, &ItemCancelledEvent{
		Seller:     seller,
		RegistryID: registryID,
		AssetID:    assetID,
	})
	return nil
}

// UpdateListing overwrites the price fields of an existing listing with the
// new base currency price and its freshly derived reference equivalent. The
// seller field is unchanged.
func (l *Ledger) UpdateListing(ctx context.Context, caller, registryID common.Address, assetID uint64, newPriceInBase *uint256.Int) error {
	key := ListingKey{RegistryID: registryID, AssetID: assetID}
	if err := l.requireOwner(ctx, caller, key); err != nil {
		return err
	}
	listing, err := l.store.Do().GetListing(key)
	if err != nil {
		return fmt.Errorf("failed to read listing: %w", err)
	}
	if !listing.IsPresent() {
		return &NotListedError{RegistryID: registryID, AssetID: assetID}
	}

	priceInReference, err := l.converter.ConvertEthToUsd(ctx, newPriceInBase)
	if err != nil {
		return fmt.Errorf("failed to convert listing price: %w", err)
	}
	var seller common.Address
	err = l.store.WithTransaction(func(txs StoreTx) error {
		listing, err := txs.GetListing(key)
		if err != nil {
			return err
		}
		if !listing.IsPresent() {
			return &NotListedError{RegistryID: registryID, AssetID: assetID}
		}
		seller = listing.Seller
		listing.PriceInBase = newPriceInBase
		listing.PriceInReference = priceInReference
		return txs.SetListing(key, listing)
	})
	if err != nil {
		return err
	}

	l.logDebug("listing of asset %d of registry %s re-priced to %s", assetID, registryID, newPriceInBase)
	l.events.Emit(event.ItemUpdated, &ItemUpdatedEvent{
		Seller:     seller,
		RegistryID: registryID,
		AssetID:    assetID,
		NewPrice:   newPriceInBase.Clone(),
	})
	return nil
}

/*
WithdrawBalance pays out the caller's accumulated proceeds. The balance is
zeroed before the payout call is made, a re-entrant withdraw during the
payout observes a zero balance and cannot drain twice. A failed payout
restores the balance and fails the operation.
*/
func (l *Ledger) WithdrawBalance(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	var amount *uint256.Int
	err := l.store.WithTransaction(func(txs StoreTx) error {
		balance, err := txs.GetBalance(caller)
		if err != nil {
			return err
		}
		if balance.IsZero() {
			return ErrNothingToWithdraw
		}
		amount = balance.Clone()
		return txs.SetBalance(caller, uint256.NewInt(0))
	})
	if err != nil {
		return nil, err
	}

	if err := l.payouts.Pay(ctx, caller, amount); err != nil {
		err = fmt.Errorf("failed to pay out withdrawal: %w", err)
		if rbErr := l.restoreBalance(caller, amount); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to restore balance: %w", rbErr))
		}
		return nil, err
	}

	l.logDebug("%s withdrew %s", caller, amount)
	l.events.Emit(event.Withdrawal, &WithdrawalEvent{Amount: amount.Clone(), Seller: caller})
	return amount, nil
}

func (l *Ledger) restoreBalance(addr common.Address, amount *uint256.Int) error {
	return l.store.WithTransaction(func(txs StoreTx) error {
		balance, err := txs.GetBalance(addr)
		if err != nil {
			return err
		}
		return txs.SetBalance(addr, balance.Add(balance, amount))
	})
}

// GetListedItem returns the listing for the key; the zero value listing is
// returned when the asset is not listed.
func (l *Ledger) GetListedItem(ctx context.Context, registryID common.Address, assetID uint64) (*Listing, error) {
	return l.store.Do().GetListing(ListingKey{RegistryID: registryID, AssetID: assetID})
}

// GetListingKeys returns the keys of all present listings.
func (l *Ledger) GetListingKeys(ctx context.Context) ([]ListingKey, error) {
	return l.store.Do().ListKeys()
}

// GetWithdrawBalance returns the accumulated proceeds of the address, zero
// if never credited. Querying the zero address is an error.
func (l *Ledger) GetWithdrawBalance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	if addr == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	return l.store.Do().GetBalance(addr)
}

// requireOwner fails with NotOwnerError unless the caller currently owns the
// asset in the registry. Registry read errors surface as is.
func (l *Ledger) requireOwner(ctx context.Context, caller common.Address, key ListingKey) error {
	owner, err := l.registry.OwnerOf(ctx, key.RegistryID, key.AssetID)
	if err != nil {
		return fmt.Errorf("failed to resolve asset owner: %w", err)
	}
	if owner != caller {
		return &NotOwnerError{Caller: caller}
	}
	return nil
}

func (l *Ledger) logDebug(format string, args ...interface{}) {
	if l.log != nil {
		l.log.Debug(format, args...)
	}
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v.Clone()
}
