package market

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrMarketplaceNotApproved is returned by ListItem when the marketplace
	// has not been approved as the transfer agent for the asset.
	ErrMarketplaceNotApproved = errors.New("marketplace is not approved to transfer the asset")

	// ErrNothingToWithdraw is returned by WithdrawBalance when the caller
	// has no accumulated proceeds.
	ErrNothingToWithdraw = errors.New("nothing to withdraw")

	// ErrInvalidAddress is returned by read operations when the queried
	// address is the zero address.
	ErrInvalidAddress = errors.New("invalid address")
)

type (
	// NotOwnerError is returned when the caller does not currently own the
	// asset in the asset registry.
	NotOwnerError struct {
		Caller common.Address
	}

	// InvalidPriceError is returned by ListItem when the price is not
	// strictly positive.
	InvalidPriceError struct {
		Price *uint256.Int
	}

	// AlreadyListedError is returned by ListItem when a listing already
	// exists for the asset.
	AlreadyListedError struct {
		RegistryID common.Address
		AssetID    uint64
	}

	// NotListedError is returned when no listing exists for the asset.
	NotListedError struct {
		RegistryID common.Address
		AssetID    uint64
	}

	// InvalidPaymentError is returned by BuyItem when the attached payment
	// does not cover the listing price.
	InvalidPaymentError struct {
		RegistryID common.Address
		AssetID    uint64
		Required   *uint256.Int
		Provided   *uint256.Int
	}
)

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("caller %s is not the asset owner", e.Caller)
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price value %s", e.Price)
}

func (e *AlreadyListedError) Error() string {
	return fmt.Sprintf("asset %d of registry %s is already listed", e.AssetID, e.RegistryID)
}

func (e *NotListedError) Error() string {
	return fmt.Sprintf("asset %d of registry %s is not listed", e.AssetID, e.RegistryID)
}

func (e *InvalidPaymentError) Error() string {
	return fmt.Sprintf("invalid payment for asset %d of registry %s: required %s, provided %s",
		e.AssetID, e.RegistryID, e.Required, e.Provided)
}
