package market

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type (
	// ListingKey identifies a listing: the asset registry address plus the
	// asset id inside that registry. At most one listing exists per key.
	ListingKey struct {
		RegistryID common.Address
		AssetID    uint64
	}

	// Listing is a seller's offer to sell one asset at a fixed base currency
	// price. PriceInReference is the cached conversion computed when the
	// listing was created or last updated, it is not re-derived at purchase
	// time. A listing whose Seller is the zero address is absent, see
	// IsPresent.
	Listing struct {
		PriceInBase      *uint256.Int
		PriceInReference *uint256.Int
		Seller           common.Address
	}
)

// IsPresent reports whether the listing exists. The zero value doubles as
// "no listing", presence is always tested through this predicate.
func (l *Listing) IsPresent() bool {
	return l != nil && l.Seller != (common.Address{})
}

func (l *Listing) clone() *Listing {
	if l == nil {
		return &Listing{}
	}
	c := &Listing{Seller: l.Seller}
	if l.PriceInBase != nil {
		c.PriceInBase = l.PriceInBase.Clone()
	}
	if l.PriceInReference != nil {
		c.PriceInReference = l.PriceInReference.Clone()
	}
	return c
}
