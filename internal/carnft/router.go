package carnft

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

/*
Router exposes one or more collections through the asset registry capability
consumed by the marketplace ledger. The router is bound to the marketplace
address, approval checks and transfers are performed with the marketplace as
the operator.
*/
type Router struct {
	operator    common.Address
	collections map[common.Address]*Collection
}

func NewRouter(marketplace common.Address, collections ...*Collection) *Router {
	r := &Router{operator: marketplace, collections: map[common.Address]*Collection{}}
	for _, c := range collections {
		r.collections[c.RegistryID()] = c
	}
	return r
}

func (r *Router) OwnerOf(ctx context.Context, registryID common.Address, assetID uint64) (common.Address, error) {
	c, err := r.collection(registryID)
	if err != nil {
		return common.Address{}, err
	}
	return c.OwnerOf(ctx, assetID)
}

func (r *Router) IsApprovedForMarketplace(ctx context.Context, registryID common.Address, assetID uint64) (bool, error) {
	c, err := r.collection(registryID)
	if err != nil {
		return false, err
	}
	approved, err := c.GetApproved(ctx, assetID)
	if err != nil {
		return false, err
	}
	return approved == r.operator, nil
}

func (r *Router) Transfer(ctx context.Context, registryID common.Address, assetID uint64, from, to common.Address) error {
	c, err := r.collection(registryID)
	if err != nil {
		return err
	}
	return c.Transfer(ctx, r.operator, assetID, from, to)
}

func (r *Router) collection(registryID common.Address) (*Collection, error) {
	c, ok := r.collections[registryID]
	if !ok {
		return nil, &UnknownRegistryError{RegistryID: registryID}
	}
	return c, nil
}
