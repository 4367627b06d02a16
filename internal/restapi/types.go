package restapi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type (
	MintRequest struct {
		From    common.Address `json:"from"`
		URI     string         `json:"uri"`
		Payment *hexutil.Big   `json:"payment"`
	}

	MintResponse struct {
		AssetID uint64 `json:"assetId"`
	}

	ApprovalRequest struct {
		From     common.Address `json:"from"`
		Operator common.Address `json:"operator"`
	}

	TokenResponse struct {
		AssetID uint64         `json:"assetId"`
		Owner   common.Address `json:"owner"`
		URI     string         `json:"uri"`
	}

	SupplyResponse struct {
		TotalSupply uint64 `json:"totalSupply"`
	}

	ListItemRequest struct {
		Seller     common.Address `json:"seller"`
		RegistryID common.Address `json:"registryId"`
		AssetID    uint64         `json:"assetId"`
		Price      *hexutil.Big   `json:"price"`
	}

	PurchaseRequest struct {
		Buyer   common.Address `json:"buyer"`
		Payment *hexutil.Big   `json:"payment"`
	}

	CancelRequest struct {
		Caller common.Address `json:"caller"`
	}

	UpdateListingRequest struct {
		Caller common.Address `json:"caller"`
		Price  *hexutil.Big   `json:"price"`
	}

	WithdrawRequest struct {
		Caller common.Address `json:"caller"`
	}

	WithdrawResponse struct {
		Amount *hexutil.Big `json:"amount"`
	}

	ListingResponse struct {
		RegistryID       common.Address `json:"registryId"`
		AssetID          uint64         `json:"assetId"`
		Seller           common.Address `json:"seller"`
		PriceInBase      *hexutil.Big   `json:"priceInBase"`
		PriceInReference *hexutil.Big   `json:"priceInReference"`
	}

	BalanceResponse struct {
		Balance *hexutil.Big `json:"balance"`
	}

	ErrorResponse struct {
		Message string `json:"message"`
	}
)
