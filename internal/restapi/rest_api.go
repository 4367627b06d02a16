// Package restapi exposes the marketplace ledger and the CryptoWheels
// collection over a JSON REST API.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"

	"github.com/cryptowheels/marketplace/internal/carnft"
	"github.com/cryptowheels/marketplace/internal/market"
	"github.com/cryptowheels/marketplace/internal/pricefeed"
)

type (
	marketService interface {
		ListItem(ctx context.Context, caller, registryID common.Address, assetID uint64, priceInBase *uint256.Int) error
		BuyItem(ctx context.Context, buyer, registryID common.Address, assetID uint64, paymentSent *uint256.Int) error
		CancelListing(ctx context.Context, caller, registryID common.Address, assetID uint64) error
		UpdateListing(ctx context.Context, caller, registryID common.Address, assetID uint64, newPriceInBase *uint256.Int) error
		WithdrawBalance(ctx context.Context, caller common.Address) (*uint256.Int, error)
		GetListedItem(ctx context.Context, registryID common.Address, assetID uint64) (*market.Listing, error)
		GetListingKeys(ctx context.Context) ([]market.ListingKey, error)
		GetWithdrawBalance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	}

	nftService interface {
		Mint(ctx context.Context, caller common.Address, uri string, paymentSent *uint256.Int) (uint64, error)
		Approve(ctx context.Context, caller, operator common.Address, assetID uint64) error
		OwnerOf(ctx context.Context, assetID uint64) (common.Address, error)
		TokenURI(ctx context.Context, assetID uint64) (string, error)
		TotalSupply(ctx context.Context) (uint64, error)
	}

	RestAPI struct {
		market marketService
		nft    nftService
		logErr func(format string, args ...interface{})
	}
)

func New(market marketService, nft nftService, logErr func(format string, args ...interface{})) *RestAPI {
	return &RestAPI{market: market, nft: nft, logErr: logErr}
}

func (api *RestAPI) Endpoints() http.Handler {
	apiRouter := mux.NewRouter().StrictSlash(true).PathPrefix("/api").Subrouter()

	// add cors middleware
	// content-type needs to be explicitly defined without this content-type header is not allowed and cors filter is not applied
	// OPTIONS method needs to be explicitly defined for each handler func
	apiRouter.Use(handlers.CORS(handlers.AllowedHeaders([]string{"Content-Type"})))

	apiV1 := apiRouter.PathPrefix("/v1").Subrouter()
	apiV1.HandleFunc("/nfts", api.mint).Methods("POST", "OPTIONS")
	apiV1.HandleFunc("/nfts/{assetId}", api.getToken).Methods("GET", "OPTIONS")
	apiV1.HandleFunc("/nfts/{assetId}/approval", api.approve).Methods("POST", "OPTIONS")
	apiV1.HandleFunc("/supply", api.getSupply).Methods("GET", "OPTIONS")
	apiV1.HandleFunc("/listings", api.listItem).Methods("POST", "OPTIONS")
	apiV1.HandleFunc("/listings", api.getListings).Methods("GET", "OPTIONS")
	apiV1.HandleFunc("/listings/{registryId}/{assetId}", api.getListing).Methods("GET", "OPTIONS")
	apiV1.HandleFunc("/listings/{registryId}/{assetId}", api.updateListing).Methods("PUT", "OPTIONS")
	apiV1.HandleFunc("/listings/{registryId}/{assetId}/purchase", api.buyItem).Methods("POST", "OPTIONS")
	apiV1.HandleFunc("/listings/{registryId}/{assetId}/cancellation", api.cancelListing).Methods("POST", "OPTIONS")
	apiV1.HandleFunc("/withdrawals", api.withdraw).Methods("POST", "OPTIONS")
	apiV1.HandleFunc("/balances/{address}", api.getBalance).Methods("GET", "OPTIONS")

	return apiRouter
}

func (api *RestAPI) mint(w http.ResponseWriter, r *http.Request) {
	req := &MintRequest{}
	if err := decodeBody(r, req); err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	paymentSent, err := amountFromRequest(req.Payment)
	if err != nil {
		api.invalidParamResponse(w, "payment", err)
		return
	}
	id, err := api.nft.Mint(r.Context(), req.From, req.URI, paymentSent)
	if err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	api.writeResponse(w, MintResponse{AssetID: id})
}

func (api *RestAPI) approve(w http.ResponseWriter, r *http.Request) {
	assetID, err := parseAssetID(mux.Vars(r)["assetId"])
	if err != nil {
		api.invalidParamResponse(w, "assetId", err)
		return
	}
	req := &ApprovalRequest{}
	if err := decodeBody(r, req); err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := api.nft.Approve(r.Context(), req.From, req.Operator, assetID); err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (api *RestAPI) getToken(w http.ResponseWriter, r *http.Request) {
	assetID, err := parseAssetID(mux.Vars(r)["assetId"])
	if err != nil {
		api.invalidParamResponse(w, "assetId", err)
		return
	}
	owner, err := api.nft.OwnerOf(r.Context(), assetID)
	if err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	uri, err := api.nft.TokenURI(r.Context(), assetID)
	if err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	api.writeResponse(w, TokenResponse{AssetID: assetID, Owner: owner, URI: uri})
}

func (api *RestAPI) getSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := api.nft.TotalSupply(r.Context())
	if err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	api.writeResponse(w, SupplyResponse{TotalSupply: supply})
}

func (api *RestAPI) listItem(w http.ResponseWriter, r *http.Request) {
	req := &ListItemRequest{}
	if err := decodeBody(r, req); err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	price, err := amountFromRequest(req.Price)
	if err != nil {
		api.invalidParamResponse(w, "price", err)
		return
	}
	if err := api.market.ListItem(r.Context(), req.Seller, req.RegistryID, req.AssetID, price); err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (api *RestAPI) buyItem(w http.ResponseWriter, r *http.Request) {
	registryID, assetID, err := parseListingKey(mux.Vars(r))
	if err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	req := &PurchaseRequest{}
	if err := decodeBody(r, req); err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	paymentSent, err := amountFromRequest(req.Payment)
	if err != nil {
		api.invalidParamResponse(w, "payment", err)
		return
	}
	if err := api.market.BuyItem(r.Context(), req.Buyer, registryID, assetID, paymentSent); err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (api *RestAPI) cancelListing(w http.ResponseWriter, r *http.Request) {
	registryID, assetID, err := parseListingKey(mux.Vars(r))
	if err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	req := &CancelRequest{}
	if err := decodeBody(r, req); err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := api.market.CancelListing(r.Context(), req.Caller, registryID, assetID); err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (api *RestAPI) updateListing(w http.ResponseWriter, r *http.Request) {
	registryID, assetID, err := parseListingKey(mux.Vars(r))
	if err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	req := &UpdateListingRequest{}
	if err := decodeBody(r, req); err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	price, err := amountFromRequest(req.Price)
	if err != nil {
		api.invalidParamResponse(w, "price", err)
		return
	}
	if err := api.market.UpdateListing(r.Context(), req.Caller, registryID, assetID, price); err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (api *RestAPI) withdraw(w http.ResponseWriter, r *http.Request) {
	req := &WithdrawRequest{}
	if err := decodeBody(r, req); err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	amount, err := api.market.WithdrawBalance(r.Context(), req.Caller)
	if err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	api.writeResponse(w, WithdrawResponse{Amount: amountToResponse(amount)})
}

func (api *RestAPI) getListing(w http.ResponseWriter, r *http.Request) {
	registryID, assetID, err := parseListingKey(mux.Vars(r))
	if err != nil {
		api.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	listing, err := api.market.GetListedItem(r.Context(), registryID, assetID)
	if err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	api.writeResponse(w, listingResponse(registryID, assetID, listing))
}

func (api *RestAPI) getListings(w http.ResponseWriter, r *http.Request) {
	keys, err := api.market.GetListingKeys(r.Context())
	if err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	slices.SortFunc(keys, func(a, b market.ListingKey) bool {
		ar, br := a.RegistryID.Hex(), b.RegistryID.Hex()
		if ar != br {
			return ar < br
		}
		return a.AssetID < b.AssetID
	})
	rsp := make([]*ListingResponse, 0, len(keys))
	for _, key := range keys {
		listing, err := api.market.GetListedItem(r.Context(), key.RegistryID, key.AssetID)
		if err != nil {
			api.operationErrorResponse(w, err)
			return
		}
		if !listing.IsPresent() {
			continue
		}
		rsp = append(rsp, listingResponse(key.RegistryID, key.AssetID, listing))
	}
	api.writeResponse(w, rsp)
}

func (api *RestAPI) getBalance(w http.ResponseWriter, r *http.Request) {
	addrParam := mux.Vars(r)["address"]
	if !common.IsHexAddress(addrParam) {
		api.invalidParamResponse(w, "address", fmt.Errorf("%q is not a valid address", addrParam))
		return
	}
	balance, err := api.market.GetWithdrawBalance(r.Context(), common.HexToAddress(addrParam))
	if err != nil {
		api.operationErrorResponse(w, err)
		return
	}
	api.writeResponse(w, BalanceResponse{Balance: amountToResponse(balance)})
}

func (api *RestAPI) writeResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.logError("failed to encode response data as json: %v", err)
	}
}

// operationErrorResponse maps the named error conditions of the core to
// status codes so callers can branch on cause.
func (api *RestAPI) operationErrorResponse(w http.ResponseWriter, err error) {
	api.errorResponse(w, statusOf(err), err)
	if statusOf(err) == http.StatusInternalServerError {
		api.logError("operation failed: %v", err)
	}
}

func statusOf(err error) int {
	var (
		notOwner        *market.NotOwnerError
		invalidPrice    *market.InvalidPriceError
		alreadyListed   *market.AlreadyListedError
		notListed       *market.NotListedError
		invalidPayment  *market.InvalidPaymentError
		incorrectFee    *carnft.IncorrectFeeValueError
		unknownAsset    *carnft.UnknownAssetError
		notTokenOwner   *carnft.NotTokenOwnerError
		unknownRegistry *carnft.UnknownRegistryError
		nonPositive     *pricefeed.NonPositiveAmountError
		invalidRate     *pricefeed.InvalidRateError
		overflow        *pricefeed.ConversionOverflowError
	)
	switch {
	case errors.As(err, &notOwner), errors.As(err, &notTokenOwner), errors.Is(err, market.ErrMarketplaceNotApproved):
		return http.StatusForbidden
	case errors.As(err, &notListed), errors.As(err, &unknownAsset), errors.As(err, &unknownRegistry):
		return http.StatusNotFound
	case errors.As(err, &alreadyListed):
		return http.StatusConflict
	case errors.As(err, &invalidPrice), errors.As(err, &invalidPayment), errors.As(err, &incorrectFee),
		errors.As(err, &nonPositive), errors.As(err, &overflow),
		errors.Is(err, market.ErrNothingToWithdraw), errors.Is(err, market.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.As(err, &invalidRate):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (api *RestAPI) invalidParamResponse(w http.ResponseWriter, name string, err error) {
	api.errorResponse(w, http.StatusBadRequest, fmt.Errorf("invalid parameter %q: %w", name, err))
}

func (api *RestAPI) errorResponse(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Message: err.Error()}); err != nil {
		api.logError("failed to encode error response as json: %v", err)
	}
}

func (api *RestAPI) logError(format string, args ...interface{}) {
	if api.logErr != nil {
		api.logErr(format, args...)
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}

func parseListingKey(vars map[string]string) (common.Address, uint64, error) {
	registryParam := vars["registryId"]
	if !common.IsHexAddress(registryParam) {
		return common.Address{}, 0, fmt.Errorf("invalid parameter %q: %q is not a valid address", "registryId", registryParam)
	}
	assetID, err := parseAssetID(vars["assetId"])
	if err != nil {
		return common.Address{}, 0, fmt.Errorf("invalid parameter %q: %w", "assetId", err)
	}
	return common.HexToAddress(registryParam), assetID, nil
}

func parseAssetID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func amountFromRequest(v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return uint256.NewInt(0), nil
	}
	amount, overflow := uint256.FromBig(v.ToInt())
	if overflow || v.ToInt().Sign() < 0 {
		return nil, fmt.Errorf("amount %s out of range", v)
	}
	return amount, nil
}

func amountToResponse(v *uint256.Int) *hexutil.Big {
	if v == nil {
		v = uint256.NewInt(0)
	}
	return (*hexutil.Big)(v.ToBig())
}

func listingResponse(registryID common.Address, assetID uint64, listing *market.Listing) *ListingResponse {
	return &ListingResponse{
		RegistryID:       registryID,
		AssetID:          assetID,
		Seller:           listing.Seller,
		PriceInBase:      amountToResponse(listing.PriceInBase),
		PriceInReference: amountToResponse(listing.PriceInReference),
	}
}
