package restapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/cryptowheels/marketplace/internal/carnft"
	"github.com/cryptowheels/marketplace/internal/market"
	"github.com/cryptowheels/marketplace/internal/payment"
	"github.com/cryptowheels/marketplace/internal/pricefeed"
	test "github.com/cryptowheels/marketplace/internal/testutils"
)

type apiFixture struct {
	srv             *httptest.Server
	gateway         *payment.MemGateway
	registryID      common.Address
	marketplaceAddr common.Address
}

func ether(n uint64) *uint256.Int {
	wei := uint256.NewInt(n)
	return wei.Mul(wei, uint256.NewInt(1e18))
}

func amount(v *uint256.Int) *hexutil.Big {
	return (*hexutil.Big)(v.ToBig())
}

// startAPI serves the REST API over an in-memory stack: the CryptoWheels
// collection with a 1.0 base unit mint fee and the ledger priced by a static
// 2000 reference units per base unit feed.
func startAPI(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		gateway:         payment.NewMemGateway(),
		registryID:      test.RandomAddress(),
		marketplaceAddr: test.RandomAddress(),
	}

	collection, err := carnft.NewCollection(f.registryID, ether(1), carnft.NewMemStore(), f.gateway, nil, nil)
	require.NoError(t, err)
	registry := carnft.NewRouter(f.marketplaceAddr, collection)
	adapter := pricefeed.NewAdapter(pricefeed.NewStaticAggregator(big.NewInt(2000), 0))
	ledger, err := market.NewLedger(market.NewMemStore(), registry, adapter, f.gateway, nil, nil)
	require.NoError(t, err)

	f.srv = httptest.NewServer(New(ledger, collection, t.Logf).Endpoints())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body, rspData any) *http.Response {
	t.Helper()
	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		require.NoError(t, json.NewEncoder(reqBody).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+"/api/v1"+path, reqBody)
	require.NoError(t, err)
	rsp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer rsp.Body.Close()
	if rspData != nil {
		require.NoError(t, json.NewDecoder(rsp.Body).Decode(rspData))
	}
	return rsp
}

// mintAndList drives the happy path up to a live listing: mint an asset for
// the owner, approve the marketplace, list at 1.0 base units.
func (f *apiFixture) mintAndList(t *testing.T, owner common.Address) uint64 {
	t.Helper()
	mintRsp := &MintResponse{}
	rsp := f.do(t, "POST", "/nfts", &MintRequest{From: owner, URI: "ipfs://QmWheels/1.json", Payment: amount(ether(1))}, mintRsp)
	require.Equal(t, http.StatusCreated, rsp.StatusCode)

	rsp = f.do(t, "POST", fmt.Sprintf("/nfts/%d/approval", mintRsp.AssetID),
		&ApprovalRequest{From: owner, Operator: f.marketplaceAddr}, nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	rsp = f.do(t, "POST", "/listings",
		&ListItemRequest{Seller: owner, RegistryID: f.registryID, AssetID: mintRsp.AssetID, Price: amount(ether(1))}, nil)
	require.Equal(t, http.StatusCreated, rsp.StatusCode)
	return mintRsp.AssetID
}

func TestRestAPI_fullTradeFlow(t *testing.T) {
	f := startAPI(t)
	seller := test.RandomAddress()
	buyer := test.RandomAddress()

	assetID := f.mintAndList(t, seller)
	require.EqualValues(t, 1, assetID)

	tokenRsp := &TokenResponse{}
	rsp := f.do(t, "GET", fmt.Sprintf("/nfts/%d", assetID), nil, tokenRsp)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, &TokenResponse{AssetID: assetID, Owner: seller, URI: "ipfs://QmWheels/1.json"}, tokenRsp)

	supplyRsp := &SupplyResponse{}
	rsp = f.do(t, "GET", "/supply", nil, supplyRsp)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.EqualValues(t, 1, supplyRsp.TotalSupply)

	listingPath := fmt.Sprintf("/listings/%s/%d", f.registryID.Hex(), assetID)
	listingRsp := &ListingResponse{}
	rsp = f.do(t, "GET", listingPath, nil, listingRsp)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, seller, listingRsp.Seller)
	require.Equal(t, ether(1).ToBig(), listingRsp.PriceInBase.ToInt())
	require.Equal(t, ether(2000).ToBig(), listingRsp.PriceInReference.ToInt())

	var listings []*ListingResponse
	rsp = f.do(t, "GET", "/listings", nil, &listings)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Len(t, listings, 1)
	require.EqualValues(t, assetID, listings[0].AssetID)

	rsp = f.do(t, "POST", listingPath+"/purchase", &PurchaseRequest{Buyer: buyer, Payment: amount(ether(1))}, nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	// ownership moved and the listing is gone
	rsp = f.do(t, "GET", fmt.Sprintf("/nfts/%d", assetID), nil, tokenRsp)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, buyer, tokenRsp.Owner)
	listings = nil
	rsp = f.do(t, "GET", "/listings", nil, &listings)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Empty(t, listings)

	balanceRsp := &BalanceResponse{}
	rsp = f.do(t, "GET", "/balances/"+seller.Hex(), nil, balanceRsp)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, ether(1).ToBig(), balanceRsp.Balance.ToInt())

	withdrawRsp := &WithdrawResponse{}
	rsp = f.do(t, "POST", "/withdrawals", &WithdrawRequest{Caller: seller}, withdrawRsp)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, ether(1).ToBig(), withdrawRsp.Amount.ToInt())
	require.Equal(t, ether(1), f.gateway.TotalPaid(seller))
}

func TestRestAPI_updateAndCancel(t *testing.T) {
	f := startAPI(t)
	seller := test.RandomAddress()
	assetID := f.mintAndList(t, seller)
	listingPath := fmt.Sprintf("/listings/%s/%d", f.registryID.Hex(), assetID)

	rsp := f.do(t, "PUT", listingPath, &UpdateListingRequest{Caller: seller, Price: amount(ether(2))}, nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	listingRsp := &ListingResponse{}
	rsp = f.do(t, "GET", listingPath, nil, listingRsp)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Equal(t, ether(2).ToBig(), listingRsp.PriceInBase.ToInt())
	require.Equal(t, seller, listingRsp.Seller)

	rsp = f.do(t, "POST", listingPath+"/cancellation", &CancelRequest{Caller: seller}, nil)
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	listings := []*ListingResponse{}
	rsp = f.do(t, "GET", "/listings", nil, &listings)
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	require.Empty(t, listings)
}

func TestRestAPI_errorStatusCodes(t *testing.T) {
	f := startAPI(t)
	seller := test.RandomAddress()
	assetID := f.mintAndList(t, seller)
	listingPath := fmt.Sprintf("/listings/%s/%d", f.registryID.Hex(), assetID)

	t.Run("mint with wrong fee", func(t *testing.T) {
		rsp := f.do(t, "POST", "/nfts", &MintRequest{From: seller, URI: "ipfs://x", Payment: amount(uint256.NewInt(5))}, nil)
		require.Equal(t, http.StatusBadRequest, rsp.StatusCode)
	})

	t.Run("mint with negative payment", func(t *testing.T) {
		rsp := f.do(t, "POST", "/nfts", &MintRequest{From: seller, URI: "ipfs://x", Payment: (*hexutil.Big)(big.NewInt(-1))}, nil)
		require.Equal(t, http.StatusBadRequest, rsp.StatusCode)
	})

	t.Run("unknown asset", func(t *testing.T) {
		rsp := f.do(t, "GET", "/nfts/42", nil, nil)
		require.Equal(t, http.StatusNotFound, rsp.StatusCode)
	})

	t.Run("malformed asset id", func(t *testing.T) {
		rsp := f.do(t, "GET", "/nfts/not-a-number", nil, nil)
		require.Equal(t, http.StatusBadRequest, rsp.StatusCode)
	})

	t.Run("approval by non-owner", func(t *testing.T) {
		rsp := f.do(t, "POST", fmt.Sprintf("/nfts/%d/approval", assetID),
			&ApprovalRequest{From: test.RandomAddress(), Operator: f.marketplaceAddr}, nil)
		require.Equal(t, http.StatusForbidden, rsp.StatusCode)
	})

	t.Run("listing by non-owner", func(t *testing.T) {
		rsp := f.do(t, "POST", "/listings",
			&ListItemRequest{Seller: test.RandomAddress(), RegistryID: f.registryID, AssetID: assetID, Price: amount(ether(1))}, nil)
		require.Equal(t, http.StatusForbidden, rsp.StatusCode)
	})

	t.Run("listing twice", func(t *testing.T) {
		rsp := f.do(t, "POST", "/listings",
			&ListItemRequest{Seller: seller, RegistryID: f.registryID, AssetID: assetID, Price: amount(ether(1))}, nil)
		require.Equal(t, http.StatusConflict, rsp.StatusCode)
	})

	t.Run("unknown registry", func(t *testing.T) {
		rsp := f.do(t, "POST", "/listings",
			&ListItemRequest{Seller: seller, RegistryID: test.RandomAddress(), AssetID: assetID, Price: amount(ether(1))}, nil)
		require.Equal(t, http.StatusNotFound, rsp.StatusCode)
	})

	t.Run("purchase of unlisted asset", func(t *testing.T) {
		rsp := f.do(t, "POST", fmt.Sprintf("/listings/%s/42/purchase", f.registryID.Hex()),
			&PurchaseRequest{Buyer: test.RandomAddress(), Payment: amount(ether(1))}, nil)
		require.Equal(t, http.StatusNotFound, rsp.StatusCode)
	})

	t.Run("underpaying purchase", func(t *testing.T) {
		rsp := f.do(t, "POST", listingPath+"/purchase",
			&PurchaseRequest{Buyer: test.RandomAddress(), Payment: amount(uint256.NewInt(5))}, nil)
		require.Equal(t, http.StatusBadRequest, rsp.StatusCode)
	})

	t.Run("malformed registry address", func(t *testing.T) {
		rsp := f.do(t, "GET", "/listings/zzz/1", nil, nil)
		require.Equal(t, http.StatusBadRequest, rsp.StatusCode)
	})

	t.Run("withdrawal without balance", func(t *testing.T) {
		rsp := f.do(t, "POST", "/withdrawals", &WithdrawRequest{Caller: test.RandomAddress()}, nil)
		require.Equal(t, http.StatusBadRequest, rsp.StatusCode)
	})

	t.Run("malformed balance address", func(t *testing.T) {
		rsp := f.do(t, "GET", "/balances/zzz", nil, nil)
		require.Equal(t, http.StatusBadRequest, rsp.StatusCode)
	})

	t.Run("zero balance address", func(t *testing.T) {
		rsp := f.do(t, "GET", "/balances/"+(common.Address{}).Hex(), nil, nil)
		require.Equal(t, http.StatusBadRequest, rsp.StatusCode)
	})
}
