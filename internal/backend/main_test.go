package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/cryptowheels/marketplace/internal/carnft"
	"github.com/cryptowheels/marketplace/internal/market"
	"github.com/cryptowheels/marketplace/internal/restapi"
	test "github.com/cryptowheels/marketplace/internal/testutils"
)

func Test_stores(t *testing.T) {
	t.Run("nothing assigned", func(t *testing.T) {
		_, _, err := stores(&Config{})
		require.ErrorContains(t, err, "neither db path nor market store is assigned")
	})

	t.Run("market store assigned but no token store", func(t *testing.T) {
		_, _, err := stores(&Config{MarketStore: market.NewMemStore()})
		require.ErrorContains(t, err, "neither db path nor token store is assigned")
	})

	t.Run("bolt stores are created under the db path", func(t *testing.T) {
		marketStore, nftStore, err := stores(&Config{DbPath: t.TempDir()})
		require.NoError(t, err)
		require.NotNil(t, marketStore)
		require.NotNil(t, nftStore)
	})

	t.Run("assigned stores win over db path", func(t *testing.T) {
		expMarket, expNFT := market.NewMemStore(), carnft.NewMemStore()
		marketStore, nftStore, err := stores(&Config{DbPath: "/nonexistent", MarketStore: expMarket, NFTStore: expNFT})
		require.NoError(t, err)
		require.Equal(t, expMarket, marketStore)
		require.Equal(t, expNFT, nftStore)
	})
}

func Test_Run(t *testing.T) {
	t.Run("missing rate configuration", func(t *testing.T) {
		err := Run(context.Background(), &Config{
			MarketStore: market.NewMemStore(),
			NFTStore:    carnft.NewMemStore(),
		})
		require.ErrorContains(t, err, "either price feed aggregator or rate answer must be assigned")
	})

	t.Run("serves requests until cancelled", func(t *testing.T) {
		cfg := &Config{
			ServerAddr:      freeAddr(t),
			MarketplaceAddr: test.RandomAddress(),
			RegistryAddr:    test.RandomAddress(),
			MintFee:         uint256.NewInt(1000),
			RateAnswer:      big.NewInt(2000),
			MarketStore:     market.NewMemStore(),
			NFTStore:        carnft.NewMemStore(),
		}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- Run(ctx, cfg) }()

		baseURL := "http://" + cfg.ServerAddr + "/api/v1"
		require.Eventually(t, func() bool {
			rsp, err := http.Get(baseURL + "/supply")
			if err != nil {
				return false
			}
			defer rsp.Body.Close()
			return rsp.StatusCode == http.StatusOK
		}, 3*time.Second, 50*time.Millisecond, "service didn't become available")

		// the full stack is wired, a mint round-trips through it
		body, err := json.Marshal(&restapi.MintRequest{
			From:    test.RandomAddress(),
			URI:     "ipfs://QmWheels/1.json",
			Payment: (*hexutil.Big)(big.NewInt(1000)),
		})
		require.NoError(t, err)
		rsp, err := http.Post(baseURL+"/nfts", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		mintRsp := &restapi.MintResponse{}
		require.NoError(t, json.NewDecoder(rsp.Body).Decode(mintRsp))
		require.NoError(t, rsp.Body.Close())
		require.Equal(t, http.StatusCreated, rsp.StatusCode)
		require.EqualValues(t, 1, mintRsp.AssetID)

		cancel()
		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("backend didn't shut down within timeout")
		}
	})
}

// freeAddr returns a localhost address with a port that was free at the time
// of the call.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}
