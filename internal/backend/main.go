// Package backend wires the marketplace components together and runs the
// HTTP service: bolt backed storage, the CryptoWheels collection, the
// marketplace ledger and the REST API.
package backend

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ainvaltin/httpsrv"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/cryptowheels/marketplace/internal/carnft"
	"github.com/cryptowheels/marketplace/internal/event"
	"github.com/cryptowheels/marketplace/internal/logger"
	"github.com/cryptowheels/marketplace/internal/market"
	"github.com/cryptowheels/marketplace/internal/payment"
	"github.com/cryptowheels/marketplace/internal/pricefeed"
	"github.com/cryptowheels/marketplace/internal/restapi"
)

const (
	marketDbFileName = "market.db"
	nftDbFileName    = "carnft.db"
)

type Config struct {
	// ServerAddr is the REST listen address, host:port.
	ServerAddr string
	// DbPath is the directory for the bolt database files. Ignored when
	// stores are assigned directly.
	DbPath string
	// MarketplaceAddr identifies the marketplace as the transfer agent in
	// the asset registry.
	MarketplaceAddr common.Address
	// RegistryAddr is the registry identifier of the CryptoWheels collection.
	RegistryAddr common.Address
	// MintFee is the required payment per minted asset.
	MintFee *uint256.Int
	// RateAnswer and RateDecimals configure the static price feed used when
	// no Aggregator is assigned.
	RateAnswer   *big.Int
	RateDecimals uint8

	Logger logger.Logger
	Events event.Handler

	// optional, mainly for tests: assigned instances win over DbPath and
	// rate configuration
	MarketStore market.Store
	NFTStore    carnft.Store
	Gateway     payment.Gateway
	Aggregator  pricefeed.Aggregator
}

// Run starts the marketplace service and blocks until ctx is cancelled or
// the server exits with an error.
func Run(ctx context.Context, cfg *Config) error {
	marketStore, nftStore, err := stores(cfg)
	if err != nil {
		return fmt.Errorf("failed to get storage: %w", err)
	}

	gateway := cfg.Gateway
	if gateway == nil {
		gateway = payment.NewMemGateway()
	}
	aggregator := cfg.Aggregator
	if aggregator == nil {
		if cfg.RateAnswer == nil {
			return errors.New("either price feed aggregator or rate answer must be assigned")
		}
		aggregator = pricefeed.NewStaticAggregator(cfg.RateAnswer, cfg.RateDecimals)
	}

	collection, err := carnft.NewCollection(cfg.RegistryAddr, cfg.MintFee, nftStore, gateway, cfg.Events, cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create the collection: %w", err)
	}
	registry := carnft.NewRouter(cfg.MarketplaceAddr, collection)
	converter := pricefeed.NewAdapter(aggregator)

	ledger, err := market.NewLedger(marketStore, registry, converter, gateway, cfg.Events, cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create the ledger: %w", err)
	}

	logErr := func(format string, args ...interface{}) {
		if cfg.Logger != nil {
			cfg.Logger.Error(format, args...)
		}
	}
	api := restapi.New(ledger, collection, logErr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if cfg.Logger != nil {
			cfg.Logger.Info("starting REST server on %s", cfg.ServerAddr)
		}
		server := http.Server{
			Addr:              cfg.ServerAddr,
			Handler:           api.Endpoints(),
			ReadTimeout:       3 * time.Second,
			ReadHeaderTimeout: time.Second,
			WriteTimeout:      5 * time.Second,
			IdleTimeout:       30 * time.Second,
		}
		return httpsrv.Run(ctx, server, httpsrv.ShutdownTimeout(5*time.Second))
	})
	return g.Wait()
}

func stores(cfg *Config) (market.Store, carnft.Store, error) {
	marketStore, nftStore := cfg.MarketStore, cfg.NFTStore
	if marketStore == nil {
		if cfg.DbPath == "" {
			return nil, nil, errors.New("neither db path nor market store is assigned")
		}
		var err error
		if marketStore, err = market.NewBoltStore(filepath.Join(cfg.DbPath, marketDbFileName)); err != nil {
			return nil, nil, err
		}
	}
	if nftStore == nil {
		if cfg.DbPath == "" {
			return nil, nil, errors.New("neither db path nor token store is assigned")
		}
		var err error
		if nftStore, err = carnft.NewBoltStore(filepath.Join(cfg.DbPath, nftDbFileName)); err != nil {
			return nil, nil, err
		}
	}
	return marketStore, nftStore, nil
}
