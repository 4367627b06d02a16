package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/cryptowheels/marketplace/internal/backend"
	"github.com/cryptowheels/marketplace/internal/logger"
)

const (
	serverAddrCmdName      = "server-addr"
	dbPathCmdName          = "db-path"
	mintFeeCmdName         = "mint-fee"
	rateCmdName            = "rate"
	rateDecimalsCmdName    = "rate-decimals"
	marketplaceAddrCmdName = "marketplace-addr"
	registryAddrCmdName    = "registry-addr"
	logLevelCmdName        = "log-level"

	// 1 ether in wei, the fee of the original CryptoWheels deployment
	defaultMintFee = "1000000000000000000"
	// feeds publish reference rates with 8 decimals
	defaultRateDecimals = 8
	// 2000 reference units per base unit at 8 decimals
	defaultRate = "200000000000"
)

func newMarketCmd(ctx context.Context, baseConfig *rootConfiguration) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "market",
		Short: "marketplace service commands",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(cmd, baseConfig); err != nil {
				return fmt.Errorf("failed to init configuration: %w", err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().String(logLevelCmdName, "INFO", "logging level (NONE, ERROR, WARNING, INFO, DEBUG, TRACE)")
	cmd.AddCommand(startMarketCmd(ctx, baseConfig))
	return cmd
}

func startMarketCmd(ctx context.Context, baseConfig *rootConfiguration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "starts the marketplace service, opens the storage and the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execMarketStartCmd(ctx, cmd, baseConfig)
		},
	}
	cmd.Flags().StringP(serverAddrCmdName, "s", "localhost:9654", "server address")
	cmd.Flags().StringP(dbPathCmdName, "f", "", "path to the database directory")
	cmd.Flags().String(mintFeeCmdName, defaultMintFee, "mint fee in wei")
	cmd.Flags().String(rateCmdName, defaultRate, "base to reference currency rate published by the static price feed")
	cmd.Flags().Uint8(rateDecimalsCmdName, defaultRateDecimals, "decimals of the published rate")
	cmd.Flags().String(marketplaceAddrCmdName, "", "address identifying the marketplace as transfer agent")
	cmd.Flags().String(registryAddrCmdName, "", "registry identifier of the CryptoWheels collection")
	return cmd
}

func execMarketStartCmd(ctx context.Context, cmd *cobra.Command, baseConfig *rootConfiguration) error {
	serverAddr, err := cmd.Flags().GetString(serverAddrCmdName)
	if err != nil {
		return fmt.Errorf("failed to read %q flag value: %w", serverAddrCmdName, err)
	}
	dbPath, err := cmd.Flags().GetString(dbPathCmdName)
	if err != nil {
		return fmt.Errorf("failed to read %q flag value: %w", dbPathCmdName, err)
	}
	if dbPath == "" {
		dbPath = filepath.Join(baseConfig.HomeDir, "market")
	}
	if err := os.MkdirAll(dbPath, 0700); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	mintFee, err := amountFlag(cmd, mintFeeCmdName)
	if err != nil {
		return err
	}
	rateStr, err := cmd.Flags().GetString(rateCmdName)
	if err != nil {
		return fmt.Errorf("failed to read %q flag value: %w", rateCmdName, err)
	}
	rate, ok := new(big.Int).SetString(rateStr, 10)
	if !ok {
		return fmt.Errorf("invalid %q flag value %q", rateCmdName, rateStr)
	}
	rateDecimals, err := cmd.Flags().GetUint8(rateDecimalsCmdName)
	if err != nil {
		return fmt.Errorf("failed to read %q flag value: %w", rateDecimalsCmdName, err)
	}
	marketplaceAddr, err := addressFlag(cmd, marketplaceAddrCmdName)
	if err != nil {
		return err
	}
	registryAddr, err := addressFlag(cmd, registryAddrCmdName)
	if err != nil {
		return err
	}

	log, err := buildLogger(cmd, baseConfig)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return backend.Run(ctx, &backend.Config{
		ServerAddr:      serverAddr,
		DbPath:          dbPath,
		MarketplaceAddr: marketplaceAddr,
		RegistryAddr:    registryAddr,
		MintFee:         mintFee,
		RateAnswer:      rate,
		RateDecimals:    rateDecimals,
		Logger:          log,
	})
}

func buildLogger(cmd *cobra.Command, baseConfig *rootConfiguration) (logger.Logger, error) {
	if baseConfig.LogCfgFile != "" {
		cfgFile := baseConfig.LogCfgFile
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(baseConfig.HomeDir, cfgFile)
		}
		cfg, err := logger.LoadConfig(cfgFile)
		if err != nil {
			return nil, err
		}
		return cfg.Build("market")
	}
	logLevel, err := cmd.Flags().GetString(logLevelCmdName)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q flag value: %w", logLevelCmdName, err)
	}
	return logger.New("market", logger.LevelFromString(logLevel), os.Stderr, true), nil
}

func amountFlag(cmd *cobra.Command, name string) (*uint256.Int, error) {
	s, err := cmd.Flags().GetString(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q flag value: %w", name, err)
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("invalid %q flag value %q", name, s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%q flag value %q out of range", name, s)
	}
	return v, nil
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	s, err := cmd.Flags().GetString(name)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read %q flag value: %w", name, err)
	}
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %q flag value %q", name, s)
	}
	return common.HexToAddress(s), nil
}
