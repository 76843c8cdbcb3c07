package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"trustpay/config"
	"trustpay/core"
	"trustpay/crypto"
	"trustpay/observability/logging"
	"trustpay/rpc"
	"trustpay/storage"
)

const envVar = "TRUSTPAY_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("trustpayd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		fatal(logger, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid config", err)
	}

	authority, err := crypto.DecodeAddress(cfg.ResolverAuthority)
	if err != nil {
		fatal(logger, "invalid ResolverAuthority address", err)
	}
	feeDestination, err := crypto.DecodeAddress(cfg.FeeDestination)
	if err != nil {
		fatal(logger, "invalid FeeDestination address", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		fatal(logger, "failed to open database", err)
	}
	defer db.Close()

	node := core.NewNode(db)
	global, err := node.InitializeGlobalState(authority.Fixed(), cfg.FeeBps, feeDestination.Fixed(), cfg.TokenDecimals)
	if err != nil {
		fatal(logger, "failed to initialise platform state", err)
	}
	logger.Info("platform state ready",
		slog.String("network", cfg.NetworkName),
		slog.String("authority", cfg.ResolverAuthority),
		slog.Uint64("feeBps", uint64(global.FeeBps)),
		slog.Uint64("contractsCreated", global.TotalContractsCreated),
		slog.String("totalVolume", bigString(global.TotalVolume)),
	)

	server := rpc.NewServer(node, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		fatal(logger, "rpc server stopped", err)
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
