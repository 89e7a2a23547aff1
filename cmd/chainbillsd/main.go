package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"chainbills/config"
	"chainbills/native/ledger"
	"chainbills/observability/logging"
	"chainbills/rpc"
	statestore "chainbills/state/ledger"
	"chainbills/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CHAINBILLS_ENV"))
	logger := logging.Setup("chainbillsd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if env != "" {
		cfg.Environment = env
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("failed to open database: %v", err))
	}
	defer db.Close()

	engine := ledger.NewEngine()
	engine.SetState(statestore.NewManager(db))

	if err := ensureInitialized(engine, cfg, logger); err != nil {
		logger.Error("Failed to initialize ledger", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, logger)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// ensureInitialized seeds the chain config on first boot and is a no-op on
// every boot after that.
func ensureInitialized(engine *ledger.Engine, cfg *config.Config, logger *slog.Logger) error {
	if _, err := engine.ChainConfig(); err == nil {
		return nil
	} else if !errors.Is(err, ledger.ErrNotInitialized) {
		return err
	}

	owner, err := ledger.ParseWallet(cfg.Owner)
	if err != nil {
		return fmt.Errorf("config Owner: %w", err)
	}
	feeCollector, err := ledger.ParseWallet(cfg.FeeCollector)
	if err != nil {
		return fmt.Errorf("config FeeCollector: %w", err)
	}
	if _, err := engine.Initialize(cfg.ChainID, cfg.ChainSequenceSeed, owner, feeCollector, cfg.NativeDenom); err != nil {
		return err
	}
	logger.Info("Initialized ledger",
		slog.Uint64("chainId", uint64(cfg.ChainID)),
		slog.String("owner", ledger.FormatWallet(owner)))
	return nil
}
