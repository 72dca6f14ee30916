package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zdao/zdao-node/api"
	"github.com/zdao/zdao-node/db"
	"github.com/zdao/zdao-node/internal"
	"github.com/zdao/zdao-node/db/pebbledb"
	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/relayer"
	"github.com/zdao/zdao-node/service"
	"github.com/zdao/zdao-node/session"
	"github.com/zdao/zdao-node/signer"
	"github.com/zdao/zdao-node/storage"
	"github.com/zdao/zdao-node/voting"
	"github.com/zdao/zdao-node/web3"
)

// Services holds all the running services
type Services struct {
	Storage     *storage.Storage
	Gateway     *web3.Gateway
	Relayer     *relayer.Client
	Coordinator *voting.Coordinator
	Monitor     *service.ProposalMonitor
	API         *api.API
}

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	log.Init(cfg.Log.Level, cfg.Log.Output)
	log.Infow("starting zdao-node", "version", internal.Version,
		"contract", cfg.Web3.Contract, "chainId", cfg.Web3.ChainID)

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup services
	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	// Initialize the decryption result cache
	log.Infow("initializing storage", "datadir", cfg.Datadir)
	database, err := pebbledb.New(db.Options{Path: path.Join(cfg.Datadir, "decrypt-cache")})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.Storage = storage.New(database)

	// Account key, also used to sign relayer decryption authorizations
	chainID := big.NewInt(cfg.Web3.ChainID)
	sig, err := signer.NewLocalSigner(cfg.Web3.PrivKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}

	// Initialize the voting contract gateway
	log.Infow("initializing web3 gateway", "rpc", cfg.Web3.Rpc)
	contractAddr := common.HexToAddress(cfg.Web3.Contract)
	services.Gateway, err = web3.New(ctx, cfg.Web3.Rpc, contractAddr, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize web3 gateway: %w", err)
	}
	log.Infow("gateway initialized", "account", sig.Address().Hex())

	// Initialize the relayer client and establish its session
	transport := relayer.NewHTTPTransport(cfg.Relayer.URL, cfg.Relayer.Timeout)
	services.Relayer = relayer.New(transport, services.Storage, sig, relayer.Config{
		Contract: contractAddr,
		Verifier: common.HexToAddress(cfg.Relayer.Verifier),
	})
	if err := services.Relayer.Init(ctx); err != nil {
		// Ballots cannot be cast without a session, but reads still work;
		// the client retries on Reset so the node stays up.
		log.Warnw("relayer session unavailable", "err", err.Error())
	}

	// Session state for the node's single voter identity
	store := session.NewStore()
	store.SetSession(sig.Address(), chainID)

	// The coordinator ties ledger, relayer and session together
	services.Coordinator = voting.New(services.Gateway, services.Relayer, store, voting.Config{
		RequiredChainID: chainID,
		SettleDelay:     cfg.Tally.SettleDelay,
		MismatchPolicy:  voting.MismatchPolicy(cfg.Tally.MismatchPolicy),
	})

	// Start proposal monitor
	log.Infow("starting proposal monitor", "interval", cfg.Tally.MonitorInterval.String())
	services.Monitor = service.NewProposalMonitor(services.Coordinator, services.Storage, cfg.Tally.MonitorInterval)
	if err := services.Monitor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start proposal monitor: %w", err)
	}

	// Start API service
	log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
	services.API, err = api.New(&api.Config{
		Host:        cfg.API.Host,
		Port:        cfg.API.Port,
		Coordinator: services.Coordinator,
		Session:     store,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start API service: %w", err)
	}

	log.Info("zdao-node is running, ready to process ballots!")
	return services, nil
}

// shutdownServices gracefully shuts down all services
func shutdownServices(services *Services) {
	if services == nil {
		return
	}

	// Stop services in reverse order of startup
	if services.Monitor != nil {
		services.Monitor.Stop()
	}
	if services.Gateway != nil {
		services.Gateway.Close()
	}
	if services.Storage != nil {
		if err := services.Storage.Close(); err != nil {
			log.Warnw("failed to close storage", "err", err.Error())
		}
	}
}
