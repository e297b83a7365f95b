package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"votex-backend/api"
	"votex-backend/ledger"
	"votex-backend/service"
	"votex-backend/storage"
)

type Config struct {
	Port          int
	DatabasePath  string
	JWTSecret     string
	TokenTTL      time.Duration
	LedgerRPC     string
	ContractAddr  string
	ChainID       int64
	AdminKeyHex   string
	LedgerTimeout time.Duration
	AdminEmail    string
	FakeLedger    bool
}

func loadConfig() Config {
	var cfg Config
	flag.IntVar(&cfg.Port, "port", 8080, "HTTP listen port")
	flag.StringVar(&cfg.DatabasePath, "db", envOr("VOTEX_DB", "votex.db"), "sqlite database path")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", os.Getenv("VOTEX_JWT_SECRET"), "token signing secret")
	flag.DurationVar(&cfg.TokenTTL, "token-ttl", 12*time.Hour, "bearer token lifetime")
	flag.StringVar(&cfg.LedgerRPC, "ledger-rpc", envOr("VOTEX_LEDGER_RPC", "http://localhost:8545"), "ledger JSON-RPC endpoint")
	flag.StringVar(&cfg.ContractAddr, "contract", os.Getenv("VOTEX_CONTRACT"), "voting contract address")
	flag.Int64Var(&cfg.ChainID, "chain-id", 1337, "ledger chain id")
	flag.StringVar(&cfg.AdminKeyHex, "admin-key", os.Getenv("VOTEX_ADMIN_KEY"), "hex private key for ledger transactions")
	flag.DurationVar(&cfg.LedgerTimeout, "ledger-timeout", 90*time.Second, "per-call ledger deadline")
	flag.StringVar(&cfg.AdminEmail, "admin-email", envOr("VOTEX_ADMIN_EMAIL", "admin@votex.local"), "admin account; a bearer token is minted for it at startup")
	flag.BoolVar(&cfg.FakeLedger, "fake-ledger", false, "use the in-memory ledger instead of the EVM client")
	flag.Parse()
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := loadConfig()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.JWTSecret == "" {
		log.Fatal("jwt secret is required (VOTEX_JWT_SECRET or -jwt-secret)")
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}

	var ledgerClient ledger.Client
	if cfg.FakeLedger {
		log.Warn("running against the in-memory ledger; votes are not durable")
		ledgerClient = ledger.NewMemory()
	} else {
		ledgerClient, err = ledger.NewEVMClient(cfg.LedgerRPC, cfg.ContractAddr, cfg.AdminKeyHex, cfg.ChainID)
		if err != nil {
			log.Fatal("failed to initialize ledger client", zap.Error(err))
		}
	}

	tokens := service.NewTokenService([]byte(cfg.JWTSecret), cfg.TokenTTL)
	coordinator := service.NewVoteCoordinator(store, ledgerClient, log, cfg.LedgerTimeout)
	auth := service.NewAuthService(store, ledgerClient, tokens, log, cfg.LedgerTimeout)
	registrar := service.NewRegistrar(store, ledgerClient, coordinator, log)

	// Mint the bootstrap admin token. Admin password auth is handled
	// outside this service.
	admin, err := store.FindOrCreateAdmin(cfg.AdminEmail, "VoteX Admin")
	if err != nil {
		log.Fatal("failed to ensure admin account", zap.Error(err))
	}
	adminToken, err := tokens.IssueAdmin(admin.ID, admin.Email)
	if err != nil {
		log.Fatal("failed to mint admin token", zap.Error(err))
	}
	log.Info("admin token minted",
		zap.String("email", admin.Email), zap.String("token", adminToken))

	server := api.NewServer(auth, coordinator, registrar, tokens, store, log)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info("starting VoteX API", zap.String("addr", addr))
		if err := server.Listen(addr); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
}
