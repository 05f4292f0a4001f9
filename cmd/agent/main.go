// Package main provides the liquidity agent CLI:
// - deposit: split the base asset, swap into both pool tokens, add
//   liquidity and stake the LP tokens
// - withdraw: unstake, remove liquidity and swap both sides back
// - status / serve: inspect or expose the agent over HTTP
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
	"base-lp-agent/internal/ledger/evm"
	memledger "base-lp-agent/internal/ledger/memory"
	"base-lp-agent/internal/observability"
	"base-lp-agent/internal/saga"
	"base-lp-agent/internal/storage"
	chstore "base-lp-agent/internal/storage/clickhouse"
	"base-lp-agent/internal/storage/memory"
	"base-lp-agent/internal/storage/migrations"
	pgstore "base-lp-agent/internal/storage/postgres"
)

// Base mainnet defaults. Overridable per flag for other deployments.
const (
	defaultBaseToken = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" // USDC
	defaultTokenA    = "0x4200000000000000000000000000000000000006" // WETH
	defaultTokenB    = "0x0b3e328455c4059EEb9e3f84b5543F74E24e7E1b" // VIRTUAL
	defaultRouter    = "0xcF77a3Ba9A5CA399B7c97c74d54e5b1Beb874E43"
	defaultFactory   = "0x420DD381b31aEf6683db6B902084cB0FFECe40Da"
	defaultVoter     = "0x16613524e02ad97eDfeF371bC883F2F5d6C480A5"
	defaultMulticall = "0xcA11bde05977b3631167028862bE2a173976CA11" // Multicall3
)

// agentStores holds the persistence surfaces the CLI wires up.
type agentStores struct {
	receipts   storage.ReceiptStore
	errors     storage.ErrorHistoryStore
	stepEvents storage.StepEventStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("RPC_ENDPOINT"), "EVM RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("WS_ENDPOINT"), "EVM WebSocket endpoint (optional)")
	privateKey := flag.String("private-key", os.Getenv("PRIVATE_KEY"), "Signing key in hex")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and a simulated chain (dry run)")

	baseToken := flag.String("base-token", envOr("BASE_TOKEN", defaultBaseToken), "Base asset address")
	tokenA := flag.String("token-a", envOr("TOKEN_A", defaultTokenA), "First pool token address")
	tokenB := flag.String("token-b", envOr("TOKEN_B", defaultTokenB), "Second pool token address")
	baseDecimals := flag.Int("base-decimals", 6, "Base asset decimal precision")
	router := flag.String("router", envOr("ROUTER_ADDRESS", defaultRouter), "Router contract address")
	factory := flag.String("factory", envOr("FACTORY_ADDRESS", defaultFactory), "Pool factory contract address")
	voter := flag.String("voter", envOr("VOTER_ADDRESS", defaultVoter), "Voter contract address")
	multicall := flag.String("multicall", envOr("MULTICALL_ADDRESS", defaultMulticall), "Multicall3 address (empty disables batching)")

	deposit := flag.String("deposit", "", "Deposit the given base-asset amount (decimal string)")
	withdraw := flag.Int("withdraw", 0, "Withdraw the given percentage of the staked position (1-100)")
	status := flag.Bool("status", false, "Print agent status and exit")
	serve := flag.Bool("serve", false, "Run the HTTP status/metrics server")

	slippage := flag.Float64("slippage", 0, "Slippage tolerance percent (0 = default)")
	batching := flag.Bool("batch", false, "Batch independent calls through Multicall3")
	httpAddr := flag.String("http-addr", ":9090", "HTTP address for /status and /metrics")
	refreshInterval := flag.Duration("refresh-interval", 5*time.Minute, "Pool state refresh interval in serve mode")

	flag.Parse()

	logger := log.New(os.Stdout, "[agent] ", log.LstdFlags|log.Lshortfile)

	modes := 0
	if *deposit != "" {
		modes++
	}
	if *withdraw != 0 {
		modes++
	}
	if *status {
		modes++
	}
	if *serve {
		modes++
	}
	if modes != 1 {
		logger.Fatal("Exactly one of --deposit, --withdraw, --status, --serve is required")
	}

	if !*useMemory {
		if *rpcEndpoint == "" {
			logger.Fatal("--rpc-endpoint is required (use --use-memory for a dry run)")
		}
		if *privateKey == "" {
			logger.Fatal("--private-key is required (use --use-memory for a dry run)")
		}
		if *postgresDSN == "" || *clickhouseDSN == "" {
			logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	gateway, closeGateway, err := createGateway(ctx, gatewayConfig{
		useMemory:   *useMemory,
		rpcEndpoint: *rpcEndpoint,
		privateKey:  *privateKey,
		router:      *router,
		factory:     *factory,
		voter:       *voter,
		multicall:   *multicall,
		baseToken:   *baseToken,
		tokenA:      *tokenA,
		tokenB:      *tokenB,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to create gateway: %v", err)
	}
	defer closeGateway()

	agent, err := saga.NewAgent(saga.Options{
		Gateway:      gateway,
		BaseToken:    *baseToken,
		TokenA:       *tokenA,
		TokenB:       *tokenB,
		BaseDecimals: *baseDecimals,
		SlippagePct:  *slippage,
		StepSink:     persistStepEvents(stores.stepEvents, logger),
		Logger:       logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create agent: %v", err)
	}

	if err := agent.Initialize(ctx); err != nil {
		observability.RecordPoolDiscovered(false)
		logger.Fatalf("Failed to initialize agent: %v", err)
	}
	observability.RecordPoolDiscovered(true)

	switch {
	case *deposit != "":
		err = runDeposit(ctx, agent, stores, domain.DepositRequest{
			Amount:      *deposit,
			SlippagePct: *slippage,
			UseBatching: *batching,
		}, logger)
	case *withdraw != 0:
		err = runWithdraw(ctx, agent, stores, domain.WithdrawRequest{
			Percentage:  *withdraw,
			SlippagePct: *slippage,
			UseBatching: *batching,
		}, logger)
	case *status:
		err = printStatus(agent)
	case *serve:
		err = runServe(ctx, agent, *httpAddr, *wsEndpoint, *refreshInterval, logger)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("%v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// createStores creates the receipt, error-history and step-event stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*agentStores, func(), error) {
	if useMemory {
		stores := &agentStores{
			receipts:   memory.NewReceiptStore(),
			errors:     memory.NewErrorHistoryStore(),
			stepEvents: memory.NewStepEventStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &agentStores{
		receipts:   pgstore.NewReceiptStore(pool),
		errors:     pgstore.NewErrorHistoryStore(pool),
		stepEvents: chstore.NewStepEventStore(chConn),
	}
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

type gatewayConfig struct {
	useMemory   bool
	rpcEndpoint string
	privateKey  string
	router      string
	factory     string
	voter       string
	multicall   string
	baseToken   string
	tokenA      string
	tokenB      string
}

// createGateway opens the EVM gateway, or builds a seeded in-memory one
// for dry runs.
func createGateway(ctx context.Context, cfg gatewayConfig, logger *log.Logger) (ledger.Gateway, func(), error) {
	if cfg.useMemory {
		return seededMemoryGateway(cfg), func() {}, nil
	}

	g, err := evm.Dial(ctx, evm.Config{
		RPCEndpoint: cfg.rpcEndpoint,
		PrivateKey:  cfg.privateKey,
		Router:      cfg.router,
		Factory:     cfg.factory,
		Voter:       cfg.voter,
		Multicall:   cfg.multicall,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return g, g.Close, nil
}

// seededMemoryGateway builds a simulated chain: one volatile pool with
// deep reserves, 1:1 swap rates and a funded wallet.
func seededMemoryGateway(cfg gatewayConfig) *memledger.Gateway {
	g := memledger.NewGateway("0x00000000000000000000000000000000000a9e27")
	g.SetRouter(cfg.router)

	reserve := new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
	g.AddPool(cfg.tokenA, cfg.tokenB, false, "0x000000000000000000000000000000000000f00d", "0x0000000000000000000000000000000000009a9e", ledger.Reserves{
		TokenA:      cfg.tokenA,
		TokenB:      cfg.tokenB,
		ReserveA:    reserve,
		ReserveB:    new(big.Int).Set(reserve),
		TotalSupply: new(big.Int).Set(reserve),
	})

	for _, pair := range [][2]string{
		{cfg.baseToken, cfg.tokenA},
		{cfg.baseToken, cfg.tokenB},
		{cfg.tokenA, cfg.baseToken},
		{cfg.tokenB, cfg.baseToken},
	} {
		g.SetRate(pair[0], pair[1], 1, 1)
	}

	// 1,000,000 base units at 6 decimals
	g.SetBalance(cfg.baseToken, big.NewInt(1_000_000_000_000))
	return g
}

// persistStepEvents returns a sink that writes each executed step to the
// analytics store.
func persistStepEvents(store storage.StepEventStore, logger *log.Logger) saga.StepSink {
	return func(e domain.StepEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Insert(ctx, &e); err != nil {
			logger.Printf("Failed to persist step event flow=%s op=%s: %v", e.FlowID, e.Op, err)
		}
	}
}

func runDeposit(ctx context.Context, agent *saga.Agent, stores *agentStores, req domain.DepositRequest, logger *log.Logger) error {
	logger.Printf("Depositing %s (batching=%v)...", req.Amount, req.UseBatching)

	result, err := agent.ExecuteDeposit(ctx, req)
	persistRecovery(ctx, agent, stores, logger)
	if err != nil {
		return fmt.Errorf("deposit rejected: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("deposit failed at %s after %d completed steps: %w", result.FailedStep, len(result.Steps), result.Err)
	}

	if err := stores.receipts.InsertPosition(ctx, result.Position); err != nil {
		logger.Printf("Failed to persist position receipt %s: %v", result.Position.PositionID, err)
	}

	logger.Printf("Deposit complete: position=%s lp=%s staked=%s steps=%d",
		result.Position.PositionID, result.Position.LPTokens,
		result.Position.StakedAmount, len(result.Steps))
	return printJSON(result.Position)
}

func runWithdraw(ctx context.Context, agent *saga.Agent, stores *agentStores, req domain.WithdrawRequest, logger *log.Logger) error {
	logger.Printf("Withdrawing %d%% (batching=%v)...", req.Percentage, req.UseBatching)

	result, err := agent.ExecuteWithdraw(ctx, req)
	persistRecovery(ctx, agent, stores, logger)
	if err != nil {
		return fmt.Errorf("withdraw rejected: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("withdraw failed at %s after %d completed steps: %w", result.FailedStep, len(result.Steps), result.Err)
	}

	if err := stores.receipts.InsertWithdrawal(ctx, result.Withdrawal); err != nil {
		logger.Printf("Failed to persist withdrawal receipt %s: %v", result.Withdrawal.WithdrawalID, err)
	}

	logger.Printf("Withdraw complete: withdrawal=%s unstaked=%s returned=%s steps=%d",
		result.Withdrawal.WithdrawalID, result.Withdrawal.WithdrawnAmount,
		result.Withdrawal.ReturnedBase, len(result.Steps))
	return printJSON(result.Withdrawal)
}

// persistRecovery flushes handled failures to the error-history store.
func persistRecovery(ctx context.Context, agent *saga.Agent, stores *agentStores, logger *log.Logger) {
	for _, entry := range agent.RecoveryHistory() {
		rec := &domain.ErrorRecord{
			RecordID:   uuid.NewString(),
			Flow:       entry.Context.Flow,
			FailedStep: entry.Context.FailedStep,
			ErrMessage: entry.Context.Err.Error(),
			Recovered:  entry.Recovered,
			Manual:     entry.Manual,
			Timestamp:  entry.Context.Timestamp,
		}
		if entry.Context.RequestedAmount != nil {
			rec.RequestedAmount = entry.Context.RequestedAmount.String()
		}
		if err := stores.errors.Insert(ctx, rec); err != nil {
			logger.Printf("Failed to persist error record: %v", err)
		}
	}
	agent.ClearRecoveryHistory()
}

func printStatus(agent *saga.Agent) error {
	return printJSON(agent.Status())
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runServe exposes /health, /status and /metrics, refreshes pool state
// on a timer and, when a WebSocket endpoint is given, tracks new heads.
func runServe(ctx context.Context, agent *saga.Agent, addr, wsEndpoint string, refreshInterval time.Duration, logger *log.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(agent.Status())
	})

	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Starting HTTP server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if wsEndpoint != "" {
		watcher, err := evm.NewHeadWatcher(ctx, wsEndpoint, nil, logger)
		if err != nil {
			logger.Printf("Head watcher unavailable: %v", err)
		} else {
			defer watcher.Close()
			go func() {
				var count uint64
				for head := range watcher.Heads() {
					count++
					if count%100 == 0 {
						logger.Printf("Chain head %d (%s)", head.Number, head.Hash)
					}
				}
			}()
		}
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
			return ctx.Err()
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-ticker.C:
			if err := agent.RefreshPool(ctx); err != nil {
				logger.Printf("Pool refresh failed: %v", err)
			}
		}
	}
}

// loadEnvFile loads .env into the environment without overriding
// existing variables.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
