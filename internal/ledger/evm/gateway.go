// Package evm implements the chain gateway against an EVM endpoint
// using go-ethereum. Writes are legacy-free dynamic-fee transactions
// signed locally; confirmation polls for the receipt until the
// configured timeout. Batched sub-calls go through Multicall3.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
	"base-lp-agent/internal/observability"
)

// Per-operation gas ceilings. Conservative upper bounds; unused gas is
// refunded, so overestimating only affects the balance check the node
// performs at submission.
const (
	gasSwap            = 300_000
	gasAddLiquidity    = 500_000
	gasRemoveLiquidity = 400_000
	gasStake           = 200_000
	gasUnstake         = 200_000
	gasMulticall       = 1_000_000
	gasApproval        = 100_000
)

const (
	defaultConfirmTimeout = 120 * time.Second
	defaultPollInterval   = 2 * time.Second
)

// Config collects everything needed to open a gateway. Addresses are
// checksummed hex strings; PrivateKey is the signing key in hex without
// the 0x prefix.
type Config struct {
	RPCEndpoint string
	PrivateKey  string

	Router    string
	Factory   string
	Voter     string
	Multicall string // optional; empty disables batch submission

	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	Logger *log.Logger
}

// Gateway is the production ledger.Gateway backed by an EVM node.
type Gateway struct {
	client  *ethclient.Client
	chainID *big.Int

	key   *ecdsa.PrivateKey
	owner common.Address

	router    common.Address
	factory   common.Address
	voter     common.Address
	multicall common.Address
	hasBatch  bool

	confirmTimeout time.Duration
	pollInterval   time.Duration

	nonceMu sync.Mutex

	logger *log.Logger
}

var _ ledger.Gateway = (*Gateway)(nil)

// Dial connects to the RPC endpoint and verifies the chain is
// reachable by fetching its chain ID.
func Dial(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.RPCEndpoint == "" {
		return nil, fmt.Errorf("evm: rpc endpoint is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("evm: parse private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCEndpoint, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("evm: chain id: %w", err)
	}

	g := &Gateway{
		client:         client,
		chainID:        chainID,
		key:            key,
		owner:          crypto.PubkeyToAddress(key.PublicKey),
		router:         common.HexToAddress(cfg.Router),
		factory:        common.HexToAddress(cfg.Factory),
		voter:          common.HexToAddress(cfg.Voter),
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		logger:         cfg.Logger,
	}
	if cfg.Multicall != "" {
		g.multicall = common.HexToAddress(cfg.Multicall)
		g.hasBatch = true
	}
	if g.confirmTimeout <= 0 {
		g.confirmTimeout = defaultConfirmTimeout
	}
	if g.pollInterval <= 0 {
		g.pollInterval = defaultPollInterval
	}
	if g.logger == nil {
		g.logger = log.Default()
	}

	g.logger.Printf("[evm] connected endpoint=%s chain=%s owner=%s",
		cfg.RPCEndpoint, chainID, g.owner.Hex())
	return g, nil
}

// Close releases the underlying RPC connection.
func (g *Gateway) Close() {
	g.client.Close()
}

func (g *Gateway) Owner() string  { return g.owner.Hex() }
func (g *Gateway) Router() string { return g.router.Hex() }

// --- read surface ---

func (g *Gateway) call(ctx context.Context, contract common.Address, parsed *callTarget, result ...interface{}) error {
	data, err := parsed.abi.Pack(parsed.method, parsed.args...)
	if err != nil {
		return fmt.Errorf("evm: pack %s: %w", parsed.method, err)
	}
	start := time.Now()
	out, err := g.client.CallContract(ctx, ethereum.CallMsg{
		From: g.owner,
		To:   &contract,
		Data: data,
	}, nil)
	observability.RecordRPCCall(parsed.method, time.Since(start))
	if err != nil {
		return fmt.Errorf("evm: call %s: %w: %v", parsed.method, ledger.ErrNetwork, err)
	}
	vals, err := parsed.abi.Unpack(parsed.method, out)
	if err != nil {
		return fmt.Errorf("evm: unpack %s: %w", parsed.method, err)
	}
	for i := range result {
		if i >= len(vals) {
			break
		}
		if err := assign(result[i], vals[i]); err != nil {
			return fmt.Errorf("evm: %s output %d: %w", parsed.method, i, err)
		}
	}
	return nil
}

func (g *Gateway) PoolFor(ctx context.Context, tokenA, tokenB string, stable bool) (string, error) {
	var pool common.Address
	err := g.call(ctx, g.factory,
		target(factoryABI, "getPool", common.HexToAddress(tokenA), common.HexToAddress(tokenB), stable),
		&pool)
	if err != nil {
		return "", err
	}
	if pool == (common.Address{}) {
		return "", nil
	}
	return pool.Hex(), nil
}

func (g *Gateway) GaugeFor(ctx context.Context, pool string) (string, error) {
	var gauge common.Address
	err := g.call(ctx, g.voter,
		target(voterABI, "gauges", common.HexToAddress(pool)),
		&gauge)
	if err != nil {
		return "", err
	}
	if gauge == (common.Address{}) {
		return "", nil
	}
	return gauge.Hex(), nil
}

func (g *Gateway) PoolState(ctx context.Context, pool string) (ledger.Reserves, error) {
	addr := common.HexToAddress(pool)
	var (
		token0, token1 common.Address
		reserve0       = new(big.Int)
		reserve1       = new(big.Int)
		lastUpdate     = new(big.Int)
		supply         = new(big.Int)
	)
	if err := g.call(ctx, addr, target(poolABI, "token0"), &token0); err != nil {
		return ledger.Reserves{}, err
	}
	if err := g.call(ctx, addr, target(poolABI, "token1"), &token1); err != nil {
		return ledger.Reserves{}, err
	}
	if err := g.call(ctx, addr, target(poolABI, "getReserves"), &reserve0, &reserve1, &lastUpdate); err != nil {
		return ledger.Reserves{}, err
	}
	if err := g.call(ctx, addr, target(poolABI, "totalSupply"), &supply); err != nil {
		return ledger.Reserves{}, err
	}
	return ledger.Reserves{
		TokenA:      token0.Hex(),
		TokenB:      token1.Hex(),
		ReserveA:    reserve0,
		ReserveB:    reserve1,
		TotalSupply: supply,
	}, nil
}

func (g *Gateway) Balance(ctx context.Context, token string) (*big.Int, error) {
	balance := new(big.Int)
	err := g.call(ctx, common.HexToAddress(token),
		target(erc20ABI, "balanceOf", g.owner),
		&balance)
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (g *Gateway) StakedBalance(ctx context.Context, gauge string) (*big.Int, error) {
	staked := new(big.Int)
	err := g.call(ctx, common.HexToAddress(gauge),
		target(gaugeABI, "balanceOf", g.owner),
		&staked)
	if err != nil {
		return nil, err
	}
	return staked, nil
}

func (g *Gateway) QuoteSwap(ctx context.Context, route ledger.Route, amountIn *big.Int) (*big.Int, error) {
	var amounts []*big.Int
	err := g.call(ctx, g.router,
		target(routerABI, "getAmountsOut", amountIn, abiRoutes(route)),
		&amounts)
	if err != nil {
		return nil, err
	}
	if len(amounts) == 0 {
		return nil, fmt.Errorf("evm: getAmountsOut returned no amounts")
	}
	return amounts[len(amounts)-1], nil
}

// --- write surface ---

func (g *Gateway) EnsureApproval(ctx context.Context, token, spender string, amount *big.Int) error {
	tokenAddr := common.HexToAddress(token)
	spenderAddr := common.HexToAddress(spender)

	allowance := new(big.Int)
	if err := g.call(ctx, tokenAddr, target(erc20ABI, "allowance", g.owner, spenderAddr), &allowance); err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	data, err := erc20ABI.Pack("approve", spenderAddr, amount)
	if err != nil {
		return fmt.Errorf("evm: pack approve: %w", err)
	}
	res, err := g.submit(ctx, domain.OpApprove, tokenAddr, data, gasApproval)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ledger.ErrApprovalFailed, token, err)
	}
	if !res.Success {
		return fmt.Errorf("%w: %s: %s", ledger.ErrApprovalFailed, token, res.Err)
	}
	return nil
}

func (g *Gateway) SubmitSwap(ctx context.Context, p ledger.SwapParams) (domain.StepResult, error) {
	data, err := routerABI.Pack("swapExactTokensForTokens",
		p.AmountIn, p.MinOut, abiRoutes(p.Route), g.owner, big.NewInt(p.Deadline))
	if err != nil {
		return domain.StepResult{}, fmt.Errorf("evm: pack swap: %w", err)
	}
	return g.submit(ctx, p.Op, g.router, data, gasSwap)
}

func (g *Gateway) SubmitAddLiquidity(ctx context.Context, p ledger.AddLiquidityParams) (domain.StepResult, error) {
	data, err := routerABI.Pack("addLiquidity",
		common.HexToAddress(p.TokenA), common.HexToAddress(p.TokenB), p.Stable,
		p.AmountA, p.AmountB, p.MinA, p.MinB, g.owner, big.NewInt(p.Deadline))
	if err != nil {
		return domain.StepResult{}, fmt.Errorf("evm: pack addLiquidity: %w", err)
	}
	return g.submit(ctx, domain.OpAddLiquidity, g.router, data, gasAddLiquidity)
}

func (g *Gateway) SubmitRemoveLiquidity(ctx context.Context, p ledger.RemoveLiquidityParams) (domain.StepResult, error) {
	data, err := routerABI.Pack("removeLiquidity",
		common.HexToAddress(p.TokenA), common.HexToAddress(p.TokenB), p.Stable,
		p.Liquidity, p.MinA, p.MinB, g.owner, big.NewInt(p.Deadline))
	if err != nil {
		return domain.StepResult{}, fmt.Errorf("evm: pack removeLiquidity: %w", err)
	}
	return g.submit(ctx, domain.OpRemoveLiquidity, g.router, data, gasRemoveLiquidity)
}

func (g *Gateway) SubmitStake(ctx context.Context, gauge string, amount *big.Int) (domain.StepResult, error) {
	data, err := gaugeABI.Pack("deposit", amount)
	if err != nil {
		return domain.StepResult{}, fmt.Errorf("evm: pack gauge deposit: %w", err)
	}
	return g.submit(ctx, domain.OpStake, common.HexToAddress(gauge), data, gasStake)
}

func (g *Gateway) SubmitUnstake(ctx context.Context, gauge string, amount *big.Int) (domain.StepResult, error) {
	data, err := gaugeABI.Pack("withdraw", amount)
	if err != nil {
		return domain.StepResult{}, fmt.Errorf("evm: pack gauge withdraw: %w", err)
	}
	return g.submit(ctx, domain.OpUnstake, common.HexToAddress(gauge), data, gasUnstake)
}

// submit builds, signs, sends and confirms one transaction.
func (g *Gateway) submit(ctx context.Context, op domain.StepOp, to common.Address, data []byte, gasLimit uint64) (domain.StepResult, error) {
	g.nonceMu.Lock()
	defer g.nonceMu.Unlock()

	tx, err := g.buildTx(ctx, to, data, gasLimit)
	if err != nil {
		return domain.StepResult{}, err
	}
	sendStart := time.Now()
	err = g.client.SendTransaction(ctx, tx)
	observability.RecordRPCCall("eth_sendRawTransaction", time.Since(sendStart))
	if err != nil {
		return domain.StepResult{}, fmt.Errorf("evm: send %s: %w: %v", op, ledger.ErrNetwork, err)
	}
	hash := tx.Hash()
	g.logger.Printf("[evm] submitted op=%s tx=%s", op, hash.Hex())

	confirmStart := time.Now()
	receipt, err := g.waitReceipt(ctx, hash)
	if err != nil {
		return domain.StepResult{
			Op:        op,
			TxHash:    hash.Hex(),
			Err:       err.Error(),
			Timestamp: time.Now().UnixMilli(),
		}, err
	}
	observability.RecordTxConfirmWait(time.Since(confirmStart))
	result := domain.StepResult{
		Op:        op,
		Success:   receipt.Status == types.ReceiptStatusSuccessful,
		TxHash:    hash.Hex(),
		GasUsed:   receipt.GasUsed,
		Timestamp: time.Now().UnixMilli(),
	}
	if !result.Success {
		err := fmt.Errorf("%w: op=%s tx=%s", ledger.ErrReverted, op, hash.Hex())
		result.Err = err.Error()
		return result, err
	}
	return result, nil
}

func (g *Gateway) buildTx(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	nonce, err := g.client.PendingNonceAt(ctx, g.owner)
	if err != nil {
		return nil, fmt.Errorf("evm: nonce: %w: %v", ledger.ErrNetwork, err)
	}
	tipCap, err := g.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: gas tip: %w: %v", ledger.ErrNetwork, err)
	}
	head, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: head: %w: %v", ledger.ErrNetwork, err)
	}
	// feeCap = 2*baseFee + tip keeps the tx includable across a few
	// blocks of base-fee growth.
	feeCap := new(big.Int).Add(
		new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
		tipCap,
	)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return nil, fmt.Errorf("evm: sign: %w", err)
	}
	return signed, nil
}

// waitReceipt polls until the receipt appears or the confirmation
// window closes.
func (g *Gateway) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: tx=%s: %v", ledger.ErrTimeout, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
