// Package memory provides a deterministic in-memory ledger.Gateway used
// by tests and by the agent's dry-run mode. Balances, pools and gauges
// live in maps; failures are scripted per operation.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
)

// Gateway is an in-memory implementation of ledger.Gateway.
type Gateway struct {
	mu sync.Mutex

	owner      string
	router     string
	balances   map[string]*big.Int // token → balance
	staked     map[string]*big.Int // gauge → staked balance
	allowances map[string]*big.Int // token|spender → allowance

	pools  map[string]string           // pairKey(a,b,stable) → pool address
	gauges map[string]string           // pool → gauge
	state  map[string]ledger.Reserves  // pool → reserves
	rates  map[string]*big.Rat         // "from→to" → exchange rate

	failures     map[domain.StepOp]error // op → scripted failure
	disableBatch bool

	txSeq   uint64
	callLog []domain.StepOp
}

// NewGateway creates an empty in-memory gateway for the given owner
// address.
func NewGateway(owner string) *Gateway {
	return &Gateway{
		owner:      owner,
		router:     "0xrouter",
		balances:   make(map[string]*big.Int),
		staked:     make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
		pools:      make(map[string]string),
		gauges:     make(map[string]string),
		state:      make(map[string]ledger.Reserves),
		rates:      make(map[string]*big.Rat),
		failures:   make(map[domain.StepOp]error),
	}
}

// Compile-time interface check.
var _ ledger.Gateway = (*Gateway)(nil)

// SetBalance sets a token balance.
func (g *Gateway) SetBalance(token string, amount *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[token] = new(big.Int).Set(amount)
}

// SetStaked sets a gauge's staked balance.
func (g *Gateway) SetStaked(gauge string, amount *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.staked[gauge] = new(big.Int).Set(amount)
}

// AddPool registers a pool for a pair and variant, with its gauge and
// initial reserves. An empty gauge registers a gaugeless pool.
func (g *Gateway) AddPool(tokenA, tokenB string, stable bool, pool, gauge string, reserves ledger.Reserves) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pools[pairKey(tokenA, tokenB, stable)] = pool
	if gauge != "" {
		g.gauges[pool] = gauge
	}
	reserves.TokenA, reserves.TokenB = tokenA, tokenB
	g.state[pool] = reserves
}

// SetRate fixes the exchange rate applied to swaps from one token to
// another: amountOut = amountIn × num / den.
func (g *Gateway) SetRate(from, to string, num, den int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rates[from+"→"+to] = big.NewRat(num, den)
}

// FailOn scripts a failure for every subsequent call of the given
// operation. Passing nil clears the script.
func (g *Gateway) FailOn(op domain.StepOp, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// DisableBatching makes SubmitBatch return ErrUnsupportedBatch, forcing
// callers onto the sequential path.
func (g *Gateway) DisableBatching() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disableBatch = true
}

// CallLog returns the ordered list of mutating operations submitted so
// far (for ordering assertions).
func (g *Gateway) CallLog() []domain.StepOp {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.StepOp, len(g.callLog))
	copy(out, g.callLog)
	return out
}

func (g *Gateway) Owner() string  { return g.owner }
func (g *Gateway) Router() string { return g.router }

// SetRouter overrides the default router address.
func (g *Gateway) SetRouter(router string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.router = router
}

func (g *Gateway) QuoteSwap(_ context.Context, route ledger.Route, amountIn *big.Int) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rate, ok := g.rates[route.From+"→"+route.To]
	if !ok {
		rate = big.NewRat(1, 1)
	}
	out := new(big.Int).Mul(amountIn, rate.Num())
	out.Div(out, rate.Denom())
	return out, nil
}

func (g *Gateway) Balance(_ context.Context, token string) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balanceLocked(token), nil
}

func (g *Gateway) StakedBalance(_ context.Context, gauge string) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.staked[gauge]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (g *Gateway) PoolFor(_ context.Context, tokenA, tokenB string, stable bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pools[pairKey(tokenA, tokenB, stable)], nil
}

func (g *Gateway) GaugeFor(_ context.Context, pool string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gauges[pool], nil
}

func (g *Gateway) PoolState(_ context.Context, pool string) (ledger.Reserves, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.state[pool]
	if !ok {
		return ledger.Reserves{}, fmt.Errorf("%w: unknown pool %s", ledger.ErrNetwork, pool)
	}
	return st, nil
}

func (g *Gateway) EnsureApproval(_ context.Context, token, spender string, amount *big.Int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[domain.OpApprove]; err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrApprovalFailed, err)
	}
	key := token + "|" + spender
	if cur, ok := g.allowances[key]; ok && cur.Cmp(amount) >= 0 {
		return nil
	}
	g.allowances[key] = new(big.Int).Set(amount)
	g.callLog = append(g.callLog, domain.OpApprove)
	return nil
}

func (g *Gateway) SubmitSwap(_ context.Context, p ledger.SwapParams) (domain.StepResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.swapLocked(p)
}

func (g *Gateway) SubmitAddLiquidity(_ context.Context, p ledger.AddLiquidityParams) (domain.StepResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures[domain.OpAddLiquidity]; err != nil {
		return g.failedResult(domain.OpAddLiquidity, err), err
	}
	if err := g.debitLocked(p.TokenA, p.AmountA); err != nil {
		return g.failedResult(domain.OpAddLiquidity, err), err
	}
	if err := g.debitLocked(p.TokenB, p.AmountB); err != nil {
		return g.failedResult(domain.OpAddLiquidity, err), err
	}

	// Minted liquidity is a deterministic stand-in: the smaller deposit.
	minted := new(big.Int).Set(p.AmountA)
	if p.AmountB.Cmp(minted) < 0 {
		minted.Set(p.AmountB)
	}
	pool := g.pools[pairKey(p.TokenA, p.TokenB, p.Stable)]
	g.creditLocked(pool, minted)

	return g.successResult(domain.OpAddLiquidity), nil
}

func (g *Gateway) SubmitRemoveLiquidity(_ context.Context, p ledger.RemoveLiquidityParams) (domain.StepResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures[domain.OpRemoveLiquidity]; err != nil {
		return g.failedResult(domain.OpRemoveLiquidity, err), err
	}
	pool := g.pools[pairKey(p.TokenA, p.TokenB, p.Stable)]
	if err := g.debitLocked(pool, p.Liquidity); err != nil {
		return g.failedResult(domain.OpRemoveLiquidity, err), err
	}

	// Returned amounts are a deterministic stand-in: the burnt liquidity
	// split evenly across both sides.
	half := new(big.Int).Rsh(p.Liquidity, 1)
	rest := new(big.Int).Sub(p.Liquidity, half)
	g.creditLocked(p.TokenA, half)
	g.creditLocked(p.TokenB, rest)

	return g.successResult(domain.OpRemoveLiquidity), nil
}

func (g *Gateway) SubmitStake(_ context.Context, gauge string, amount *big.Int) (domain.StepResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures[domain.OpStake]; err != nil {
		return g.failedResult(domain.OpStake, err), err
	}
	pool := g.poolForGaugeLocked(gauge)
	if err := g.debitLocked(pool, amount); err != nil {
		return g.failedResult(domain.OpStake, err), err
	}
	cur, ok := g.staked[gauge]
	if !ok {
		cur = new(big.Int)
		g.staked[gauge] = cur
	}
	cur.Add(cur, amount)

	return g.successResult(domain.OpStake), nil
}

func (g *Gateway) SubmitUnstake(_ context.Context, gauge string, amount *big.Int) (domain.StepResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures[domain.OpUnstake]; err != nil {
		return g.failedResult(domain.OpUnstake, err), err
	}
	cur := g.staked[gauge]
	if cur == nil || cur.Cmp(amount) < 0 {
		err := fmt.Errorf("%w: staked balance below %s", ledger.ErrInsufficientBalance, amount)
		return g.failedResult(domain.OpUnstake, err), err
	}
	cur.Sub(cur, amount)
	g.creditLocked(g.poolForGaugeLocked(gauge), amount)

	return g.successResult(domain.OpUnstake), nil
}

func (g *Gateway) SubmitBatch(_ context.Context, calls []ledger.Call, mode ledger.BatchMode) ([]domain.StepResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disableBatch {
		return nil, ledger.ErrUnsupportedBatch
	}

	results := make([]domain.StepResult, 0, len(calls))
	snapshot := g.snapshotLocked()

	for _, call := range calls {
		var res domain.StepResult
		var err error

		switch call.Kind {
		case ledger.CallApprove:
			if ferr := g.failures[domain.OpApprove]; ferr != nil {
				err = fmt.Errorf("%w: %v", ledger.ErrApprovalFailed, ferr)
				res = g.failedResult(call.Op, err)
			} else {
				g.allowances[call.Token+"|"+call.Spender] = new(big.Int).Set(call.Amount)
				g.callLog = append(g.callLog, domain.OpApprove)
				res = g.successResult(call.Op)
			}
		case ledger.CallSwap:
			res, err = g.swapLocked(*call.Swap)
		default:
			err = fmt.Errorf("%w: unknown call kind %q", ledger.ErrNetwork, call.Kind)
			res = g.failedResult(call.Op, err)
		}

		if err != nil && mode == ledger.AllOrNothing {
			g.restoreLocked(snapshot)
			return nil, fmt.Errorf("%w: batch call %s failed: %v", ledger.ErrReverted, call.Op, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// swapLocked applies a scripted or rate-table swap. Callers hold the lock.
func (g *Gateway) swapLocked(p ledger.SwapParams) (domain.StepResult, error) {
	if err := g.failures[p.Op]; err != nil {
		return g.failedResult(p.Op, err), err
	}
	if err := g.debitLocked(p.Route.From, p.AmountIn); err != nil {
		return g.failedResult(p.Op, err), err
	}

	rate, ok := g.rates[p.Route.From+"→"+p.Route.To]
	if !ok {
		rate = big.NewRat(1, 1)
	}
	out := new(big.Int).Mul(p.AmountIn, rate.Num())
	out.Div(out, rate.Denom())

	if p.MinOut != nil && out.Cmp(p.MinOut) < 0 {
		err := fmt.Errorf("%w: output %s below minimum %s", ledger.ErrReverted, out, p.MinOut)
		g.creditLocked(p.Route.From, p.AmountIn) // revert the debit
		return g.failedResult(p.Op, err), err
	}
	g.creditLocked(p.Route.To, out)

	return g.successResult(p.Op), nil
}

func (g *Gateway) balanceLocked(token string) *big.Int {
	if b, ok := g.balances[token]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (g *Gateway) debitLocked(token string, amount *big.Int) error {
	cur := g.balances[token]
	if cur == nil || cur.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s balance below %s", ledger.ErrInsufficientBalance, token, amount)
	}
	cur.Sub(cur, amount)
	return nil
}

func (g *Gateway) creditLocked(token string, amount *big.Int) {
	cur, ok := g.balances[token]
	if !ok {
		cur = new(big.Int)
		g.balances[token] = cur
	}
	cur.Add(cur, amount)
}

func (g *Gateway) poolForGaugeLocked(gauge string) string {
	for pool, gg := range g.gauges {
		if gg == gauge {
			return pool
		}
	}
	return ""
}

func (g *Gateway) successResult(op domain.StepOp) domain.StepResult {
	g.txSeq++
	g.callLog = append(g.callLog, op)
	return domain.StepResult{
		Op:        op,
		Success:   true,
		TxHash:    fmt.Sprintf("0xmem%06d", g.txSeq),
		GasUsed:   21_000,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (g *Gateway) failedResult(op domain.StepOp, err error) domain.StepResult {
	return domain.StepResult{
		Op:        op,
		Success:   false,
		Err:       err.Error(),
		Timestamp: time.Now().UnixMilli(),
	}
}

type snapshot struct {
	balances   map[string]*big.Int
	staked     map[string]*big.Int
	allowances map[string]*big.Int
}

func (g *Gateway) snapshotLocked() snapshot {
	return snapshot{
		balances:   copyAmounts(g.balances),
		staked:     copyAmounts(g.staked),
		allowances: copyAmounts(g.allowances),
	}
}

func (g *Gateway) restoreLocked(s snapshot) {
	g.balances = copyAmounts(s.balances)
	g.staked = copyAmounts(s.staked)
	g.allowances = copyAmounts(s.allowances)
}

func copyAmounts(m map[string]*big.Int) map[string]*big.Int {
	out := make(map[string]*big.Int, len(m))
	for k, v := range m {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

func pairKey(tokenA, tokenB string, stable bool) string {
	a, b := strings.ToLower(tokenA), strings.ToLower(tokenB)
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s|%s|%t", a, b, stable)
}
