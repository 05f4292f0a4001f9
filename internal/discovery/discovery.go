// Package discovery resolves the liquidity pool and staking gauge for a
// trading pair. Pool variants are tried in a fixed priority order:
// volatile first, then stable.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
)

var (
	// ErrPoolNotFound is returned when neither pool variant exists for
	// the pair.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrNoGaugeForPool is returned when the pool exists but has no
	// staking gauge. The workflow requires staking, so this is a hard
	// failure.
	ErrNoGaugeForPool = errors.New("no gauge for pool")
)

// variantOrder is the fixed search priority: volatile pools are
// preferred when present.
var variantOrder = []bool{false, true}

// Discover resolves the pool and gauge for a pair. Idempotent and
// side-effect free; safe to retry.
func Discover(ctx context.Context, reader ledger.Reader, tokenA, tokenB string) (*domain.PoolInfo, error) {
	var pool string
	var stable bool

	for _, variant := range variantOrder {
		addr, err := reader.PoolFor(ctx, tokenA, tokenB, variant)
		if err != nil {
			return nil, fmt.Errorf("query %s pool for %s/%s: %w", variantName(variant), tokenA, tokenB, err)
		}
		if addr != "" {
			pool, stable = addr, variant
			break
		}
	}
	if pool == "" {
		return nil, fmt.Errorf("%w: no pool for pair %s/%s", ErrPoolNotFound, tokenA, tokenB)
	}

	gauge, err := reader.GaugeFor(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("query gauge for pool %s: %w", pool, err)
	}
	if gauge == "" {
		return nil, fmt.Errorf("%w: pool %s", ErrNoGaugeForPool, pool)
	}

	state, err := reader.PoolState(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("read pool state %s: %w", pool, err)
	}

	return &domain.PoolInfo{
		Address:      pool,
		TokenA:       state.TokenA,
		TokenB:       state.TokenB,
		Stable:       stable,
		GaugeAddress: gauge,
		Reserves: domain.PoolReserves{
			ReserveA:    state.ReserveA,
			ReserveB:    state.ReserveB,
			TotalSupply: state.TotalSupply,
		},
	}, nil
}

// AllPoolsForPair returns every existing pool variant for a pair, in
// search priority order.
func AllPoolsForPair(ctx context.Context, reader ledger.Reader, tokenA, tokenB string) ([]string, error) {
	var pools []string
	for _, variant := range variantOrder {
		addr, err := reader.PoolFor(ctx, tokenA, tokenB, variant)
		if err != nil {
			return nil, fmt.Errorf("query %s pool for %s/%s: %w", variantName(variant), tokenA, tokenB, err)
		}
		if addr != "" {
			pools = append(pools, addr)
		}
	}
	return pools, nil
}

// ValidatePool reports whether a pool exists and holds liquidity.
func ValidatePool(ctx context.Context, reader ledger.Reader, pool string) (bool, error) {
	state, err := reader.PoolState(ctx, pool)
	if err != nil {
		// An unreadable pool counts as absent.
		return false, nil
	}
	return state.TotalSupply != nil && state.TotalSupply.Sign() > 0, nil
}

func variantName(stable bool) string {
	if stable {
		return "stable"
	}
	return "volatile"
}
