package domain

import "math/big"

// PoolReserves is a point-in-time snapshot of the pool's reserves.
type PoolReserves struct {
	ReserveA    *big.Int
	ReserveB    *big.Int
	TotalSupply *big.Int
}

// PoolInfo describes the discovered liquidity pool and its staking gauge.
// It is owned by the agent session: discovered once at initialization,
// refreshed only by explicit re-discovery, and treated as immutable by
// every component for the duration of a flow.
type PoolInfo struct {
	Address      string
	TokenA       string
	TokenB       string
	Stable       bool // stable vs volatile pool variant
	GaugeAddress string
	Reserves     PoolReserves
}
