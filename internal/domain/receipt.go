package domain

// PositionReceipt is the terminal record of a completed deposit flow.
// Created once on flow completion and never mutated.
type PositionReceipt struct {
	PositionID    string
	UserAddress   string
	DepositAmount string // base-asset units as requested
	LPTokens      string // liquidity tokens received
	StakedAmount  string // liquidity tokens staked in the gauge
	PoolAddress   string
	GaugeAddress  string
	Timestamp     int64 // Unix timestamp in milliseconds, flow start
	Steps         []StepResult
}

// WithdrawalReceipt is the terminal record of a completed withdraw flow.
type WithdrawalReceipt struct {
	WithdrawalID    string
	UserAddress     string
	WithdrawnAmount string // liquidity tokens unstaked
	ReturnedBase    string // final base-asset balance
	PoolAddress     string
	GaugeAddress    string
	Timestamp       int64
	Steps           []StepResult
}

// AgentStatus is a read-only snapshot of the agent for status queries.
type AgentStatus struct {
	Initialized    bool
	PoolDiscovered bool
	Pool           *PoolInfo
	Stats          OperationStats
}
