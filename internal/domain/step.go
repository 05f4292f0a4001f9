package domain

// StepOp names one atomic sub-operation within a flow.
type StepOp string

const (
	OpCheckBalance    StepOp = "check_balance"
	OpApprove         StepOp = "approve"
	OpSwapBaseToA     StepOp = "swap_base_to_a"
	OpSwapBaseToB     StepOp = "swap_base_to_b"
	OpAddLiquidity    StepOp = "add_liquidity"
	OpStake           StepOp = "stake"
	OpCheckStaked     StepOp = "check_staked"
	OpUnstake         StepOp = "unstake"
	OpRemoveLiquidity StepOp = "remove_liquidity"
	OpSwapAToBase     StepOp = "swap_a_to_base"
	OpSwapBToBase     StepOp = "swap_b_to_base"
	OpBatch           StepOp = "batch"
)

// StepResult records the outcome of one step. Immutable once produced;
// a flow appends its results in execution order.
type StepResult struct {
	Op        StepOp
	Success   bool
	TxHash    string // external transaction reference, empty if never submitted
	GasUsed   uint64
	Err       string // empty on success
	Timestamp int64  // Unix timestamp in milliseconds
}

// StepEvent is the analytics projection of one step, keyed to the flow
// that produced it.
type StepEvent struct {
	FlowID    string // receipt identifier of the owning flow
	Flow      FlowKind
	Op        StepOp
	Success   bool
	TxHash    string
	GasUsed   uint64
	LatencyMs int64
	Timestamp int64 // Unix timestamp in milliseconds
}
