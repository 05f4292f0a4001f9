package saga

import (
	"fmt"
	"time"

	"base-lp-agent/internal/domain"
)

// flowState names one node of a flow's state machine.
type flowState string

const (
	stateInit            flowState = "init"
	stateCheckBalance    flowState = "check_balance"
	stateSwapA           flowState = "swap_a"
	stateSwapB           flowState = "swap_b"
	stateAddLiquidity    flowState = "add_liquidity"
	stateStake           flowState = "stake"
	stateCheckStaked     flowState = "check_staked"
	stateUnstake         flowState = "unstake"
	stateRemoveLiquidity flowState = "remove_liquidity"
	stateLiquidateA      flowState = "liquidate_a"
	stateLiquidateB      flowState = "liquidate_b"
	stateCompleted       flowState = "completed"
	stateFailed          flowState = "failed"
)

// transitions is the legal successor set per flow kind. Every state may
// also transition to stateFailed; that edge is implicit.
var transitions = map[domain.FlowKind]map[flowState][]flowState{
	domain.FlowDeposit: {
		stateInit:         {stateCheckBalance},
		stateCheckBalance: {stateSwapA},
		stateSwapA:        {stateSwapB},
		stateSwapB:        {stateAddLiquidity},
		stateAddLiquidity: {stateStake},
		stateStake:        {stateCompleted},
	},
	domain.FlowWithdraw: {
		stateInit:        {stateCheckStaked},
		stateCheckStaked: {stateUnstake},
		stateUnstake:     {stateRemoveLiquidity},
		// Liquidation states are optional: a zero balance skips them.
		stateRemoveLiquidity: {stateLiquidateA, stateLiquidateB, stateCompleted},
		stateLiquidateA:      {stateLiquidateB, stateCompleted},
		stateLiquidateB:      {stateCompleted},
	},
}

// session is the per-flow execution record: current state, accumulated
// step results and whether any mutating call has been submitted.
type session struct {
	id        string
	flow      domain.FlowKind
	state     flowState
	steps     []domain.StepResult
	mutated   bool
	startedAt time.Time
}

func newSession(id string, flow domain.FlowKind) *session {
	return &session{id: id, flow: flow, state: stateInit, startedAt: time.Now()}
}

// advance moves the session to next, enforcing the transition table.
// An illegal transition is an orchestrator bug, not a runtime condition.
func (s *session) advance(next flowState) error {
	if next == stateFailed {
		s.state = stateFailed
		return nil
	}
	for _, legal := range transitions[s.flow][s.state] {
		if legal == next {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal %s transition %s → %s", s.flow, s.state, next)
}

// record appends a successful step result.
func (s *session) record(results ...domain.StepResult) {
	s.steps = append(s.steps, results...)
}
