package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
)

// multicallCall mirrors the Multicall3 aggregate3 input tuple.
type multicallCall struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// multicallResult mirrors the aggregate3 output tuple.
type multicallResult struct {
	Success    bool
	ReturnData []byte
}

// SubmitBatch packs the sub-calls into one Multicall3 aggregate3
// transaction. Best-effort batches mark each sub-call allowFailure and
// report per-call outcomes from a pre-submission simulation; an
// all-or-nothing batch reverts as a unit, so the receipt settles every
// sub-call at once.
func (g *Gateway) SubmitBatch(ctx context.Context, calls []ledger.Call, mode ledger.BatchMode) ([]domain.StepResult, error) {
	if !g.hasBatch {
		return nil, ledger.ErrUnsupportedBatch
	}
	if len(calls) == 0 {
		return nil, nil
	}

	allowFailure := mode == ledger.BestEffort
	packed := make([]multicallCall, 0, len(calls))
	for i, call := range calls {
		target, data, err := g.encodeCall(call)
		if err != nil {
			return nil, fmt.Errorf("evm: batch call %d: %w", i, err)
		}
		packed = append(packed, multicallCall{
			Target:       target,
			AllowFailure: allowFailure,
			CallData:     data,
		})
	}

	data, err := multicallABI.Pack("aggregate3", packed)
	if err != nil {
		return nil, fmt.Errorf("evm: pack aggregate3: %w", err)
	}

	// The receipt alone cannot attribute best-effort sub-call
	// failures, so simulate first and carry those outcomes over.
	perCall := make([]bool, len(calls))
	for i := range perCall {
		perCall[i] = true
	}
	if allowFailure {
		perCall, err = g.simulateBatch(ctx, data, len(calls))
		if err != nil {
			return nil, err
		}
	}

	res, err := g.submit(ctx, domain.OpBatch, g.multicall, data, gasMulticall)
	if err != nil {
		if res.TxHash != "" && mode == ledger.AllOrNothing {
			// Reverted as a unit; no sub-call took effect.
			return nil, fmt.Errorf("batch reverted: %w", err)
		}
		return nil, err
	}

	gasShare := res.GasUsed / uint64(len(calls))
	results := make([]domain.StepResult, 0, len(calls))
	for i, call := range calls {
		sub := domain.StepResult{
			Op:        call.Op,
			Success:   perCall[i],
			TxHash:    res.TxHash,
			GasUsed:   gasShare,
			Timestamp: time.Now().UnixMilli(),
		}
		if !sub.Success {
			sub.Err = "sub-call reverted"
		}
		results = append(results, sub)
	}
	g.logger.Printf("[evm] batch confirmed mode=%s calls=%d tx=%s", mode, len(calls), res.TxHash)
	return results, nil
}

// simulateBatch runs the aggregate3 calldata as an eth_call and decodes
// the per-call success flags.
func (g *Gateway) simulateBatch(ctx context.Context, data []byte, n int) ([]bool, error) {
	out, err := g.client.CallContract(ctx, ethereum.CallMsg{
		From: g.owner,
		To:   &g.multicall,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: simulate batch: %w: %v", ledger.ErrNetwork, err)
	}
	vals, err := multicallABI.Unpack("aggregate3", out)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack aggregate3: %w", err)
	}
	decoded := *gethabi.ConvertType(vals[0], new([]multicallResult)).(*[]multicallResult)
	if len(decoded) != n {
		return nil, fmt.Errorf("evm: aggregate3 returned %d results, want %d", len(decoded), n)
	}
	flags := make([]bool, n)
	for i, r := range decoded {
		flags[i] = r.Success
	}
	return flags, nil
}

// encodeCall produces the target contract and calldata for one batched
// sub-call.
func (g *Gateway) encodeCall(call ledger.Call) (common.Address, []byte, error) {
	switch call.Kind {
	case ledger.CallApprove:
		data, err := erc20ABI.Pack("approve", common.HexToAddress(call.Spender), call.Amount)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("pack approve: %w", err)
		}
		return common.HexToAddress(call.Token), data, nil
	case ledger.CallSwap:
		p := call.Swap
		if p == nil {
			return common.Address{}, nil, fmt.Errorf("swap call without params")
		}
		data, err := routerABI.Pack("swapExactTokensForTokens",
			p.AmountIn, p.MinOut, abiRoutes(p.Route), g.owner, big.NewInt(p.Deadline))
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("pack swap: %w", err)
		}
		return g.router, data, nil
	default:
		return common.Address{}, nil, fmt.Errorf("unknown call kind %q", call.Kind)
	}
}
