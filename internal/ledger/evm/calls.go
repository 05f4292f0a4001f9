package evm

import (
	"fmt"
	"math/big"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"base-lp-agent/internal/ledger"
)

// abiRoute mirrors the router's route tuple for argument packing.
type abiRoute struct {
	From   common.Address
	To     common.Address
	Stable bool
}

func abiRoutes(r ledger.Route) []abiRoute {
	return []abiRoute{{
		From:   common.HexToAddress(r.From),
		To:     common.HexToAddress(r.To),
		Stable: r.Stable,
	}}
}

// callTarget pairs a parsed ABI with the method and arguments for one
// eth_call.
type callTarget struct {
	abi    gethabi.ABI
	method string
	args   []interface{}
}

func target(a gethabi.ABI, method string, args ...interface{}) *callTarget {
	return &callTarget{abi: a, method: method, args: args}
}

// assign copies one unpacked ABI output into the caller's destination.
func assign(dst, src interface{}) error {
	switch d := dst.(type) {
	case *common.Address:
		v, ok := src.(common.Address)
		if !ok {
			return fmt.Errorf("expected address, got %T", src)
		}
		*d = v
	case **big.Int:
		v, ok := src.(*big.Int)
		if !ok {
			return fmt.Errorf("expected uint256, got %T", src)
		}
		*d = v
	case *[]*big.Int:
		v, ok := src.([]*big.Int)
		if !ok {
			return fmt.Errorf("expected uint256[], got %T", src)
		}
		*d = v
	case *bool:
		v, ok := src.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", src)
		}
		*d = v
	default:
		return fmt.Errorf("unsupported destination %T", dst)
	}
	return nil
}
