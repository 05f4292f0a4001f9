package discovery

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"base-lp-agent/internal/ledger"
	"base-lp-agent/internal/ledger/memory"
)

const (
	tokenWETH    = "0xweth"
	tokenVirtual = "0xvirtual"
)

func reserves() ledger.Reserves {
	return ledger.Reserves{
		ReserveA:    big.NewInt(1_000),
		ReserveB:    big.NewInt(2_000),
		TotalSupply: big.NewInt(500),
	}
}

func TestDiscover_PrefersVolatilePool(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.AddPool(tokenWETH, tokenVirtual, false, "0xpool-volatile", "0xgauge-v", reserves())
	gw.AddPool(tokenWETH, tokenVirtual, true, "0xpool-stable", "0xgauge-s", reserves())

	info, err := Discover(context.Background(), gw, tokenWETH, tokenVirtual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Address != "0xpool-volatile" {
		t.Errorf("expected volatile pool, got %s", info.Address)
	}
	if info.Stable {
		t.Error("expected Stable=false for volatile pool")
	}
	if info.GaugeAddress != "0xgauge-v" {
		t.Errorf("expected gauge 0xgauge-v, got %s", info.GaugeAddress)
	}
}

func TestDiscover_FallsBackToStablePool(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.AddPool(tokenWETH, tokenVirtual, true, "0xpool-stable", "0xgauge-s", reserves())

	info, err := Discover(context.Background(), gw, tokenWETH, tokenVirtual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Address != "0xpool-stable" {
		t.Errorf("expected stable pool, got %s", info.Address)
	}
	if !info.Stable {
		t.Error("expected Stable=true for stable pool")
	}
}

func TestDiscover_PoolNotFound(t *testing.T) {
	gw := memory.NewGateway("0xowner")

	_, err := Discover(context.Background(), gw, tokenWETH, tokenVirtual)
	if !errors.Is(err, ErrPoolNotFound) {
		t.Errorf("expected ErrPoolNotFound, got %v", err)
	}
}

func TestDiscover_MissingGaugeIsHardFailure(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.AddPool(tokenWETH, tokenVirtual, false, "0xpool-volatile", "", reserves())

	_, err := Discover(context.Background(), gw, tokenWETH, tokenVirtual)
	if !errors.Is(err, ErrNoGaugeForPool) {
		t.Errorf("expected ErrNoGaugeForPool, got %v", err)
	}
}

func TestDiscover_Idempotent(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.AddPool(tokenWETH, tokenVirtual, false, "0xpool-volatile", "0xgauge-v", reserves())

	first, err := Discover(context.Background(), gw, tokenWETH, tokenVirtual)
	if err != nil {
		t.Fatalf("first discover: %v", err)
	}
	second, err := Discover(context.Background(), gw, tokenWETH, tokenVirtual)
	if err != nil {
		t.Fatalf("second discover: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("discover not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestAllPoolsForPair(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.AddPool(tokenWETH, tokenVirtual, false, "0xpool-volatile", "0xgauge-v", reserves())
	gw.AddPool(tokenWETH, tokenVirtual, true, "0xpool-stable", "0xgauge-s", reserves())

	pools, err := AllPoolsForPair(context.Background(), gw, tokenWETH, tokenVirtual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"0xpool-volatile", "0xpool-stable"}
	if !reflect.DeepEqual(pools, want) {
		t.Errorf("expected %v, got %v", want, pools)
	}
}

func TestValidatePool(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.AddPool(tokenWETH, tokenVirtual, false, "0xpool-volatile", "0xgauge-v", reserves())

	ok, err := ValidatePool(context.Background(), gw, "0xpool-volatile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected pool with liquidity to validate")
	}

	ok, err = ValidatePool(context.Background(), gw, "0xunknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected unknown pool to be invalid")
	}
}
