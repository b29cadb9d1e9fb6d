package uniswap

import (
	"errors"
	"math/big"
	"testing"
)

func TestOrientAmounts(t *testing.T) {
	pair := Pair{Base: baseToken, USDT: usdtToken}
	raw := RawAmounts{Amount0: big.NewInt(10), Amount1: big.NewInt(20)}

	got, err := OrientAmounts(pair, baseToken, usdtToken, raw)
	if err != nil {
		t.Fatalf("orient: %v", err)
	}
	if got.Base.Int64() != 10 || got.USDT.Int64() != 20 {
		t.Fatalf("base-first: unexpected %s/%s", got.Base, got.USDT)
	}

	got, err = OrientAmounts(pair, usdtToken, baseToken, raw)
	if err != nil {
		t.Fatalf("orient: %v", err)
	}
	if got.Base.Int64() != 20 || got.USDT.Int64() != 10 {
		t.Fatalf("usdt-first: unexpected %s/%s", got.Base, got.USDT)
	}

	if _, err := OrientAmounts(pair, otherToken, usdtToken, raw); !errors.Is(err, ErrUnsupportedPair) {
		t.Fatalf("expected ErrUnsupportedPair, got %v", err)
	}
}

func TestOrientAmountsNilIsZero(t *testing.T) {
	got, err := OrientAmounts(Pair{Base: baseToken, USDT: usdtToken}, baseToken, usdtToken, RawAmounts{})
	if err != nil {
		t.Fatalf("orient: %v", err)
	}
	if got.Base.Sign() != 0 || got.USDT.Sign() != 0 {
		t.Fatalf("expected zeros, got %s/%s", got.Base, got.USDT)
	}
}

func TestPositionManagerABIHasMethods(t *testing.T) {
	parsed, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	for _, name := range []string{"balanceOf", "tokenOfOwnerByIndex", "positions", "decreaseLiquidity", "collect"} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Fatalf("missing method %s", name)
		}
	}
}
