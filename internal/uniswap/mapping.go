package uniswap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnsupportedPair = errors.New("position is not the configured BASE/USDT pair")

// Pair identifies the hedged tokens on chain.
type Pair struct {
	Base common.Address
	USDT common.Address
}

// RawAmounts are token0/token1 amounts in on-chain integer units.
type RawAmounts struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// Oriented are the same amounts keyed by role instead of token order.
type Oriented struct {
	Base *big.Int
	USDT *big.Int
}

// OrientAmounts maps token0/token1 amounts onto BASE/USDT by address. Any other
// token pair yields ErrUnsupportedPair.
func OrientAmounts(pair Pair, token0, token1 common.Address, raw RawAmounts) (Oriented, error) {
	switch {
	case token0 == pair.Base && token1 == pair.USDT:
		return Oriented{Base: orZero(raw.Amount0), USDT: orZero(raw.Amount1)}, nil
	case token0 == pair.USDT && token1 == pair.Base:
		return Oriented{Base: orZero(raw.Amount1), USDT: orZero(raw.Amount0)}, nil
	default:
		return Oriented{}, fmt.Errorf("%w: token0=%s token1=%s", ErrUnsupportedPair, token0.Hex(), token1.Hex())
	}
}

func (p Pair) Matches(token0, token1 common.Address) bool {
	return (token0 == p.Base && token1 == p.USDT) || (token0 == p.USDT && token1 == p.Base)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
