package uniswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"lp-hedge-bot/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoMatchingPosition = errors.New("no LP position for the configured pair")

const DefaultTokenDecimals = 18

// Source turns the owner's LP NFTs into a strategy.AmmHolding.
type Source struct {
	manager      *PositionManager
	owner        common.Address
	pair         Pair
	baseDecimals int32
	usdtDecimals int32
	log          *zap.Logger
}

func NewSource(manager *PositionManager, owner common.Address, pair Pair, baseDecimals, usdtDecimals int32, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	if baseDecimals <= 0 {
		baseDecimals = DefaultTokenDecimals
	}
	if usdtDecimals <= 0 {
		usdtDecimals = DefaultTokenDecimals
	}
	return &Source{
		manager:      manager,
		owner:        owner,
		pair:         pair,
		baseDecimals: baseDecimals,
		usdtDecimals: usdtDecimals,
		log:          log,
	}
}

func (s *Source) Holding(ctx context.Context) (strategy.AmmHolding, error) {
	if s == nil || s.manager == nil {
		return strategy.AmmHolding{}, errors.New("position source is not configured")
	}
	positions, block, err := s.manager.Positions(ctx, s.owner)
	if err != nil {
		return strategy.AmmHolding{}, err
	}
	holding, matched, err := AggregateHolding(positions, block, s.pair, s.baseDecimals, s.usdtDecimals)
	if err != nil {
		return strategy.AmmHolding{}, err
	}
	s.log.Debug("amm holding",
		zap.Uint64("block", block),
		zap.Int("positions", len(positions)),
		zap.Int("matched", matched),
		zap.String("base", holding.BaseAmount.String()),
		zap.String("usdt", holding.USDTAmount.String()),
	)
	return holding, nil
}

// AggregateHolding sums every position on the configured pair. Positions on other
// pairs are skipped; if none match, ErrNoMatchingPosition is returned.
func AggregateHolding(positions []Position, block uint64, pair Pair, baseDecimals, usdtDecimals int32) (strategy.AmmHolding, int, error) {
	base, usdt := new(big.Int), new(big.Int)
	feeBase, feeUSDT := new(big.Int), new(big.Int)
	matched := 0
	for _, pos := range positions {
		if !pair.Matches(pos.Token0, pos.Token1) {
			continue
		}
		withdraw, err := OrientAmounts(pair, pos.Token0, pos.Token1, RawAmounts{Amount0: pos.Withdrawable0, Amount1: pos.Withdrawable1})
		if err != nil {
			return strategy.AmmHolding{}, 0, err
		}
		fees, err := OrientAmounts(pair, pos.Token0, pos.Token1, RawAmounts{Amount0: pos.Collectable0, Amount1: pos.Collectable1})
		if err != nil {
			return strategy.AmmHolding{}, 0, err
		}
		base.Add(base, withdraw.Base)
		usdt.Add(usdt, withdraw.USDT)
		feeBase.Add(feeBase, fees.Base)
		feeUSDT.Add(feeUSDT, fees.USDT)
		matched++
	}
	if matched == 0 {
		return strategy.AmmHolding{}, 0, fmt.Errorf("%w: base=%s usdt=%s", ErrNoMatchingPosition, pair.Base.Hex(), pair.USDT.Hex())
	}
	return strategy.AmmHolding{
		BaseAmount:      ToDecimal(base, baseDecimals),
		USDTAmount:      ToDecimal(usdt, usdtDecimals),
		CollectableBase: ToDecimal(feeBase, baseDecimals),
		CollectableUSDT: ToDecimal(feeUSDT, usdtDecimals),
		BlockNumber:     block,
	}, matched, nil
}

// ToDecimal scales an on-chain integer amount by 10^-decimals without loss.
func ToDecimal(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
