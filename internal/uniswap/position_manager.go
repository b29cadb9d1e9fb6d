package uniswap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Caller is the subset of the chain client used here.
type Caller interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Position is one LP NFT with its simulated exit amounts.
type Position struct {
	TokenID       *big.Int
	Token0        common.Address
	Token1        common.Address
	Fee           uint32
	TickLower     int32
	TickUpper     int32
	Liquidity     *big.Int
	Withdrawable0 *big.Int
	Withdrawable1 *big.Int
	Collectable0  *big.Int
	Collectable1  *big.Int
}

type decreaseLiquidityParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

var (
	maxUint128      = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	farDeadline     = new(big.Int).SetUint64(math.MaxUint64)
	maxPositionScan = uint64(1000)
)

type PositionManager struct {
	caller  Caller
	address common.Address
	log     *zap.Logger
}

func NewPositionManager(caller Caller, address common.Address, log *zap.Logger) *PositionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &PositionManager{caller: caller, address: address, log: log}
}

func (m *PositionManager) Address() common.Address {
	return m.address
}

// Positions reads every position NFT held by owner at one pinned block and simulates
// removing all liquidity and collecting all fees. Results are ordered by token id.
func (m *PositionManager) Positions(ctx context.Context, owner common.Address) ([]Position, uint64, error) {
	if m.caller == nil {
		return nil, 0, errors.New("chain caller is required")
	}
	blockNumber, err := m.caller.LatestBlockNumber(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("latest block: %w", err)
	}
	block := new(big.Int).SetUint64(blockNumber)

	values, err := m.call(ctx, owner, block, "balanceOf", owner)
	if err != nil {
		return nil, 0, err
	}
	balance, err := asBigInt(values[0])
	if err != nil {
		return nil, 0, fmt.Errorf("balanceOf: %w", err)
	}
	if !balance.IsUint64() || balance.Uint64() > maxPositionScan {
		return nil, 0, fmt.Errorf("owner holds too many positions: %s", balance)
	}

	count := balance.Uint64()
	positions := make([]Position, 0, count)
	for i := uint64(0); i < count; i++ {
		values, err := m.call(ctx, owner, block, "tokenOfOwnerByIndex", owner, new(big.Int).SetUint64(i))
		if err != nil {
			return nil, 0, err
		}
		tokenID, err := asBigInt(values[0])
		if err != nil {
			return nil, 0, fmt.Errorf("tokenOfOwnerByIndex: %w", err)
		}
		pos, err := m.readPosition(ctx, owner, block, tokenID)
		if err != nil {
			return nil, 0, err
		}
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].TokenID.Cmp(positions[j].TokenID) < 0
	})
	return positions, blockNumber, nil
}

func (m *PositionManager) readPosition(ctx context.Context, owner common.Address, block, tokenID *big.Int) (Position, error) {
	values, err := m.call(ctx, owner, block, "positions", tokenID)
	if err != nil {
		return Position{}, err
	}
	if len(values) < 8 {
		return Position{}, fmt.Errorf("positions(%s): unexpected output length %d", tokenID, len(values))
	}
	pos := Position{
		TokenID:       tokenID,
		Withdrawable0: new(big.Int),
		Withdrawable1: new(big.Int),
		Collectable0:  new(big.Int),
		Collectable1:  new(big.Int),
	}
	if pos.Token0, err = asAddress(values[2]); err != nil {
		return Position{}, fmt.Errorf("positions(%s) token0: %w", tokenID, err)
	}
	if pos.Token1, err = asAddress(values[3]); err != nil {
		return Position{}, fmt.Errorf("positions(%s) token1: %w", tokenID, err)
	}
	if fee, err := asBigInt(values[4]); err == nil {
		pos.Fee = uint32(fee.Uint64())
	}
	if lower, err := asBigInt(values[5]); err == nil {
		pos.TickLower = int32(lower.Int64())
	}
	if upper, err := asBigInt(values[6]); err == nil {
		pos.TickUpper = int32(upper.Int64())
	}
	if pos.Liquidity, err = asBigInt(values[7]); err != nil {
		return Position{}, fmt.Errorf("positions(%s) liquidity: %w", tokenID, err)
	}

	if pos.Liquidity.Sign() > 0 {
		params := decreaseLiquidityParams{
			TokenId:    tokenID,
			Liquidity:  pos.Liquidity,
			Amount0Min: new(big.Int),
			Amount1Min: new(big.Int),
			Deadline:   farDeadline,
		}
		amount0, amount1, err := m.simulatePair(ctx, owner, block, "decreaseLiquidity", params)
		if err != nil {
			// A funded position without exit amounts would read as empty.
			return Position{}, fmt.Errorf("position %s: %w", tokenID, err)
		}
		pos.Withdrawable0, pos.Withdrawable1 = amount0, amount1
	}

	collect := collectParams{
		TokenId:    tokenID,
		Recipient:  owner,
		Amount0Max: maxUint128,
		Amount1Max: maxUint128,
	}
	if amount0, amount1, err := m.simulatePair(ctx, owner, block, "collect", collect); err == nil {
		pos.Collectable0, pos.Collectable1 = amount0, amount1
	} else {
		m.log.Warn("collect simulation failed; fees counted as zero", zap.String("token_id", tokenID.String()), zap.Error(err))
	}
	return pos, nil
}

func (m *PositionManager) simulatePair(ctx context.Context, owner common.Address, block *big.Int, method string, params interface{}) (*big.Int, *big.Int, error) {
	values, err := m.call(ctx, owner, block, method, params)
	if err != nil {
		return nil, nil, err
	}
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("%s: unexpected output length %d", method, len(values))
	}
	amount0, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, err
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func (m *PositionManager) call(ctx context.Context, from common.Address, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := m.address
	msg := ethereum.CallMsg{From: from, To: &to, Data: data}
	resp, err := m.caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: empty output", method)
	}
	return values, nil
}

func asBigInt(v interface{}) (*big.Int, error) {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return nil, errors.New("nil big.Int")
		}
		return val, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint64:
		return new(big.Int).SetUint64(val), nil
	default:
		return nil, fmt.Errorf("unexpected integer type %T", v)
	}
}

func asAddress(v interface{}) (common.Address, error) {
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected address type %T", v)
	}
	return addr, nil
}
