package exec

import (
	"context"
	"errors"
	"fmt"

	"lp-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoQuote = errors.New("no usable best bid/ask")

// Quote is the top of the book for the hedged symbol.
type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

type Quoter interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// OrderManager places, looks up and cancels orders. *Executor implements it.
type OrderManager interface {
	PlaceOrder(ctx context.Context, order Order) (string, error)
	QueryOrder(ctx context.Context, symbol, clientOrderID string) (OrderState, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// HedgeResult describes the order sent for one hedge action.
type HedgeResult struct {
	Order   Order
	OrderID string
}

// Hedger turns hedge actions into resting limit orders. Opening a short sells at
// the best ask; closing buys reduce-only at the best bid.
type Hedger struct {
	orders OrderManager
	quotes Quoter
	log    *zap.Logger
}

func NewHedger(orders OrderManager, quotes Quoter, log *zap.Logger) *Hedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hedger{orders: orders, quotes: quotes, log: log}
}

// BuildOrder prices an action against a quote. None yields ok=false.
func BuildOrder(action strategy.HedgeAction, quote Quote, clientOrderID string) (Order, bool, error) {
	order := Order{
		Symbol:        action.Symbol,
		Quantity:      action.Quantity,
		ClientOrderID: clientOrderID,
	}
	switch action.Kind {
	case strategy.ActionNone, "":
		return Order{}, false, nil
	case strategy.ActionOpenSell:
		if !quote.Ask.IsPositive() {
			return Order{}, false, fmt.Errorf("%w: ask=%s", ErrNoQuote, quote.Ask)
		}
		order.Side = Sell
		order.Price = quote.Ask.String()
	case strategy.ActionCloseSell:
		if !quote.Bid.IsPositive() {
			return Order{}, false, fmt.Errorf("%w: bid=%s", ErrNoQuote, quote.Bid)
		}
		order.Side = Buy
		order.Price = quote.Bid.String()
		order.ReduceOnly = true
	default:
		return Order{}, false, fmt.Errorf("unknown hedge action %q", action.Kind)
	}
	qty, err := decimal.NewFromString(action.Quantity)
	if err != nil {
		return Order{}, false, fmt.Errorf("hedge quantity %q: %w", action.Quantity, err)
	}
	if !qty.IsPositive() {
		return Order{}, false, fmt.Errorf("hedge quantity must be positive, got %s", action.Quantity)
	}
	return order, true, nil
}

// Execute places the order for action. A None action returns (nil, nil).
func (h *Hedger) Execute(ctx context.Context, action strategy.HedgeAction, clientOrderID string) (*HedgeResult, error) {
	if action.IsNone() {
		return nil, nil
	}
	if h.orders == nil || h.quotes == nil {
		return nil, errors.New("hedger is not configured")
	}
	quote, err := h.quotes.Quote(ctx, action.Symbol)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", action.Symbol, err)
	}
	order, ok, err := BuildOrder(action, quote, clientOrderID)
	if err != nil || !ok {
		return nil, err
	}
	orderID, err := h.orders.PlaceOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("place %s %s: %w", order.Side, order.Quantity, err)
	}
	h.log.Info("hedge order placed",
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("quantity", order.Quantity),
		zap.String("price", order.Price),
		zap.Bool("reduce_only", order.ReduceOnly),
		zap.String("order_id", orderID),
	)
	return &HedgeResult{Order: order, OrderID: orderID}, nil
}

// CancelIfOpen cancels the order placed under clientOrderID while it is still
// resting and reports whether it did. Unknown orders count as settled.
func (h *Hedger) CancelIfOpen(ctx context.Context, symbol, clientOrderID string) (bool, error) {
	if clientOrderID == "" {
		return false, nil
	}
	if h.orders == nil {
		return false, errors.New("hedger is not configured")
	}
	st, err := h.orders.QueryOrder(ctx, symbol, clientOrderID)
	if errors.Is(err, ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query %s: %w", clientOrderID, err)
	}
	if !st.Open() {
		return false, nil
	}
	if err := h.orders.CancelOrder(ctx, symbol, st.OrderID); err != nil {
		return false, fmt.Errorf("cancel %s: %w", clientOrderID, err)
	}
	h.log.Info("resting hedge order cancelled",
		zap.String("symbol", symbol),
		zap.String("cloid", clientOrderID),
		zap.String("order_id", st.OrderID),
		zap.String("status", st.Status),
		zap.String("executed_qty", st.ExecutedQty),
	)
	return true, nil
}
