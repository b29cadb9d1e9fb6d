package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lp-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

var ErrNoPosition = errors.New("no futures position for symbol")

type PositionRisk struct {
	Symbol           string          `json:"symbol"`
	PositionSide     string          `json:"positionSide"`
	PositionAmt      decimal.Decimal `json:"positionAmt"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	MarkPrice        decimal.Decimal `json:"markPrice"`
	UnrealizedProfit decimal.Decimal `json:"unRealizedProfit"`
	LiquidationPrice decimal.Decimal `json:"liquidationPrice"`
	Notional         decimal.Decimal `json:"notional"`
	UpdateTime       int64           `json:"updateTime"`
}

type BookTicker struct {
	Symbol   string          `json:"symbol"`
	BidPrice decimal.Decimal `json:"bidPrice"`
	BidQty   decimal.Decimal `json:"bidQty"`
	AskPrice decimal.Decimal `json:"askPrice"`
	AskQty   decimal.Decimal `json:"askQty"`
	Time     int64           `json:"time"`
}

type FundingRate struct {
	Symbol      string          `json:"symbol"`
	FundingTime int64           `json:"fundingTime"`
	FundingRate decimal.Decimal `json:"fundingRate"`
	MarkPrice   decimal.Decimal `json:"markPrice"`
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderRequest is a LIMIT GTC order. Quantity and Price are sent verbatim.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Quantity      string
	Price         string
	ReduceOnly    bool
	ClientOrderID string
}

type OrderResponse struct {
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Status        string          `json:"status"`
	Side          string          `json:"side"`
	Price         decimal.Decimal `json:"price"`
	OrigQty       decimal.Decimal `json:"origQty"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	ReduceOnly    bool            `json:"reduceOnly"`
	UpdateTime    int64           `json:"updateTime"`
}

func (c *Client) PositionRisk(ctx context.Context, symbol string) ([]PositionRisk, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	var out []PositionRisk
	if err := c.signed(ctx, http.MethodGet, "/fapi/v3/positionRisk", params, &out); err != nil {
		return nil, fmt.Errorf("position risk: %w", err)
	}
	return out, nil
}

// FuturesHolding folds the symbol's position entries into one signed holding.
// Hedge-mode LONG and SHORT legs are summed.
func (c *Client) FuturesHolding(ctx context.Context, symbol string) (strategy.FuturesHolding, error) {
	entries, err := c.PositionRisk(ctx, symbol)
	if err != nil {
		return strategy.FuturesHolding{}, err
	}
	return HoldingFromRisk(symbol, entries)
}

func HoldingFromRisk(symbol string, entries []PositionRisk) (strategy.FuturesHolding, error) {
	var (
		holding strategy.FuturesHolding
		found   bool
	)
	for _, entry := range entries {
		if !strings.EqualFold(entry.Symbol, symbol) {
			continue
		}
		found = true
		holding.PositionAmt = holding.PositionAmt.Add(entry.PositionAmt)
		holding.UnrealizedPnL = holding.UnrealizedPnL.Add(entry.UnrealizedProfit)
		if entry.MarkPrice.IsPositive() {
			holding.MarkPrice = entry.MarkPrice
		}
		if entry.UpdateTime > holding.UpdateTime {
			holding.UpdateTime = entry.UpdateTime
		}
	}
	if !found {
		return strategy.FuturesHolding{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	return holding, nil
}

func (c *Client) BookTicker(ctx context.Context, symbol string) (BookTicker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var out BookTicker
	if err := c.public(ctx, "/fapi/v1/ticker/bookTicker", params, &out); err != nil {
		return BookTicker{}, fmt.Errorf("book ticker: %w", err)
	}
	return out, nil
}

func (c *Client) FundingRates(ctx context.Context, symbol string, limit int) ([]FundingRate, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out []FundingRate
	if err := c.public(ctx, "/fapi/v1/fundingRate", params, &out); err != nil {
		return nil, fmt.Errorf("funding rates: %w", err)
	}
	return out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (OrderResponse, error) {
	if order.Symbol == "" || order.Quantity == "" || order.Price == "" {
		return OrderResponse{}, errors.New("order symbol, quantity and price are required")
	}
	if order.Side != SideBuy && order.Side != SideSell {
		return OrderResponse{}, fmt.Errorf("invalid order side %q", order.Side)
	}
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", order.Quantity)
	params.Set("price", order.Price)
	if order.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if order.ClientOrderID != "" {
		params.Set("newClientOrderId", order.ClientOrderID)
	}
	var out OrderResponse
	if err := c.signed(ctx, http.MethodPost, "/fapi/v1/order", params, &out); err != nil {
		return OrderResponse{}, fmt.Errorf("place order: %w", err)
	}
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	if err := c.signed(ctx, http.MethodDelete, "/fapi/v1/order", params, nil); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

// QueryOrder looks an order up by client order id.
func (c *Client) QueryOrder(ctx context.Context, symbol, clientOrderID string) (OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)
	var out OrderResponse
	if err := c.signed(ctx, http.MethodGet, "/fapi/v1/order", params, &out); err != nil {
		return OrderResponse{}, fmt.Errorf("query order: %w", err)
	}
	return out, nil
}
