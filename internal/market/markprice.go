package market

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MarkPrice is the latest markPriceUpdate for one symbol.
type MarkPrice struct {
	Symbol          string
	MarkPrice       decimal.Decimal
	IndexPrice      decimal.Decimal
	FundingRate     decimal.Decimal
	NextFundingTime time.Time
	EventTime       time.Time
	ReceivedAt      time.Time
}

type markPriceEvent struct {
	Event                string          `json:"e"`
	EventTime            int64           `json:"E"`
	Symbol               string          `json:"s"`
	MarkPrice            decimal.Decimal `json:"p"`
	IndexPrice           decimal.Decimal `json:"i"`
	EstimatedSettlePrice decimal.Decimal `json:"P"`
	FundingRate          decimal.Decimal `json:"r"`
	NextFundingTime      int64           `json:"T"`
}

type combinedEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Stream is the websocket client the feed runs on.
type Stream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, streams ...string) error
	Run(ctx context.Context, handler func(json.RawMessage)) error
}

// MarkPriceFeed keeps the latest mark price and funding rate per symbol.
type MarkPriceFeed struct {
	stream Stream
	log    *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	prices map[string]MarkPrice
}

func NewMarkPriceFeed(stream Stream, log *zap.Logger) *MarkPriceFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &MarkPriceFeed{
		stream: stream,
		log:    log,
		now:    time.Now,
		prices: make(map[string]MarkPrice),
	}
}

func StreamName(symbol string) string {
	return strings.ToLower(symbol) + "@markPrice@1s"
}

// Start connects, subscribes to each symbol and runs the stream in the background.
func (f *MarkPriceFeed) Start(ctx context.Context, symbols ...string) error {
	if f.stream == nil {
		return nil
	}
	if err := f.stream.Connect(ctx); err != nil {
		return err
	}
	streams := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		streams = append(streams, StreamName(symbol))
	}
	if err := f.stream.Subscribe(ctx, streams...); err != nil {
		return err
	}
	go func() {
		if err := f.stream.Run(ctx, f.HandleMessage); err != nil && ctx.Err() == nil {
			f.log.Warn("mark price stream stopped", zap.Error(err))
		}
	}()
	return nil
}

func (f *MarkPriceFeed) HandleMessage(msg json.RawMessage) {
	var wrapped combinedEvent
	if err := json.Unmarshal(msg, &wrapped); err == nil && len(wrapped.Data) > 0 {
		msg = wrapped.Data
	}
	var event markPriceEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		f.log.Debug("ws decode error", zap.Error(err))
		return
	}
	if event.Event != "markPriceUpdate" || event.Symbol == "" {
		return
	}
	update := MarkPrice{
		Symbol:      strings.ToUpper(event.Symbol),
		MarkPrice:   event.MarkPrice,
		IndexPrice:  event.IndexPrice,
		FundingRate: event.FundingRate,
		ReceivedAt:  f.now().UTC(),
	}
	if event.EventTime > 0 {
		update.EventTime = time.UnixMilli(event.EventTime).UTC()
	}
	if event.NextFundingTime > 0 {
		update.NextFundingTime = time.UnixMilli(event.NextFundingTime).UTC()
	}
	f.mu.Lock()
	f.prices[update.Symbol] = update
	f.mu.Unlock()
}

func (f *MarkPriceFeed) Latest(symbol string) (MarkPrice, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[strings.ToUpper(symbol)]
	return price, ok
}

// Fresh returns the latest update when it was received within maxAge.
func (f *MarkPriceFeed) Fresh(symbol string, maxAge time.Duration) (MarkPrice, bool) {
	price, ok := f.Latest(symbol)
	if !ok {
		return MarkPrice{}, false
	}
	if maxAge > 0 && f.now().Sub(price.ReceivedAt) > maxAge {
		return MarkPrice{}, false
	}
	return price, true
}
