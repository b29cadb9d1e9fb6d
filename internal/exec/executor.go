package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lp-hedge-bot/internal/state"

	"go.uber.org/zap"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order is a LIMIT GTC futures order. Quantity and Price are already formatted
// to the venue's precision.
type Order struct {
	Symbol        string
	Side          Side
	Quantity      string
	Price         string
	ReduceOnly    bool
	ClientOrderID string
}

// ErrOrderNotFound is returned by QueryOrder when the venue has no order for
// the client order id. It is never retried.
var ErrOrderNotFound = errors.New("order not found")

// OrderState is the venue's view of a placed order.
type OrderState struct {
	OrderID     string
	Status      string
	ExecutedQty string
}

// Open reports whether the order is still resting on the book.
func (s OrderState) Open() bool {
	return s.Status == "NEW" || s.Status == "PARTIALLY_FILLED"
}

type RestClient interface {
	PlaceOrder(ctx context.Context, order Order) (string, error)
	QueryOrder(ctx context.Context, symbol, clientOrderID string) (OrderState, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

type Executor struct {
	rest      RestClient
	store     state.Store
	log       *zap.Logger
	attempts  int
	backoff   time.Duration
	retryable func(error) bool

	mu    sync.Mutex
	cache map[string]string
}

func New(rest RestClient, store state.Store, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		rest:     rest,
		store:    store,
		log:      log,
		attempts: 5,
		backoff:  200 * time.Millisecond,
		cache:    make(map[string]string),
	}
}

// SetRetryPolicy marks which errors are worth another attempt. Errors for which
// fn returns false are returned immediately.
func (e *Executor) SetRetryPolicy(fn func(error) bool) {
	e.retryable = fn
}

func (e *Executor) SetBackoff(initial time.Duration, attempts int) {
	if initial > 0 {
		e.backoff = initial
	}
	if attempts > 0 {
		e.attempts = attempts
	}
}

func (e *Executor) PlaceOrder(ctx context.Context, order Order) (string, error) {
	if order.ClientOrderID == "" {
		return e.placeWithRetry(ctx, order)
	}
	cacheKey := "cloid:" + order.ClientOrderID
	e.mu.Lock()
	if oid, ok := e.cache[cacheKey]; ok {
		e.mu.Unlock()
		return oid, nil
	}
	e.mu.Unlock()
	if e.store != nil {
		if oid, ok, err := e.store.Get(ctx, cacheKey); err != nil {
			return "", err
		} else if ok {
			e.mu.Lock()
			e.cache[cacheKey] = oid
			e.mu.Unlock()
			e.log.Info("order already placed", zap.String("cloid", order.ClientOrderID), zap.String("order_id", oid))
			return oid, nil
		}
	}
	orderID, err := e.placeWithRetry(ctx, order)
	if err != nil {
		return "", err
	}
	if e.store != nil {
		if err := e.store.Set(ctx, cacheKey, orderID); err != nil {
			e.log.Warn("failed to persist order id", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.cache[cacheKey] = orderID
	e.mu.Unlock()
	return orderID, nil
}

func (e *Executor) QueryOrder(ctx context.Context, symbol, clientOrderID string) (OrderState, error) {
	var st OrderState
	err := e.retry(ctx, func() error {
		var err error
		st, err = e.rest.QueryOrder(ctx, symbol, clientOrderID)
		return err
	})
	return st, err
}

func (e *Executor) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return e.retry(ctx, func() error {
		return e.rest.CancelOrder(ctx, symbol, orderID)
	})
}

func (e *Executor) placeWithRetry(ctx context.Context, order Order) (string, error) {
	var orderID string
	err := e.retry(ctx, func() error {
		var err error
		orderID, err = e.rest.PlaceOrder(ctx, order)
		return err
	})
	if err != nil {
		return "", err
	}
	if orderID == "" {
		return "", errors.New("empty order id")
	}
	return orderID, nil
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := e.backoff
	for attempt := 0; attempt < e.attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrOrderNotFound) || (e.retryable != nil && !e.retryable(err)) {
			return err
		}
		if attempt == e.attempts-1 {
			return fmt.Errorf("retry failed: %w", err)
		}
		e.log.Debug("retrying order request", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}
