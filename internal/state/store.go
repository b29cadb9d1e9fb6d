package state

import (
	"context"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// HedgeRecord is one hedge attempt, successful or not.
type HedgeRecord struct {
	Time          time.Time
	Symbol        string
	Kind          string
	Side          string
	Quantity      string
	Price         string
	OrderID       string
	ClientOrderID string
	BlockNumber   uint64
	DryRun        bool
	Error         string
}

type HedgeLog interface {
	RecordHedge(ctx context.Context, rec HedgeRecord) error
	RecentHedges(ctx context.Context, limit int) ([]HedgeRecord, error)
}
