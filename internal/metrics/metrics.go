package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	Ticks               Counter
	TicksSkipped        Counter
	HedgesPlaced        Counter
	HedgesFailed        Counter
	HedgesCancelled     Counter
	NotificationsSent   Counter
	NotificationsFailed Counter

	BaseDelta               Gauge
	BaseDeltaRatio          Gauge
	TotalValueUSDT          Gauge
	AMMTotalValueUSDT       Gauge
	AMMCollectableValueUSDT Gauge
	FuturesPosition         Gauge
	MarkPrice               Gauge
	FundingRate             Gauge
	LastTickUnix            Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		Ticks:                   n,
		TicksSkipped:            n,
		HedgesPlaced:            n,
		HedgesFailed:            n,
		HedgesCancelled:         n,
		NotificationsSent:       n,
		NotificationsFailed:     n,
		BaseDelta:               g,
		BaseDeltaRatio:          g,
		TotalValueUSDT:          g,
		AMMTotalValueUSDT:       g,
		AMMCollectableValueUSDT: g,
		FuturesPosition:         g,
		MarkPrice:               g,
		FundingRate:             g,
		LastTickUnix:            g,
	}
}
