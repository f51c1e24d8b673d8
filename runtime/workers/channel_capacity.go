package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"
)

const (
	DefaultMetricInterval       = 10 * time.Second
	DefaultLowCapacityThreshold = 80
)

var _ contract.Worker = (*ChannelCapacityWorker)(nil)

// NamedQueue is a bounded queue whose fill level can be sampled.
type NamedQueue struct {
	Name     string
	Length   func() int
	Capacity int
}

// ChannelCapacityWorker periodically samples queue lengths into the
// relay_queue_depth gauge and warns when a queue fills past the threshold.
// Reading len and cap of a channel never blocks its users.
type ChannelCapacityWorker struct {
	log                  *slog.Logger
	queues               []NamedQueue
	metricInterval       time.Duration
	lowCapacityThreshold int
}

// NewChannelCapacityWorker builds a sampler. The threshold is a percentage
// of each queue's capacity.
func NewChannelCapacityWorker(log *slog.Logger, queues []NamedQueue,
	metricInterval time.Duration, lowCapacityThreshold int) *ChannelCapacityWorker {
	if metricInterval <= 0 {
		metricInterval = DefaultMetricInterval
	}
	if lowCapacityThreshold <= 0 || lowCapacityThreshold > 100 {
		lowCapacityThreshold = DefaultLowCapacityThreshold
	}
	return &ChannelCapacityWorker{
		log:                  log,
		queues:               queues,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample records one reading per queue and returns the names of the queues
// above the threshold.
func (w *ChannelCapacityWorker) Sample() []string {
	var saturated []string
	for _, q := range w.queues {
		length := q.Length()
		observability.QueueDepth.WithLabelValues(q.Name).Set(float64(length))
		if q.Capacity > 0 && length*100 >= q.Capacity*w.lowCapacityThreshold {
			w.log.Warn("Queue nearly full", "queue", q.Name, "length", length, "capacity", q.Capacity)
			saturated = append(saturated, q.Name)
		}
	}
	return saturated
}
