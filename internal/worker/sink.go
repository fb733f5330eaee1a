package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/a1betting/prop-engine/internal/models"
)

var (
	snapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_snapshots_written_total",
		Help: "Analysis snapshots written to ClickHouse",
	})

	snapshotsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_snapshots_failed_total",
		Help: "Analysis snapshots lost to failed batch inserts",
	})

	snapshotsShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_snapshots_load_shed_total",
		Help: "Analysis snapshots dropped because the queue was full",
	})

	sinkQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "propengine_sink_queue_depth",
		Help: "Current depth of the snapshot queue",
	})

	sinkBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "propengine_sink_batch_duration_seconds",
		Help:    "Duration of snapshot batch inserts",
		Buckets: prometheus.DefBuckets,
	})
)

const insertSnapshots = `
	INSERT INTO analysis_snapshots (
		created_at, projection_id, player_id, player_name, league, stat_type,
		line, predicted_value, confidence, value_bet_score, recommendation,
		risk_score, risk_level, degraded
	)`

// BatchConn is the part of a ClickHouse connection the sink needs
type BatchConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// SinkConfig configures the analysis snapshot sink
type SinkConfig struct {
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	ClickHouse    BatchConn
	Logger        *zap.Logger
}

// AnalysisSink batches analysis snapshots into ClickHouse for backtesting.
// Enqueue never blocks the analysis loop: a full queue drops the snapshot.
type AnalysisSink struct {
	config SinkConfig
	queue  chan models.AnalysisSnapshot
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
}

func NewAnalysisSink(cfg SinkConfig) *AnalysisSink {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 5000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &AnalysisSink{
		config: cfg,
		queue:  make(chan models.AnalysisSnapshot, cfg.QueueSize),
		logger: cfg.Logger.Sugar(),
	}
}

// Start launches the writer goroutines.
func (s *AnalysisSink) Start() {
	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Infow("Analysis sink started",
		"workers", s.config.WorkerCount,
		"queueSize", s.config.QueueSize,
		"batchSize", s.config.BatchSize,
	)
}

// Stop closes the queue and waits for every queued snapshot to be flushed.
func (s *AnalysisSink) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.logger.Info("Stopping analysis sink...")
	s.wg.Wait()
	s.logger.Info("Analysis sink stopped")
}

// Enqueue queues a snapshot, returning false if it was shed.
func (s *AnalysisSink) Enqueue(snap models.AnalysisSnapshot) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		snapshotsShed.Inc()
		return false
	}

	select {
	case s.queue <- snap:
		sinkQueueDepth.Set(float64(len(s.queue)))
		return true
	default:
		snapshotsShed.Inc()
		return false
	}
}

func (s *AnalysisSink) QueueDepth() int {
	return len(s.queue)
}

func (s *AnalysisSink) worker(id int) {
	defer s.wg.Done()

	batch := make([]models.AnalysisSnapshot, 0, s.config.BatchSize)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.writeBatch(batch); err != nil {
			s.logger.Errorw("Snapshot batch insert failed", "worker", id, "batchSize", len(batch), "error", err)
			snapshotsFailed.Add(float64(len(batch)))
		} else {
			snapshotsWritten.Add(float64(len(batch)))
		}
		sinkBatchDuration.Observe(time.Since(start).Seconds())
		sinkQueueDepth.Set(float64(len(s.queue)))
		batch = batch[:0]
	}

	for {
		select {
		case snap, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, snap)
			if len(batch) >= s.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *AnalysisSink) writeBatch(batch []models.AnalysisSnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chBatch, err := s.config.ClickHouse.PrepareBatch(ctx, insertSnapshots)
	if err != nil {
		return err
	}
	for _, snap := range batch {
		if err := chBatch.Append(
			snap.CreatedAt,
			snap.ProjectionID,
			snap.PlayerID,
			snap.PlayerName,
			snap.League,
			snap.StatType,
			snap.Line,
			snap.PredictedValue,
			snap.Confidence,
			snap.ValueBetScore,
			snap.Recommendation,
			snap.RiskScore,
			snap.RiskLevel,
			boolToUint8(snap.Degraded),
		); err != nil {
			s.logger.Warnw("Failed to append snapshot to batch", "projection", snap.ProjectionID, "error", err)
		}
	}
	return chBatch.Send()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
