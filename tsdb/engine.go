package tsdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagedb/tsdb/config"
	"github.com/pagedb/tsdb/pkg/lifecycle"
)

// TimeSeriesID identifies one series for ingest and query purposes.
// The engine attaches no schema to it; series identity and tagging
// live in the out-of-scope catalog layer.
type TimeSeriesID uint64

// IngestPoint is one point of a batched ingest call.
type IngestPoint struct {
	Series    TimeSeriesID
	Timestamp int64
	Value     float64
}

// Counts summarizes the outcome of an IngestBatch call.
type Counts struct {
	Accepted int
	Rejected int
}

// RollupNone requests raw datapoints from Query rather than an
// aggregate kind.
const RollupNone RollupKind = -1

// RangeResolver maps a timestamp to the file it belongs to and knows
// how files chain together, standing in for the out-of-scope top-level
// time-range catalog: the engine only needs these two operations from
// it.
type RangeResolver interface {
	// RangeFor returns the range-id and TimeRange that ts belongs to,
	// creating a new mapping if this is the first point ever seen for
	// that span.
	RangeFor(ts int64) (rangeID string, r TimeRange)

	// NextRange returns the range immediately following current, if
	// one has been established yet.
	NextRange(current TimeRange) (next TimeRange, ok bool)
}

// Iterator lazily materializes query results.
type Iterator interface {
	Next() bool
	Point() DataPoint
	Err() error
	Close() error
}

// sliceIterator is the trivial Iterator over an already-materialized
// slice, used for the common case where a query's working set fits in
// memory (any file's page count is bounded by config).
type sliceIterator struct {
	points []DataPoint
	pos    int
}

func (it *sliceIterator) Next() bool {
	it.pos++
	return it.pos <= len(it.points)
}

func (it *sliceIterator) Point() DataPoint {
	return it.points[it.pos-1]
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }

// Engine binds a RangeResolver to a set of PageManagers, one per
// (range-id, manager-id) file, and exposes the ingest/query surface
// the network layer consumes. Manager assignment within a range is
// currently fixed at manager-id "0"; sharding series across multiple
// managers per range is left to a future revision.
type Engine struct {
	dataDir  string
	cfg      *config.Store
	resolver RangeResolver
	pool     *Pool
	log      *zap.Logger
	stopper  *lifecycle.Stopper

	mu       sync.RWMutex
	managers map[string]*PageManager    // rangeID -> raw data file
	rollups  map[string]*PageManager    // rangeID -> rollup file
	current  map[TimeSeriesID]*PageInfo // series -> its open raw page
	rollCur  map[TimeSeriesID]*PageInfo // series -> its open rollup page
	aggs     map[TimeSeriesID]*RollupAggregator
}

// NewEngine returns an Engine reading its tunables from cfg and storing
// files under dataDir.
func NewEngine(dataDir string, cfg *config.Store, resolver RangeResolver, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		dataDir:  dataDir,
		cfg:      cfg,
		resolver: resolver,
		pool:     NewPool(),
		log:      log,
		stopper:  lifecycle.NewStopper(),
		managers: make(map[string]*PageManager),
		rollups:  make(map[string]*PageManager),
		current:  make(map[TimeSeriesID]*PageInfo),
		rollCur:  make(map[TimeSeriesID]*PageInfo),
		aggs:     make(map[TimeSeriesID]*RollupAggregator),
	}
}

func (e *Engine) pmConfig() pageManagerConfig {
	return pageManagerConfig{
		PageSize:          int(e.cfg.Bytes("tsdb.page.size")),
		PageCount:         uint32(e.cfg.Int("tsdb.page.count")),
		CompressorVersion: int(e.cfg.Int("tsdb.compressor.version")),
		Millisecond:       e.cfg.Bool("tsdb.timestamp.resolution.ms"),
	}
}

// managerFor returns (opening if necessary) the raw-data PageManager
// for rangeID/r, and the rollup PageManager for the same range.
func (e *Engine) managerFor(rangeID string, r TimeRange) (data, rollup *PageManager, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, ok := e.managers[rangeID]
	if !ok {
		if err := os.MkdirAll(filepath.Join(e.dataDir, rangeID), 0o755); err != nil {
			return nil, nil, &IOError{Op: "mkdir", Err: err}
		}
		path := filepath.Join(e.dataDir, rangeID, "0")
		data, err = OpenPageManager(path, r, e.pmConfig(), e.pool)
		if err != nil {
			return nil, nil, err
		}
		e.managers[rangeID] = data
	}

	rollup, ok = e.rollups[rangeID]
	if !ok {
		path := filepath.Join(e.dataDir, rangeID, "rollup")
		rollup, err = OpenPageManager(path, r, e.pmConfig(), e.pool)
		if err != nil {
			return nil, nil, err
		}
		e.rollups[rangeID] = rollup
	}

	return data, rollup, nil
}

// Ingest appends one point to the series' active page, allocating a
// fresh page as needed, and drives that series' RollupAggregator
// forward. ErrOutOfPages is returned to the caller; no new file is
// opened for the range. Points rerouted to an out-of-order page bypass
// the aggregator.
func (e *Engine) Ingest(ctx context.Context, series TimeSeriesID, ts int64, value float64) error {
	ref, err := e.stopper.Acquire()
	if err != nil {
		return ErrShutdownInProgress
	}
	defer ref.Release()

	if err := ctx.Err(); err != nil {
		return err
	}

	rangeID, r := e.resolver.RangeFor(ts)
	data, rollup, err := e.managerFor(rangeID, r)
	if err != nil {
		return err
	}

	rerouted, err := e.appendRaw(data, series, ts, value)
	if err != nil {
		return err
	}
	if rerouted {
		return nil
	}

	agg := e.aggregatorFor(series, rollup)
	return agg.AddDataPoint(r, ts, value)
}

// appendRaw writes one point through the series' PageInfo, allocating
// a new page when the current one is full or absent, and rerouting to
// an out-of-order page when the point regresses. It reports whether
// the point was rerouted.
func (e *Engine) appendRaw(pm *PageManager, series TimeSeriesID, ts int64, value float64) (bool, error) {
	e.mu.Lock()
	pi := e.current[series]
	e.mu.Unlock()

	if pi != nil {
		ok, err := pi.AddDataPoint(ts, value)
		if err == ErrOutOfOrder {
			e.log.Debug("routing out-of-order point to OOO page",
				zap.Uint64("series", uint64(series)), zap.Int64("ts", ts))
			ooo, oerr := pm.GetFreePageOnDisk(ts, true)
			if oerr != nil {
				return false, oerr
			}
			if _, aerr := ooo.AddDataPoint(ts, value); aerr != nil {
				return false, aerr
			}
			ooo.Flush()
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
		pi.Flush()
	}

	fresh, err := pm.GetFreePageOnDisk(ts, false)
	if err == ErrOutOfPages {
		e.log.Warn("page manager exhausted", zap.Uint64("series", uint64(series)))
		return false, err
	}
	if err != nil {
		return false, err
	}
	if _, err := fresh.AddDataPoint(ts, value); err != nil {
		return false, err
	}
	e.mu.Lock()
	e.current[series] = fresh
	e.mu.Unlock()
	return false, nil
}

func (e *Engine) aggregatorFor(series TimeSeriesID, rollup *PageManager) *RollupAggregator {
	e.mu.Lock()
	defer e.mu.Unlock()

	if agg, ok := e.aggs[series]; ok {
		return agg
	}
	sink := &engineRollupSink{engine: e, series: series, manager: rollup}
	interval := int64(e.cfg.Duration("tsdb.rollup.interval").Duration().Seconds())
	agg := NewRollupAggregator(interval, sink, e.resolver.NextRange)
	e.aggs[series] = agg
	return agg
}

// engineRollupSink adapts a RollupAggregator's flushed buckets onto the
// engine's own series-to-page bookkeeping, treating a rollup bucket as
// a 4-tuple write encoded as (count, min, max, sum) into a dedicated
// page the same way a raw datapoint would be.
type engineRollupSink struct {
	engine  *Engine
	series  TimeSeriesID
	manager *PageManager
}

func (s *engineRollupSink) AddRollupPoint(p RollupPoint) error {
	s.engine.mu.Lock()
	pi := s.engine.rollCur[s.series]
	s.engine.mu.Unlock()

	if pi == nil {
		fresh, err := s.manager.GetFreePageOnDisk(p.Timestamp, false)
		if err != nil {
			return err
		}
		pi = fresh
		s.engine.mu.Lock()
		s.engine.rollCur[s.series] = pi
		s.engine.mu.Unlock()
	}

	// Rollup buckets are packed as four consecutive raw points sharing
	// the bucket timestamp: count, min, max, sum, in that order, so
	// the existing Compressor needs no bespoke 4-tuple codec.
	for _, v := range [4]float64{float64(p.Count), p.Min, p.Max, p.Sum} {
		ok, err := pi.AddDataPoint(p.Timestamp, v)
		if err != nil {
			return err
		}
		if !ok {
			pi.Flush()
			fresh, err := s.manager.GetFreePageOnDisk(p.Timestamp, false)
			if err != nil {
				return err
			}
			pi = fresh
			s.engine.mu.Lock()
			s.engine.rollCur[s.series] = pi
			s.engine.mu.Unlock()
			if _, err := pi.AddDataPoint(p.Timestamp, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// IngestBatch ingests every point, continuing past per-point failures
// and reporting how many of each outcome occurred.
func (e *Engine) IngestBatch(ctx context.Context, points []IngestPoint) (Counts, error) {
	var c Counts
	for _, p := range points {
		if err := e.Ingest(ctx, p.Series, p.Timestamp, p.Value); err != nil {
			c.Rejected++
			continue
		}
		c.Accepted++
	}
	return c, nil
}

// Query selects every PageManager whose file range intersects r,
// rehydrates the requested series' pages, and returns their points (or
// rollup aggregates of the requested kind) as an Iterator over the
// already-materialized points.
// series is accepted for API-surface compatibility but not yet used to
// filter pages: the on-disk page_info_on_disk record carries no series
// identity (by the format's own design, see spec §6), so series-to-page
// association only exists in the engine's in-memory maps built during
// this process's own ingest. A persisted series index belongs to the
// out-of-scope catalog layer.
func (e *Engine) Query(ctx context.Context, series []TimeSeriesID, r TimeRange, rollup RollupKind) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	files := e.managers
	if rollup != RollupNone {
		files = e.rollups
	}

	var raw []DataPoint
	for _, pm := range files {
		if !pm.TimeRange().Intersects(r) {
			continue
		}
		for i := uint32(0); i < pm.PageCount(); i++ {
			pi, ok := pm.GetPageOnDisk(i)
			if !ok {
				continue
			}
			if !pi.TimeRange().Intersects(r) {
				continue
			}
			raw = pi.EnsureDataPointsAvailable(raw)
		}
	}

	var out []DataPoint
	if rollup == RollupNone {
		for _, dp := range raw {
			if r.Contains(dp.Timestamp) {
				out = append(out, dp)
			}
		}
		return &sliceIterator{points: out}, nil
	}

	// Rollup files pack each bucket as four consecutive points sharing
	// one timestamp: count, min, max, sum, in that order.
	for i := 0; i+3 < len(raw); i += 4 {
		p := RollupPoint{
			Timestamp: raw[i].Timestamp,
			Count:     uint32(raw[i].Value),
			Min:       raw[i+1].Value,
			Max:       raw[i+2].Value,
			Sum:       raw[i+3].Value,
		}
		if !r.Contains(p.Timestamp) {
			continue
		}
		if v, ok := p.Value(rollup); ok {
			out = append(out, DataPoint{Timestamp: p.Timestamp, Value: v})
		}
	}
	return &sliceIterator{points: out}, nil
}

// Flush syncs every open file. sync selects MS_SYNC over MS_ASYNC.
func (e *Engine) Flush(sync bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, pm := range e.managers {
		if err := pm.Flush(sync); err != nil {
			return fmt.Errorf("tsdb: flush %s: %w", id, err)
		}
	}
	for id, pm := range e.rollups {
		if err := pm.Flush(sync); err != nil {
			return fmt.Errorf("tsdb: flush rollup %s: %w", id, err)
		}
	}
	return nil
}

// Shutdown requests the engine stop per mode; Wait blocks for it.
func (e *Engine) Shutdown(mode lifecycle.ShutdownMode) {
	e.stopper.Shutdown(mode)
}

// Wait blocks until Shutdown has completed, or timeout elapses. A
// timeout of 0 waits indefinitely.
func (e *Engine) Wait(timeout time.Duration) error {
	return e.stopper.Wait(timeout)
}

// PendingTaskCount always returns 0: the storage engine keeps no queue
// of background compaction or flush work (every Flush is synchronous),
// and this module has no listener/responder hierarchy whose pending
// work could be counted.
func (e *Engine) PendingTaskCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return 0
}

// Close closes every open file.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for _, pm := range e.managers {
		if err := pm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, pm := range e.rollups {
		if err := pm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
