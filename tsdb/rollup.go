package tsdb

// RollupKind selects which aggregate a query wants out of a
// RollupPoint.
type RollupKind int

const (
	RollupAvg RollupKind = iota
	RollupCount
	RollupMin
	RollupMax
	RollupSum
)

// RollupPoint is one flushed aggregate bucket.
type RollupPoint struct {
	Timestamp int64
	Count     uint32
	Min       float64
	Max       float64
	Sum       float64
}

// Value extracts the requested aggregate kind. ok is false if the
// bucket never saw a point (Count == 0).
func (p RollupPoint) Value(kind RollupKind) (v float64, ok bool) {
	if p.Count == 0 {
		return 0, false
	}
	switch kind {
	case RollupAvg:
		return p.Sum / float64(p.Count), true
	case RollupCount:
		return float64(p.Count), true
	case RollupMin:
		return p.Min, true
	case RollupMax:
		return p.Max, true
	case RollupSum:
		return p.Sum, true
	default:
		return 0, false
	}
}

// RollupSink receives the flushed aggregate buckets a RollupAggregator
// produces, writing each into the rollup file's own PageManager/PageInfo
// the same way a raw datapoint would be written.
type RollupSink interface {
	AddRollupPoint(p RollupPoint) error
}

// NextFileFunc resolves the file whose range immediately follows
// current, used when a rollup's advancing bucket crosses a file
// boundary. ok is false if no such file exists (yet).
type NextFileFunc func(current TimeRange) (next TimeRange, ok bool)

// RollupAggregator is a per-series streaming fixed-interval aggregator.
// It assumes monotonically non-decreasing timestamps; out-of-order
// points must bypass it entirely and go straight to an OOO page.
type RollupAggregator struct {
	interval int64
	sink     RollupSink
	nextFile NextFileFunc

	fileRange TimeRange
	bound     bool

	tstamp int64 // bucket lower bound; InvalidTimestamp until the first point
	cnt    uint32
	min    float64
	max    float64
	sum    float64
}

// NewRollupAggregator returns an aggregator flushing interval-second
// buckets to sink, advancing across file boundaries via nextFile.
func NewRollupAggregator(interval int64, sink RollupSink, nextFile NextFileFunc) *RollupAggregator {
	return &RollupAggregator{
		interval: interval,
		sink:     sink,
		nextFile: nextFile,
		tstamp:   int64(InvalidTimestamp),
	}
}

func (a *RollupAggregator) stepDown(ts int64) int64 {
	return ts - (ts % a.interval)
}

// AddDataPoint accumulates one raw point into the current bucket,
// flushing (and gap-filling) every bucket it passes along the way.
// fileRange is the TimeRange of the file the point physically landed
// in. Only the first call's fileRange is used, to bind the aggregator;
// later calls ignore it, and file boundaries crossed while advancing
// are resolved through nextFile.
func (a *RollupAggregator) AddDataPoint(fileRange TimeRange, ts int64, value float64) error {
	if !a.bound {
		a.fileRange = fileRange
		a.bound = true
	}

	bucket := a.stepDown(ts)

	if a.tstamp == int64(InvalidTimestamp) {
		a.tstamp = bucket
		a.accumulate(value)
		return nil
	}

	for bucket != a.tstamp {
		if err := a.flushLocked(); err != nil {
			return err
		}
		a.tstamp += a.interval

		if a.tstamp >= a.fileRange.To {
			next, ok := a.nextFile(a.fileRange)
			if !ok {
				// No further file to roll into yet; park at the
				// boundary and wait for one to appear.
				break
			}
			a.fileRange = next
			a.tstamp = next.From
		}
	}

	a.accumulate(value)
	return nil
}

func (a *RollupAggregator) accumulate(value float64) {
	if a.cnt == 0 {
		a.min = value
		a.max = value
	} else {
		if value < a.min {
			a.min = value
		}
		if value > a.max {
			a.max = value
		}
	}
	a.cnt++
	a.sum += value
}

// Flush emits the current bucket's accumulators as one RollupPoint and
// resets cnt/min/max/sum, leaving tstamp untouched.
func (a *RollupAggregator) Flush() error {
	return a.flushLocked()
}

func (a *RollupAggregator) flushLocked() error {
	p := RollupPoint{Timestamp: a.tstamp, Count: a.cnt, Min: a.min, Max: a.max, Sum: a.sum}
	if a.cnt == 0 {
		p.Min, p.Max, p.Sum = 0, 0, 0
	}
	if err := a.sink.AddRollupPoint(p); err != nil {
		return err
	}
	a.cnt = 0
	a.min = 0
	a.max = 0
	a.sum = 0
	return nil
}

// Query materializes one aggregate of kind from the bucket currently
// held in the accumulators (not yet flushed), or ok=false if it is
// empty.
func (a *RollupAggregator) Query(kind RollupKind) (v float64, ok bool) {
	p := RollupPoint{Timestamp: a.tstamp, Count: a.cnt, Min: a.min, Max: a.max, Sum: a.sum}
	return p.Value(kind)
}
