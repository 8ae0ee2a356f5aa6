package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation counters through an expvar.Map.
// Keys are "<operation>.success", "<operation>.error" and "<operation>.ms"
// (total milliseconds).
type ExpvarMetricsRecorder struct {
	name string
	vars *expvar.Map
}

// NewExpvarMetricsRecorder publishes a recorder under the supplied name. When
// name is empty, a unique identifier is generated. expvar names are global, so
// reusing a name panics.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("giftmatch_service_metrics_%d", id)
	}
	return &ExpvarMetricsRecorder{name: name, vars: expvar.NewMap(name)}
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Count returns the number of observations of operation with the given result.
func (r *ExpvarMetricsRecorder) Count(operation string, success bool) int64 {
	v, ok := r.vars.Get(resultKey(operation, success)).(*expvar.Int)
	if !ok {
		return 0
	}
	return v.Value()
}

// TotalMillis returns the accumulated duration of operation.
func (r *ExpvarMetricsRecorder) TotalMillis(operation string) float64 {
	v, ok := r.vars.Get(operation + ".ms").(*expvar.Float)
	if !ok {
		return 0
	}
	return v.Value()
}

// Observe records a service operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.vars.Add(resultKey(operation, success), 1)
	r.vars.AddFloat(operation+".ms", float64(duration)/float64(time.Millisecond))
}

func resultKey(operation string, success bool) string {
	if success {
		return operation + ".success"
	}
	return operation + ".error"
}

type spanKey struct{}

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	SpanID     string    `json:"span_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes finished spans as JSON lines and retains them for
// inspection. Spans started from a context carrying another span record it as
// their parent.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
	now     func() time.Time
}

// NewJSONTracer constructs a tracer writing to w. A nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{now: func() time.Time { return time.Now().UTC() }}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &jsonTraceSpan{
		tracer:    t,
		id:        uuid.NewString(),
		operation: operation,
		started:   t.now(),
	}
	if parent, ok := ctx.Value(spanKey{}).(*jsonTraceSpan); ok {
		span.parent = parent.id
	}
	return context.WithValue(ctx, spanKey{}, span), span
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	id        string
	parent    string
	operation string
	started   time.Time
	ended     atomic.Bool
}

// End records the span once; later calls are ignored.
func (s *jsonTraceSpan) End(err error) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	ended := s.tracer.now()
	entry := JSONTraceEntry{
		SpanID:     s.id,
		ParentID:   s.parent,
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}

	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
}
