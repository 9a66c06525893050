package acquisition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/entity"
	"github.com/si3lab/lidarlink/internal/history"
	"github.com/si3lab/lidarlink/internal/instrument"
	"github.com/si3lab/lidarlink/internal/instrument/instrumenttest"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

const (
	addrHeartbeat attribute.Address = "ns=2;s=heartbeat"
	addrState     attribute.Address = "ns=2;s=lidar_get_state"
	addrChannel   attribute.Address = "ns=2;s=lidar_get_ElasticChannel355Nm"
)

type fixture struct {
	attrs     *attribute.Map
	projector *entity.Projector
	store     *history.Store
	pipeline  *Pipeline
}

func newFixture(t *testing.T, opts ...history.Option) *fixture {
	t.Helper()
	attrs, err := attribute.NewMap([]attribute.Definition{
		{Name: "HEARTBEAT", Address: addrHeartbeat, Kind: attribute.KindInteger},
		{Name: "STATE", Address: addrState, Kind: attribute.KindInteger},
		{Name: "ELASTIC_CHANNEL_355_NM", Address: addrChannel, Kind: attribute.KindFloat},
	})
	if err != nil {
		t.Fatalf("NewMap() error = %v", err)
	}
	store, err := history.New(10, opts...)
	if err != nil {
		t.Fatalf("history.New() error = %v", err)
	}
	projector := entity.NewProjector(attrs)
	return &fixture{
		attrs:     attrs,
		projector: projector,
		store:     store,
		pipeline:  NewPipeline(projector, store),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// batchRecorder is a Sink that keeps every batch.
type batchRecorder struct {
	mu      sync.Mutex
	batches []telemetry.Batch
}

func (r *batchRecorder) Consume(b telemetry.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *batchRecorder) Batches() []telemetry.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.Batch(nil), r.batches...)
}

func stopTask(t *testing.T, task *Task) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := task.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestPoll_TickSharesOneTimestamp(t *testing.T) {
	captured := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, history.WithClock(func() time.Time { return captured }))
	rec := &batchRecorder{}
	f.pipeline.AddSink("recorder", rec)

	conn := instrumenttest.NewConn(map[attribute.Address]any{
		addrHeartbeat: int32(1),
		addrState:     int32(2),
		addrChannel:   3.5,
	})

	poll := NewPoll(f.attrs, PollOptions{Interval: time.Hour}, f.pipeline)
	poll.now = func() time.Time { return captured }

	task, err := poll.Start(context.Background(), conn)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(rec.Batches()) == 1 })
	stopTask(t, task)

	batch := rec.Batches()[0]
	if batch.Source != telemetry.SourcePoll || batch.Len() != 3 {
		t.Fatalf("batch = %+v, want 3 poll samples", batch)
	}
	for _, name := range []string{"HEARTBEAT", "STATE", "ELASTIC_CHANNEL_355_NM"} {
		p, ok := f.store.Latest(name)
		if !ok || !p.Timestamp.Equal(captured) {
			t.Errorf("%s latest = %+v, want timestamp %v", name, p, captured)
		}
	}
	if v, _ := f.projector.Get("elastic_channel_355_nm"); v != 3.5 {
		t.Errorf("snapshot channel = %v, want 3.5", v)
	}
}

func TestPoll_FailedTickIsSkipped(t *testing.T) {
	f := newFixture(t)
	conn := instrumenttest.NewConn(map[attribute.Address]any{addrHeartbeat: int32(1)})
	conn.SetReadErr(errors.New("bad node"))

	poll := NewPoll(f.attrs, PollOptions{Interval: 5 * time.Millisecond}, f.pipeline)
	task, err := poll.Start(context.Background(), conn)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return conn.ReadManyCount() >= 3 })
	if n := f.store.Len("HEARTBEAT"); n != 0 {
		t.Errorf("history has %d points after failed ticks, want 0", n)
	}

	conn.SetReadErr(nil)
	waitFor(t, time.Second, func() bool {
		return f.store.Len("HEARTBEAT") > 0 && poll.Stats().ConsecutiveFailures == 0
	})
	stopTask(t, task)

	select {
	case err := <-task.Fatal():
		t.Errorf("unexpected fatal error with threshold disabled: %v", err)
	default:
	}
	if st := poll.Stats(); st.Failures < 3 || st.ConsecutiveFailures != 0 {
		t.Errorf("Stats() = %+v, want >=3 failures and 0 consecutive", st)
	}
}

func TestPoll_FailureThresholdReportsFatal(t *testing.T) {
	f := newFixture(t)
	conn := instrumenttest.NewConn(nil)
	conn.SetReadErr(errors.New("link down"))

	poll := NewPoll(f.attrs, PollOptions{Interval: time.Millisecond, FailureThreshold: 3}, f.pipeline)
	task, err := poll.Start(context.Background(), conn)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case err := <-task.Fatal():
		if !errors.Is(err, ErrPollDegraded) {
			t.Errorf("Fatal() = %v, want ErrPollDegraded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no fatal error after threshold")
	}
	<-task.Done()
	if n := conn.ReadManyCount(); n != 3 {
		t.Errorf("ReadMany called %d times, want 3", n)
	}
}

func TestPoll_SleepsIntervalMinusElapsed(t *testing.T) {
	f := newFixture(t)
	conn := instrumenttest.NewConn(map[attribute.Address]any{addrHeartbeat: int32(1)})
	conn.OnReadMany(func() { time.Sleep(20 * time.Millisecond) })

	var mu sync.Mutex
	var starts []time.Time
	poll := NewPoll(f.attrs, PollOptions{Interval: 50 * time.Millisecond}, f.pipeline)
	base := poll.now
	poll.now = func() time.Time {
		now := base()
		mu.Lock()
		starts = append(starts, now)
		mu.Unlock()
		return now
	}

	task, err := poll.Start(context.Background(), conn)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return conn.ReadManyCount() >= 4 })
	stopTask(t, task)

	// Each tick calls now() three times: start, capture, elapsed.
	mu.Lock()
	defer mu.Unlock()
	if len(starts) < 9 {
		t.Fatalf("recorded %d clock reads, want at least 9", len(starts))
	}
	period := starts[6].Sub(starts[3])
	if period < 45*time.Millisecond || period > 90*time.Millisecond {
		t.Errorf("tick period = %v, want about 50ms despite 20ms reads", period)
	}
}

func TestNewPoll_ClampsToFloor(t *testing.T) {
	f := newFixture(t)
	poll := NewPoll(f.attrs, PollOptions{Interval: 0}, f.pipeline)
	if got := poll.Interval(); got != DefaultPollFloor {
		t.Errorf("Interval() = %v, want %v", got, DefaultPollFloor)
	}
}

func TestPush_AppliesChangesWithReceiptTime(t *testing.T) {
	received := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, history.WithClock(func() time.Time { return received }))
	conn := instrumenttest.NewConn(nil)

	push := NewPush(f.attrs, 0, f.pipeline)
	push.now = func() time.Time { return received }

	task, err := push.Start(context.Background(), conn)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	subs := conn.Subscriptions()
	if len(subs) != 1 {
		t.Fatalf("created %d subscriptions, want 1", len(subs))
	}
	if subs[0].Period != DefaultPushPeriod {
		t.Errorf("subscription period = %v, want %v", subs[0].Period, DefaultPushPeriod)
	}
	if len(subs[0].Addresses) != f.attrs.Len() {
		t.Errorf("monitored %d addresses, want %d", len(subs[0].Addresses), f.attrs.Len())
	}

	subs[0].Push(
		instrument.DataChange{Address: addrHeartbeat, Value: int32(7)},
		instrument.DataChange{Address: "ns=2;s=unmapped", Value: 1},
	)
	waitFor(t, time.Second, func() bool { return f.store.Len("HEARTBEAT") == 1 })
	stopTask(t, task)

	p, _ := f.store.Latest("HEARTBEAT")
	if p.Value != int32(7) || !p.Timestamp.Equal(received) {
		t.Errorf("HEARTBEAT = %+v, want 7 at %v", p, received)
	}
	if got := f.store.Attributes(); len(got) != 1 {
		t.Errorf("history attributes = %v, unmapped address must be skipped", got)
	}
}

func TestPush_StopCancelsSubscriptionFirst(t *testing.T) {
	f := newFixture(t)
	conn := instrumenttest.NewConn(nil)

	task, err := NewPush(f.attrs, 0, f.pipeline).Start(context.Background(), conn)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stopTask(t, task)

	if !conn.Subscriptions()[0].Cancelled() {
		t.Error("subscription not cancelled when Stop returned")
	}
	select {
	case <-task.Fatal():
		t.Error("Stop must not report a fatal error")
	default:
	}
}

func TestPush_TeardownErrorIsSwallowed(t *testing.T) {
	f := newFixture(t)
	conn := instrumenttest.NewConn(nil)

	task, err := NewPush(f.attrs, 0, f.pipeline).Start(context.Background(), conn)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	conn.Subscriptions()[0].SetCancelErr(errors.New("session gone"))
	stopTask(t, task)
}

func TestPush_StreamClosedIsFatal(t *testing.T) {
	f := newFixture(t)
	conn := instrumenttest.NewConn(nil)

	task, err := NewPush(f.attrs, 0, f.pipeline).Start(context.Background(), conn)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	conn.Subscriptions()[0].Fail()

	select {
	case err := <-task.Fatal():
		if !errors.Is(err, ErrSubscriptionClosed) {
			t.Errorf("Fatal() = %v, want ErrSubscriptionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no fatal error after stream closed")
	}
}

func TestPush_SubscribeErrorPropagates(t *testing.T) {
	f := newFixture(t)
	conn := instrumenttest.NewConn(nil)
	conn.SetSubscribeErr(instrument.ErrConnection)

	task, err := NewPush(f.attrs, 0, f.pipeline).Start(context.Background(), conn)
	if !errors.Is(err, instrument.ErrConnection) {
		t.Errorf("Start() error = %v, want ErrConnection", err)
	}
	if task != nil {
		t.Error("Start() returned a task on failure")
	}
}

func TestStart_NilConn(t *testing.T) {
	f := newFixture(t)
	if _, err := NewPush(f.attrs, 0, f.pipeline).Start(context.Background(), nil); !errors.Is(err, ErrNilConn) {
		t.Errorf("Push.Start(nil) error = %v", err)
	}
	if _, err := NewPoll(f.attrs, PollOptions{}, f.pipeline).Start(context.Background(), nil); !errors.Is(err, ErrNilConn) {
		t.Errorf("Poll.Start(nil) error = %v", err)
	}
}

func TestPipeline_SinkPanicIsContained(t *testing.T) {
	f := newFixture(t)
	rec := &batchRecorder{}
	f.pipeline.AddSink("bad", SinkFunc(func(telemetry.Batch) { panic("boom") }))
	f.pipeline.AddSink("good", rec)

	f.pipeline.Apply(telemetry.Batch{
		CapturedAt: time.Now(),
		Samples:    []telemetry.Sample{{Attribute: "STATE", Value: int32(1)}},
	})

	if len(rec.Batches()) != 1 {
		t.Error("sink after a panicking sink was not called")
	}
	st := f.pipeline.Stats()
	if st.Panics != 1 || st.Batches != 1 || st.Samples != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestPipeline_EmptyBatchIgnored(t *testing.T) {
	f := newFixture(t)
	f.pipeline.Apply(telemetry.Batch{})
	if st := f.pipeline.Stats(); st.Batches != 0 {
		t.Errorf("Stats().Batches = %d, want 0", st.Batches)
	}
}
