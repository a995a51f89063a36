package uplink

import (
	"context"
	"testing"
	"time"

	"github.com/haivivi/pcmlink/pkg/kv"
)

func TestHistorySaveList(t *testing.T) {
	ctx := context.Background()
	h := NewHistory(kv.NewMemory())
	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"a", "b", "c"} {
		err := h.Save(ctx, SessionRecord{
			ID:        id,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			TxBytes:   uint64(i),
		})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	recs, err := h.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 || recs[0].ID != "c" || recs[2].ID != "a" {
		t.Fatalf("List() = %+v", recs)
	}
	if !recs[2].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", recs[2].StartedAt, base)
	}

	recs, _ = h.List(ctx, 2)
	if len(recs) != 2 || recs[0].ID != "c" {
		t.Errorf("List(2) = %+v", recs)
	}

	n, err := h.Prune(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("Prune(1) = %d, %v", n, err)
	}
	recs, _ = h.List(ctx, 0)
	if len(recs) != 1 || recs[0].ID != "c" {
		t.Errorf("after Prune: %+v", recs)
	}
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	h := NewHistory(kv.NewMemory())
	r := NewRecorder(h, nil)

	t0 := time.Unix(1_700_000_000, 0)
	ev := func(st SessionState, d time.Duration, attempts uint32, tx uint64) Telemetry {
		return Telemetry{
			SessionID:      "s1",
			Endpoint:       "127.0.0.1:7700",
			Status:         st,
			Attempts:       attempts,
			SessionTxBytes: tx,
			Time:           t0.Add(d),
		}
	}
	r.Observe(Telemetry{Status: Disconnected})
	r.Observe(ev(Connecting, 0, 0, 0))
	r.Observe(ev(Connected, time.Second, 0, 0))
	r.Observe(ev(Connected, 3*time.Second, 0, 1000))
	r.Observe(ev(Connecting, 4*time.Second, 1, 2000))
	r.Observe(ev(Connected, 5*time.Second, 1, 2000))
	// Terminal events carry no attempt count.
	r.Observe(ev(Stopping, 7*time.Second, 0, 4000))
	last := ev(Disconnected, 8*time.Second, 0, 4000)
	last.Error = "bye"
	r.Observe(last)

	recs, err := h.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID != "s1" || rec.Endpoint != "127.0.0.1:7700" {
		t.Errorf("record = %+v", rec)
	}
	if rec.ConnectedFor != 5*time.Second {
		t.Errorf("ConnectedFor = %v, want 5s", rec.ConnectedFor)
	}
	if rec.Attempts != 1 || rec.TxBytes != 4000 || rec.Error != "bye" {
		t.Errorf("record = %+v", rec)
	}
	if got := rec.EndedAt.Sub(rec.StartedAt); got != 8*time.Second {
		t.Errorf("duration = %v", got)
	}
}

func TestRecorderWithEngine(t *testing.T) {
	port, conns := listen(t)
	capture, _ := constCapture(1)
	e := New(testOptions(capture))
	defer e.Close()

	h := NewHistory(kv.NewMemory())
	e.Subscribe(NewRecorder(h, nil))
	done := newCollector()
	e.Subscribe(done)

	e.Start(StreamConfig{Host: "127.0.0.1", Port: port, InitialGain: 1})
	accept(t, conns, 2*time.Second)
	time.Sleep(50 * time.Millisecond)
	e.Stop()
	waitDone(t, e, time.Second)
	done.waitFor(t, time.Second, func(ev Telemetry) bool { return ev.Status == Disconnected })

	// Observers run in subscription order, so the record is saved by now.
	recs, err := h.List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].TxBytes == 0 {
		t.Fatalf("records = %+v", recs)
	}
}
