package uplink

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/haivivi/pcmlink/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

// SessionRecord summarises one finished session.
type SessionRecord struct {
	ID           string        `msgpack:"id" json:"id"`
	Endpoint     string        `msgpack:"endpoint" json:"endpoint"`
	StartedAt    time.Time     `msgpack:"started_at" json:"started_at"`
	EndedAt      time.Time     `msgpack:"ended_at" json:"ended_at"`
	ConnectedFor time.Duration `msgpack:"connected_for" json:"connected_for"`
	Attempts     uint32        `msgpack:"attempts" json:"attempts"`
	TxBytes      uint64        `msgpack:"tx_bytes" json:"tx_bytes"`
	Error        string        `msgpack:"error,omitempty" json:"error,omitempty"`
}

var historyPrefix = kv.Key{"sessions"}

func recordKey(r *SessionRecord) kv.Key {
	return kv.Key{"sessions", fmt.Sprintf("%020d", r.StartedAt.UnixNano()), r.ID}
}

// History persists session records in a kv.Store, ordered by start time.
type History struct {
	store kv.Store
}

// NewHistory returns a History backed by store.
func NewHistory(store kv.Store) *History {
	return &History{store: store}
}

// Save stores rec.
func (h *History) Save(ctx context.Context, rec SessionRecord) error {
	b, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("uplink: encode session record: %w", err)
	}
	return h.store.Set(ctx, recordKey(&rec), b)
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (h *History) List(ctx context.Context, limit int) ([]SessionRecord, error) {
	var out []SessionRecord
	for e, err := range h.store.List(ctx, historyPrefix) {
		if err != nil {
			return nil, err
		}
		var rec SessionRecord
		if err := msgpack.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("uplink: decode session record %s: %w", e.Key, err)
		}
		out = append(out, rec)
	}
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prune deletes all but the newest keep records and returns how many were
// removed.
func (h *History) Prune(ctx context.Context, keep int) (int, error) {
	var keys []kv.Key
	for e, err := range h.store.List(ctx, historyPrefix) {
		if err != nil {
			return 0, err
		}
		keys = append(keys, e.Key)
	}
	if len(keys) <= keep {
		return 0, nil
	}
	stale := keys[:len(keys)-max(keep, 0)]
	for _, k := range stale {
		if err := h.store.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// Recorder is an Observer that writes a SessionRecord to History whenever
// a session ends.
type Recorder struct {
	history *History
	logger  Logger

	mu   sync.Mutex
	open map[string]*openSession
}

type openSession struct {
	rec            SessionRecord
	connectedSince time.Time
}

// NewRecorder returns a Recorder saving into h.
func NewRecorder(h *History, logger Logger) *Recorder {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &Recorder{
		history: h,
		logger:  logger,
		open:    make(map[string]*openSession),
	}
}

// Observe implements Observer.
func (r *Recorder) Observe(t Telemetry) {
	if t.SessionID == "" {
		return
	}
	r.mu.Lock()
	o, ok := r.open[t.SessionID]
	if !ok {
		o = &openSession{rec: SessionRecord{
			ID:        t.SessionID,
			Endpoint:  t.Endpoint,
			StartedAt: t.Time,
		}}
		r.open[t.SessionID] = o
	}
	if t.Status == Connected {
		if o.connectedSince.IsZero() {
			o.connectedSince = t.Time
		}
	} else if !o.connectedSince.IsZero() {
		o.rec.ConnectedFor += t.Time.Sub(o.connectedSince)
		o.connectedSince = time.Time{}
	}
	o.rec.Attempts = max(o.rec.Attempts, t.Attempts)
	o.rec.TxBytes = t.SessionTxBytes
	if t.Status != Disconnected {
		r.mu.Unlock()
		return
	}
	delete(r.open, t.SessionID)
	r.mu.Unlock()

	o.rec.EndedAt = t.Time
	o.rec.Error = t.Error
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.history.Save(ctx, o.rec); err != nil {
		r.logger.ErrorPrintf("save session %s: %v", o.rec.ID, err)
	}
}
