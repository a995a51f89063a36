package uplink

import "time"

// Telemetry is one status event. Events are produced on every state
// transition, on every throughput window and whenever gain or mute
// changes.
type Telemetry struct {
	SessionID string       `json:"session_id,omitempty"`
	Endpoint  string       `json:"endpoint,omitempty"`
	Status    SessionState `json:"status"`

	// TxBytes and Kbps describe the last throughput window. Both are zero
	// on non-throughput events.
	TxBytes uint64 `json:"tx_bytes"`
	Kbps    uint32 `json:"kbps"`

	// Attempts counts failed connects and lost connections in the session.
	// It is zero on Stopping and Disconnected events.
	Attempts uint32 `json:"attempts"`

	// SessionTxBytes is the session total so far, kept on terminal events.
	SessionTxBytes uint64 `json:"session_tx_bytes"`

	Gain  float32 `json:"gain"`
	Muted bool    `json:"muted"`

	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// kbps returns kilobits per second for n bytes sent over d, using integer
// arithmetic: n*8/ms.
func kbps(n uint64, d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return uint32(n * 8 / uint64(ms))
}
