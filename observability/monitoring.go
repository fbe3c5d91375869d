package observability

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// SyncSnapshot is a point-in-time copy of the synchronization counters.
type SyncSnapshot struct {
	PushReceived     uint64    `json:"push_received"`
	PushDropped      uint64    `json:"push_dropped"`
	DuplicateIgnored uint64    `json:"duplicate_ignored"`
	ForeignIgnored   uint64    `json:"foreign_ignored"`
	SendOK           uint64    `json:"send_ok"`
	SendFailed       uint64    `json:"send_failed"`
	FetchOK          uint64    `json:"fetch_ok"`
	FetchFailed      uint64    `json:"fetch_failed"`
	StaleDiscarded   uint64    `json:"stale_discarded"`
	Since            time.Time `json:"since"`
}

// SyncStats counts what happened to conversation traffic.
// A nil *SyncStats is valid and counts nothing, so callers never need to check.
type SyncStats struct {
	PushReceived     uint64
	PushDropped      uint64
	DuplicateIgnored uint64
	ForeignIgnored   uint64
	SendOK           uint64
	SendFailed       uint64
	FetchOK          uint64
	FetchFailed      uint64
	StaleDiscarded   uint64
	since            time.Time
}

func NewSyncStats() *SyncStats {
	return &SyncStats{since: time.Now()}
}

func (s *SyncStats) IncrPushReceived() {
	if s != nil {
		atomic.AddUint64(&s.PushReceived, 1)
	}
}

func (s *SyncStats) IncrPushDropped() {
	if s != nil {
		atomic.AddUint64(&s.PushDropped, 1)
	}
}

func (s *SyncStats) IncrDuplicateIgnored() {
	if s != nil {
		atomic.AddUint64(&s.DuplicateIgnored, 1)
	}
}

func (s *SyncStats) IncrForeignIgnored() {
	if s != nil {
		atomic.AddUint64(&s.ForeignIgnored, 1)
	}
}

func (s *SyncStats) IncrSendOK() {
	if s != nil {
		atomic.AddUint64(&s.SendOK, 1)
	}
}

func (s *SyncStats) IncrSendFailed() {
	if s != nil {
		atomic.AddUint64(&s.SendFailed, 1)
	}
}

func (s *SyncStats) IncrFetchOK() {
	if s != nil {
		atomic.AddUint64(&s.FetchOK, 1)
	}
}

func (s *SyncStats) IncrFetchFailed() {
	if s != nil {
		atomic.AddUint64(&s.FetchFailed, 1)
	}
}

func (s *SyncStats) IncrStaleDiscarded() {
	if s != nil {
		atomic.AddUint64(&s.StaleDiscarded, 1)
	}
}

func (s *SyncStats) Snapshot() SyncSnapshot {
	if s == nil {
		return SyncSnapshot{}
	}
	return SyncSnapshot{
		PushReceived:     atomic.LoadUint64(&s.PushReceived),
		PushDropped:      atomic.LoadUint64(&s.PushDropped),
		DuplicateIgnored: atomic.LoadUint64(&s.DuplicateIgnored),
		ForeignIgnored:   atomic.LoadUint64(&s.ForeignIgnored),
		SendOK:           atomic.LoadUint64(&s.SendOK),
		SendFailed:       atomic.LoadUint64(&s.SendFailed),
		FetchOK:          atomic.LoadUint64(&s.FetchOK),
		FetchFailed:      atomic.LoadUint64(&s.FetchFailed),
		StaleDiscarded:   atomic.LoadUint64(&s.StaleDiscarded),
		Since:            s.since,
	}
}

// LogSummary writes the counters as a single structured line.
func (s *SyncStats) LogSummary(log *slog.Logger) {
	snap := s.Snapshot()
	log.Info("Conversation sync summary",
		"push_received", snap.PushReceived,
		"push_dropped", snap.PushDropped,
		"duplicate_ignored", snap.DuplicateIgnored,
		"foreign_ignored", snap.ForeignIgnored,
		"send_ok", snap.SendOK,
		"send_failed", snap.SendFailed,
		"fetch_ok", snap.FetchOK,
		"fetch_failed", snap.FetchFailed,
		"stale_discarded", snap.StaleDiscarded,
		"uptime", time.Since(snap.Since).Round(time.Second),
	)
}
