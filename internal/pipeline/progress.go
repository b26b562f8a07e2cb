package pipeline

import (
	"sync"
	"time"

	"github.com/nelcapetown/audible-scraper/internal/assets"
)

type Stage string

const (
	StageIdle           Stage = "idle"
	StagePreparing      Stage = "preparing"
	StageAuthenticating Stage = "authenticating"
	StageScraping       Stage = "scraping"
	StageSaving         Stage = "saving"
	StageFetchingAssets Stage = "fetching_assets"
	StageFinished       Stage = "finished"
	StageFailed         Stage = "failed"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	RunID      string       `json:"runId,omitempty"`
	Stage      Stage        `json:"stage"`
	Started    time.Time    `json:"started,omitempty"`
	Finished   time.Time    `json:"finished,omitempty"`
	Records    int          `json:"records"`
	Pages      int          `json:"pages"`
	FinalState string       `json:"finalState,omitempty"`
	StopReason string       `json:"stopReason,omitempty"`
	Assets     assets.Stats `json:"assets"`
	Error      string       `json:"error,omitempty"`
}

// Progress is updated by the Runner and read concurrently by the status
// server.
type Progress struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewProgress() *Progress {
	return &Progress{snap: Snapshot{Stage: StageIdle}}
}

func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{Stage: StageIdle}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Progress) update(fn func(*Snapshot)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.snap)
}

func (p *Progress) stage(s Stage) {
	p.update(func(snap *Snapshot) { snap.Stage = s })
}
