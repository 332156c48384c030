package audits

import (
	"sync"

	domain "github.com/uxnareal/audit-api/internal/domain/audits"
)

// tracker holds the live progress of running pipelines, keyed by analysis.
type tracker struct {
	mu   sync.RWMutex
	byID map[domain.ID]domain.Progress
}

func newTracker() *tracker {
	return &tracker{byID: make(map[domain.ID]domain.Progress)}
}

// set never moves progress backwards. Image downloads finish in any order,
// so a late callback may carry a smaller count than one already stored.
func (t *tracker) set(id domain.ID, p domain.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.byID[id]; ok {
		if p.Percent < cur.Percent || (p.Percent == cur.Percent && p.ImagesDone < cur.ImagesDone) {
			return
		}
	}
	t.byID[id] = p
}

func (t *tracker) get(id domain.ID) (domain.Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byID[id]
	return p, ok
}

func (t *tracker) forget(id domain.ID) {
	t.mu.Lock()
	delete(t.byID, id)
	t.mu.Unlock()
}

// fetchProgress spreads image downloads over 10..50 percent.
func fetchProgress(done, total int) domain.Progress {
	pct := 10
	if total > 0 {
		pct += 40 * done / total
	}
	return domain.Progress{Step: domain.StepProcess, Percent: pct, ImagesDone: done, ImagesTotal: total}
}
