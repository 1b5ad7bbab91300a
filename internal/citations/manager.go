package citations

import (
	"errors"
	"fmt"
	"sync"
)

// Phase identifies where a citation originated. Planning and Researching
// block ids live in distinct namespaces but share one dedup table, so a
// source cited in both phases still resolves to a single display index.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseResearching Phase = "researching"
)

var (
	// ErrPrematureFinalization is returned when Finalize is called before
	// both Planning and Researching are complete. Programming error.
	ErrPrematureFinalization = errors.New("citations finalized before phases completed")

	// ErrFinalized is returned by Record after Finalize has run.
	ErrFinalized = errors.New("citation table already finalized")

	// ErrUnknownBlock is returned by Finalize when the ordered sequence
	// references a block id that was never recorded.
	ErrUnknownBlock = errors.New("unknown citation block id")
)

// SourceUse describes one use of an external source by a worker.
type SourceUse struct {
	SourceKey string `json:"source_key"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
}

// Source is one deduplicated entry in the citation table. Metadata comes from
// the first sighting and is backfilled when a later use carries more detail.
type Source struct {
	Key          string `json:"key"`
	Title        string `json:"title,omitempty"`
	URL          string `json:"url,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
	DisplayIndex int    `json:"display_index,omitempty"` // 0 until finalized
}

// Citation is one raw in-text reference emission. Many citations may map to
// the same source key; all of them share one display index after Finalize.
type Citation struct {
	BlockID      string `json:"block_id"`
	SourceKey    string `json:"source_key"`
	DisplayIndex int    `json:"display_index,omitempty"`
	OriginPhase  Phase  `json:"origin_phase"`
}

// Manager assigns block ids and deduplicates sources across the whole run.
// All methods are safe for concurrent use; the dedup table sits behind a
// single exclusive section (contention is low, a per-key guard is not worth
// the bookkeeping).
type Manager struct {
	mu sync.Mutex

	blocks    map[string]*Citation
	blockList []string // emission order, for deterministic Table/Blocks output
	sources   map[string]*Source
	sourceSeq []string // first-sighting order

	seq       map[Phase]int
	phaseDone map[Phase]bool
	finalized bool
	mapping   map[string]int
}

// NewManager returns an empty citation manager.
func NewManager() *Manager {
	return &Manager{
		blocks:    make(map[string]*Citation),
		sources:   make(map[string]*Source),
		seq:       map[Phase]int{PhasePlanning: 0, PhaseResearching: 0},
		phaseDone: map[Phase]bool{PhasePlanning: false, PhaseResearching: false},
	}
}

func blockPrefix(phase Phase) string {
	if phase == PhasePlanning {
		return "plan"
	}
	return "res"
}

// Record registers one raw citation use and returns its fresh block id.
// A repeated source key links the new block to the existing source entry.
func (m *Manager) Record(use SourceUse, phase Phase) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finalized {
		return "", fmt.Errorf("record %q: %w", use.SourceKey, ErrFinalized)
	}

	src, ok := m.sources[use.SourceKey]
	if !ok {
		src = &Source{Key: use.SourceKey, Title: use.Title, URL: use.URL, Snippet: use.Snippet}
		m.sources[use.SourceKey] = src
		m.sourceSeq = append(m.sourceSeq, use.SourceKey)
	} else {
		if src.Title == "" {
			src.Title = use.Title
		}
		if src.URL == "" {
			src.URL = use.URL
		}
		if src.Snippet == "" {
			src.Snippet = use.Snippet
		}
	}

	m.seq[phase]++
	blockID := fmt.Sprintf("%s-%04d", blockPrefix(phase), m.seq[phase])
	c := &Citation{BlockID: blockID, SourceKey: use.SourceKey, OriginPhase: phase}
	m.blocks[blockID] = c
	m.blockList = append(m.blockList, blockID)
	return blockID, nil
}

// CompletePhase marks a phase finished. Finalize requires both phases.
func (m *Manager) CompletePhase(phase Phase) {
	m.mu.Lock()
	m.phaseDone[phase] = true
	m.mu.Unlock()
}

// Finalize assigns display indices per unique source key in first-appearance
// order of orderedBlockIDs (the order blocks appear in the rendered report)
// and returns a mapping from every recorded block id to its display index.
//
// Blocks whose source never appears in orderedBlockIDs are appended after the
// appearing ones, in first-sighting order, so every block resolves. Repeated
// calls with the same sequence yield the same mapping.
func (m *Manager) Finalize(orderedBlockIDs []string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.phaseDone[PhasePlanning] || !m.phaseDone[PhaseResearching] {
		return nil, ErrPrematureFinalization
	}

	next := 1
	indexByKey := make(map[string]int, len(m.sources))
	for _, blockID := range orderedBlockIDs {
		c, ok := m.blocks[blockID]
		if !ok {
			return nil, fmt.Errorf("finalize: %q: %w", blockID, ErrUnknownBlock)
		}
		if _, assigned := indexByKey[c.SourceKey]; !assigned {
			indexByKey[c.SourceKey] = next
			next++
		}
	}
	// Sources recorded but absent from the rendered text still get stable
	// trailing indices in first-sighting order.
	for _, key := range m.sourceSeq {
		if _, assigned := indexByKey[key]; !assigned {
			indexByKey[key] = next
			next++
		}
	}

	mapping := make(map[string]int, len(m.blocks))
	for _, blockID := range m.blockList {
		c := m.blocks[blockID]
		idx := indexByKey[c.SourceKey]
		c.DisplayIndex = idx
		mapping[blockID] = idx
	}
	for key, idx := range indexByKey {
		m.sources[key].DisplayIndex = idx
	}

	m.finalized = true
	m.mapping = mapping
	return mapping, nil
}

// Finalized reports whether Finalize has run.
func (m *Manager) Finalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

// Table returns the deduplicated sources ordered by display index when
// finalized, otherwise by first sighting.
func (m *Manager) Table() []Source {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Source, 0, len(m.sourceSeq))
	for _, key := range m.sourceSeq {
		out = append(out, *m.sources[key])
	}
	if m.finalized {
		// Insertion sort by display index; tables are small.
		for i := 1; i < len(out); i++ {
			for j := i; j > 0 && out[j].DisplayIndex < out[j-1].DisplayIndex; j-- {
				out[j], out[j-1] = out[j-1], out[j]
			}
		}
	}
	return out
}

// Blocks returns all recorded citations in emission order.
func (m *Manager) Blocks() []Citation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Citation, 0, len(m.blockList))
	for _, id := range m.blockList {
		out = append(out, *m.blocks[id])
	}
	return out
}

// Lookup returns the citation for a block id.
func (m *Manager) Lookup(blockID string) (Citation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.blocks[blockID]
	if !ok {
		return Citation{}, false
	}
	return *c, true
}

// SourceCount returns the number of deduplicated sources.
func (m *Manager) SourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}
