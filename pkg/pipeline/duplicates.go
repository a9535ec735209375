package pipeline

import (
	"fmt"

	"github.com/mbianchi/photarc/internal/logger"
	"github.com/mbianchi/photarc/pkg/dedupe"
)

// The duplicate index lives in memory and mirrors the stored fingerprints.
// The phash stage unions each new photo against it as soon as the hash is
// written; the barrier persists the groups once the flow drains.

// loadDuplicatesLocked fills the index from the catalog on first use.
// Callers hold dedupeMu.
func (p *Pipeline) loadDuplicatesLocked() error {
	if p.dupes != nil {
		return nil
	}
	hashes, err := p.store.AllPerceptualHashes()
	if err != nil {
		return fmt.Errorf("failed to load fingerprints: %w", err)
	}
	ix := dedupe.NewIndex()
	for _, h := range hashes {
		v, err := dedupe.ParseHex(h.PHash)
		if err != nil {
			continue
		}
		ix.Add(dedupe.Fingerprint{FileID: h.FileID, PHash: v})
	}
	p.dupes = ix
	return nil
}

// recordFingerprint unions a freshly hashed photo into the duplicate index.
// Index trouble never fails the stage; the hash is already durable and the
// index rebuilds from the catalog on next load.
func (p *Pipeline) recordFingerprint(fileID, phashHex string) {
	v, err := dedupe.ParseHex(phashHex)
	if err != nil {
		return
	}
	p.dedupeMu.Lock()
	defer p.dedupeMu.Unlock()
	if err := p.loadDuplicatesLocked(); err != nil {
		logger.Warn("failed to update duplicate index", "file_id", fileID, "error", err)
		return
	}
	p.dupes.Add(dedupe.Fingerprint{FileID: fileID, PHash: v})
}

// duplicateGroups returns the current equivalence classes for persisting.
func (p *Pipeline) duplicateGroups() ([][]string, error) {
	p.dedupeMu.Lock()
	defer p.dedupeMu.Unlock()
	if err := p.loadDuplicatesLocked(); err != nil {
		return nil, err
	}
	return p.dupes.Groups(), nil
}

// resetDuplicateIndex drops the in-memory index so the next use reloads
// from the catalog. Clear-index calls it.
func (p *Pipeline) resetDuplicateIndex() {
	p.dedupeMu.Lock()
	p.dupes = nil
	p.dedupeMu.Unlock()
}
