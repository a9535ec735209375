// Package dedupe groups near-identical photos by the Hamming distance of
// their 64-bit perceptual fingerprints.
package dedupe

import (
	"fmt"
	"math/bits"
	"sort"
	"strconv"
)

// Threshold is the maximum Hamming distance between two perceptual hashes
// for the photos to count as near-duplicates.
const Threshold = 6

// Fingerprint is one photo's 64-bit perceptual hash.
type Fingerprint struct {
	FileID string
	PHash  uint64
}

// ParseHex decodes the hex-encoded 64-bit hash stored in the catalog.
func ParseHex(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad perceptual hash %q: %w", s, err)
	}
	return v, nil
}

// Distance is the Hamming distance between two 64-bit hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Index maintains duplicate groups incrementally: every fingerprint added
// is unioned with each known hash within Threshold, so groups are correct
// after any prefix of a scan, not just at the end.
type Index struct {
	fps []Fingerprint
	pos map[string]int
	uf  unionFind
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{pos: make(map[string]int)}
}

// Add registers one photo's fingerprint and unions it with every existing
// one within Threshold. Re-adding a known file is a no-op. The popcount
// scan is linear per photo; libraries are typically tens of thousands of
// photos, so a BK-tree is not worth it yet.
func (ix *Index) Add(fp Fingerprint) {
	if _, ok := ix.pos[fp.FileID]; ok {
		return
	}
	i := len(ix.fps)
	ix.fps = append(ix.fps, fp)
	ix.pos[fp.FileID] = i
	ix.uf.addNode()
	for j := 0; j < i; j++ {
		if Distance(fp.PHash, ix.fps[j].PHash) <= Threshold {
			ix.uf.union(i, j)
		}
	}
}

// Len reports how many fingerprints the index holds.
func (ix *Index) Len() int { return len(ix.fps) }

// Groups returns the current equivalence classes. Singletons are omitted;
// groups and their members are sorted for determinism.
func (ix *Index) Groups() [][]string {
	byRoot := make(map[int][]string)
	for i, fp := range ix.fps {
		root := ix.uf.find(i)
		byRoot[root] = append(byRoot[root], fp.FileID)
	}

	var groups [][]string
	for _, members := range byRoot {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		groups = append(groups, members)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

// Group clusters a whole fingerprint set at once. Convenience for callers
// that do not keep a live Index.
func Group(fps []Fingerprint) [][]string {
	ix := NewIndex()
	for _, fp := range fps {
		ix.Add(fp)
	}
	return ix.Groups()
}

// unionFind is a dense-int disjoint set with union by rank and path halving.
type unionFind struct {
	parent []int
	rank   []int
}

func (uf *unionFind) addNode() {
	uf.parent = append(uf.parent, len(uf.parent))
	uf.rank = append(uf.rank, 0)
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
