package faces

import (
	"sort"
	"sync"
)

// ReclusterEvery is how many newly assigned faces trigger a full re-cluster.
const ReclusterEvery = 64

// Member is one face known to the clusterer.
type Member struct {
	FaceID    uint
	PersonID  uint // 0 means unassigned
	Embedding []float32
}

// Assignment maps a face to the person the clusterer chose for it.
// NewPerson is set when no existing cluster was close enough.
type Assignment struct {
	FaceID    uint
	PersonID  uint // 0 when NewPerson
	NewPerson bool
}

// Clusterer maintains per-person centroids and assigns faces incrementally.
// Safe for concurrent use.
type Clusterer struct {
	mu        sync.Mutex
	centroids map[uint]*centroid
	sinceFull int
}

type centroid struct {
	sum   []float64
	count int
}

func (c *centroid) add(v []float32) {
	if c.sum == nil {
		c.sum = make([]float64, len(v))
	}
	for i := range v {
		c.sum[i] += float64(v[i])
	}
	c.count++
}

func (c *centroid) mean() []float32 {
	out := make([]float32, len(c.sum))
	for i, s := range c.sum {
		out[i] = float32(s / float64(c.count))
	}
	return out
}

// NewClusterer builds a clusterer primed with the existing assignments.
func NewClusterer(members []Member) *Clusterer {
	cl := &Clusterer{centroids: make(map[uint]*centroid)}
	for _, m := range members {
		if m.PersonID == 0 || len(m.Embedding) == 0 {
			continue
		}
		c, ok := cl.centroids[m.PersonID]
		if !ok {
			c = &centroid{}
			cl.centroids[m.PersonID] = c
		}
		c.add(m.Embedding)
	}
	return cl
}

// Assign places one face: the closest centroid wins if its similarity
// reaches SimilarityThreshold, otherwise the face founds a new person.
// The caller creates the person row for NewPerson results and must call
// AddPerson with the new ID so later faces can join it.
func (cl *Clusterer) Assign(embedding []float32) Assignment {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	var bestID uint
	bestSim := -1.0
	for id, c := range cl.centroids {
		sim := Cosine(embedding, c.mean())
		if sim > bestSim {
			bestSim = sim
			bestID = id
		}
	}

	cl.sinceFull++
	if bestSim >= SimilarityThreshold {
		cl.centroids[bestID].add(embedding)
		return Assignment{PersonID: bestID}
	}
	return Assignment{NewPerson: true}
}

// AddPerson registers a newly created person with its founding face.
func (cl *Clusterer) AddPerson(personID uint, embedding []float32) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	c := &centroid{}
	c.add(embedding)
	cl.centroids[personID] = c
}

// NeedsRecluster reports whether enough faces accumulated since the last
// full pass, and resets the counter when it fires.
func (cl *Clusterer) NeedsRecluster() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.sinceFull < ReclusterEvery {
		return false
	}
	cl.sinceFull = 0
	return true
}

// Recluster runs a full density pass over all faces and returns the new
// face-to-cluster labeling. Cluster labels are arbitrary dense ints; the
// caller maps them onto person rows, preserving existing person identity
// where clusters overlap.
//
// The pass is a greedy leader algorithm: faces are visited in FaceID order
// and each joins the first leader within the similarity threshold, becoming
// a leader otherwise. Deterministic and linear in leaders per face.
func Recluster(members []Member) map[uint]int {
	sorted := append([]Member(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FaceID < sorted[j].FaceID })

	type leader struct {
		c     centroid
		label int
	}
	var leaders []*leader
	labels := make(map[uint]int, len(sorted))

	for _, m := range sorted {
		if len(m.Embedding) == 0 {
			continue
		}
		assigned := false
		for _, l := range leaders {
			if Cosine(m.Embedding, l.c.mean()) >= SimilarityThreshold {
				l.c.add(m.Embedding)
				labels[m.FaceID] = l.label
				assigned = true
				break
			}
		}
		if !assigned {
			l := &leader{label: len(leaders)}
			l.c.add(m.Embedding)
			leaders = append(leaders, l)
			labels[m.FaceID] = l.label
		}
	}
	return labels
}
