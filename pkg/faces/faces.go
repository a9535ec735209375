// Package faces turns face detections into persistent person clusters.
//
// Detection itself is pluggable: the pipeline feeds photos to a Detector and
// stores whatever comes back. Clustering is local and incremental: each new
// face is compared against per-person centroids and either joins the closest
// person or founds a new one, with a periodic full re-cluster to undo early
// mis-assignments.
package faces

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// EmbeddingDim is the expected length of face embedding vectors.
const EmbeddingDim = 512

// SimilarityThreshold is the minimum cosine similarity for a face to join
// an existing person cluster.
const SimilarityThreshold = 0.55

// Detection is one face found in an image.
type Detection struct {
	// Bounding box in source-image pixel coordinates.
	X, Y, W, H int
	// Embedding is a unit-norm vector describing the face.
	Embedding []float32
}

// Detector finds faces in an image file. Implementations wrap whatever
// model is available; a nil or unavailable detector makes the faces stage
// report itself unavailable so photos are marked skipped, not failed.
type Detector interface {
	// Detect returns all faces in the image at absPath.
	Detect(ctx context.Context, absPath string) ([]Detection, error)
	// Available reports whether the detector can run at all.
	Available() bool
}

// NoopDetector is the default when no model is configured. Never available.
type NoopDetector struct{}

func (NoopDetector) Detect(context.Context, string) ([]Detection, error) {
	return nil, fmt.Errorf("no face detector configured")
}

func (NoopDetector) Available() bool { return false }

// EncodeEmbedding packs a float32 vector into the little-endian blob stored
// in the catalog.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding unpacks a stored blob back into a vector.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Cosine returns the cosine similarity of two vectors. Zero-norm inputs and
// length mismatches yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
