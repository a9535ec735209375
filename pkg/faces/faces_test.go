package faces

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingRoundTrip(t *testing.T) {
	v := []float32{0.1, -0.5, 3.25, 0}
	decoded, err := DecodeEmbedding(EncodeEmbedding(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

func TestDecodeEmbeddingBadLength(t *testing.T) {
	_, err := DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	assert.InDelta(t, 0, Cosine(a, b), 1e-9)
	assert.InDelta(t, 1, Cosine(a, a), 1e-9)
	assert.InDelta(t, -1, Cosine(a, []float32{-1, 0, 0}), 1e-9)

	assert.Zero(t, Cosine(a, []float32{1, 2}), "length mismatch")
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{0, 0}), "zero norm")
}

func TestAssignJoinsCloseCluster(t *testing.T) {
	cl := NewClusterer([]Member{
		{FaceID: 1, PersonID: 10, Embedding: []float32{1, 0, 0}},
		{FaceID: 2, PersonID: 10, Embedding: []float32{0.9, 0.1, 0}},
	})

	a := cl.Assign([]float32{0.95, 0.05, 0})
	assert.False(t, a.NewPerson)
	assert.Equal(t, uint(10), a.PersonID)
}

func TestAssignFoundsNewPerson(t *testing.T) {
	cl := NewClusterer([]Member{
		{FaceID: 1, PersonID: 10, Embedding: []float32{1, 0, 0}},
	})

	a := cl.Assign([]float32{0, 0, 1})
	assert.True(t, a.NewPerson)

	// Register the new person; the next similar face joins it.
	cl.AddPerson(20, []float32{0, 0, 1})
	b := cl.Assign([]float32{0, 0.1, 0.99})
	assert.False(t, b.NewPerson)
	assert.Equal(t, uint(20), b.PersonID)
}

func TestNeedsRecluster(t *testing.T) {
	cl := NewClusterer(nil)
	cl.AddPerson(1, []float32{1, 0})

	for i := 0; i < ReclusterEvery-1; i++ {
		cl.Assign([]float32{1, 0})
		assert.False(t, cl.NeedsRecluster())
	}
	cl.Assign([]float32{1, 0})
	assert.True(t, cl.NeedsRecluster())
	assert.False(t, cl.NeedsRecluster(), "counter resets after firing")
}

func TestReclusterSeparatesGroups(t *testing.T) {
	members := []Member{
		{FaceID: 1, Embedding: []float32{1, 0, 0}},
		{FaceID: 2, Embedding: []float32{0.95, 0.05, 0}},
		{FaceID: 3, Embedding: []float32{0, 0, 1}},
		{FaceID: 4, Embedding: []float32{0, 0.05, 0.95}},
	}
	labels := Recluster(members)
	require.Len(t, labels, 4)
	assert.Equal(t, labels[1], labels[2])
	assert.Equal(t, labels[3], labels[4])
	assert.NotEqual(t, labels[1], labels[3])
}

func TestReclusterDeterministic(t *testing.T) {
	members := []Member{
		{FaceID: 3, Embedding: []float32{0, 1}},
		{FaceID: 1, Embedding: []float32{1, 0}},
		{FaceID: 2, Embedding: []float32{1, 0.05}},
	}
	assert.Equal(t, Recluster(members), Recluster(members))
}

func TestNoopDetector(t *testing.T) {
	var d NoopDetector
	assert.False(t, d.Available())
	_, err := d.Detect(context.Background(), "x.jpg")
	assert.Error(t, err)
}
