package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance(0xffff, 0xffff))
	assert.Equal(t, 64, Distance(0, ^uint64(0)))
	assert.Equal(t, 1, Distance(0b1000, 0b0000))
}

func TestParseHex(t *testing.T) {
	v, err := ParseHex("ff00ff00ff00ff00")
	require.NoError(t, err)
	assert.Equal(t, uint64(0xff00ff00ff00ff00), v)

	_, err = ParseHex("not-hex")
	assert.Error(t, err)
}

func TestGroupExactDuplicates(t *testing.T) {
	groups := Group([]Fingerprint{
		{FileID: "a", PHash: 0x1234},
		{FileID: "b", PHash: 0x1234},
		{FileID: "c", PHash: 0xffffffffffffffff},
	})
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b"}, groups[0])
}

func TestGroupWithinThreshold(t *testing.T) {
	base := uint64(0xaaaaaaaaaaaaaaaa)
	near := base ^ 0x3f // 6 bits flipped: exactly at the threshold
	far := base ^ 0x7f  // 7 bits flipped: outside

	groups := Group([]Fingerprint{
		{FileID: "a", PHash: base},
		{FileID: "b", PHash: near},
		{FileID: "c", PHash: far},
	})
	// c is 7 bits from a but only 1 bit from b, so the chain pulls all
	// three into one transitive group.
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b", "c"}, groups[0])
}

func TestGroupOutsideThreshold(t *testing.T) {
	groups := Group([]Fingerprint{
		{FileID: "a", PHash: 0},
		{FileID: "b", PHash: ^uint64(0)},
	})
	assert.Empty(t, groups)
}

func TestGroupTransitiveChain(t *testing.T) {
	// a-b close, b-c close, a-c distant: one group via transitivity.
	a := uint64(0)
	b := a ^ 0x0f       // 4 bits from a
	c := b ^ 0xf0       // 4 bits from b, 8 bits from a
	groups := Group([]Fingerprint{
		{FileID: "a", PHash: a},
		{FileID: "b", PHash: b},
		{FileID: "c", PHash: c},
	})
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 3)
}

func TestGroupDeterministicOrder(t *testing.T) {
	fps := []Fingerprint{
		{FileID: "z", PHash: 0x10},
		{FileID: "a", PHash: 0x10},
		{FileID: "m", PHash: 0xff00},
		{FileID: "n", PHash: 0xff00},
	}
	g1 := Group(fps)
	g2 := Group(fps)
	assert.Equal(t, g1, g2)
	require.Len(t, g1, 2)
	assert.Equal(t, []string{"a", "z"}, g1[0])
	assert.Equal(t, []string{"m", "n"}, g1[1])
}

func TestIndexIncrementalMatchesBatch(t *testing.T) {
	fps := []Fingerprint{
		{FileID: "a", PHash: 0},
		{FileID: "b", PHash: 0x03}, // 2 bits from a
		{FileID: "c", PHash: 0xffff_0000_0000_0000},
		{FileID: "d", PHash: 0x0f}, // 2 bits from b, 4 from a
		{FileID: "e", PHash: 0xffff_0000_0000_0003},
	}

	ix := NewIndex()
	for i, fp := range fps {
		ix.Add(fp)
		assert.Equal(t, Group(fps[:i+1]), ix.Groups(), "after %d adds", i+1)
	}
	assert.Equal(t, 5, ix.Len())
}

func TestIndexReAddIsNoOp(t *testing.T) {
	ix := NewIndex()
	ix.Add(Fingerprint{FileID: "a", PHash: 0})
	ix.Add(Fingerprint{FileID: "a", PHash: 0xffff})
	assert.Equal(t, 1, ix.Len())
	assert.Empty(t, ix.Groups())
}
