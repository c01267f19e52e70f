package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vizgraph/internal/path"
)

func TestDedupFirstSeen(t *testing.T) {
	in := []any{"a", "b", "a", "c", "b", "a"}
	assert.Equal(t, []any{"a", "b", "c"}, DedupFirstSeen(in))
}

func TestDedupFirstSeen_DistinguishesTypes(t *testing.T) {
	// "1" and 1 are different values even though they print alike.
	in := []any{"1", 1, "1"}
	assert.Equal(t, []any{"1", 1}, DedupFirstSeen(in))
}

func TestConstructPath_MemoizesPerSubPath(t *testing.T) {
	g, _ := buildChain(t, "a", "b", "c")
	rg := NewResultGraph(g)

	p := path.New("ds:a", "ds:c")
	require.NoError(t, rg.ConstructPath(p))

	first, err := rg.Result(p)
	require.NoError(t, err)

	// A second construction of the same path must reuse every memoized
	// sub-path result.
	require.NoError(t, rg.ConstructPath(p))
	second, err := rg.Result(p)
	require.NoError(t, err)
	assert.Same(t, first, second)

	sub, err := rg.Result(path.New("ds:a", "ds:b"))
	require.NoError(t, err)
	require.NoError(t, rg.ConstructPath(path.New("ds:a", "ds:b")))
	subAgain, err := rg.Result(path.New("ds:a", "ds:b"))
	require.NoError(t, err)
	assert.Same(t, sub, subAgain)
}

func TestConstructPath_JoinsAlongChain(t *testing.T) {
	g, _ := buildChain(t, "a", "b")
	rg := NewResultGraph(g)

	require.NoError(t, rg.ConstructPath(path.New("ds:a", "ds:b")))

	result, err := rg.Result(path.New("ds:a", "ds:b"))
	require.NoError(t, err)

	joined, ok := result.(*stubResult)
	require.True(t, ok)
	assert.Equal(t, "ds:b", joined.Node().Mangled())
	require.NotNil(t, joined.joinedFrom)
	assert.Equal(t, "ds:a", joined.joinedFrom.Node().Mangled())
}

func TestConstructPath_UsesAdaptorAcrossBackends(t *testing.T) {
	g := New()
	rack := newStub("db", "rack", "R1", "R2")
	power := newStub("ts", "power", 300.0)
	require.NoError(t, g.AddNode(rack, nil))
	require.NoError(t, g.AddEdge(rack, power))
	require.NoError(t, g.RegisterAdaptor(rack, power, NewIdentityAdaptor(rack, power)))

	rg := NewResultGraph(g)
	require.NoError(t, rg.ConstructPath(path.New("db:rack", "ts:power")))

	result, err := rg.Result(path.New("db:rack", "ts:power"))
	require.NoError(t, err)
	_, isAdapted := result.(*AdaptedResult)
	assert.True(t, isAdapted, "adaptor edge must produce an AdaptedResult, not a join")
}

func TestResult_UnconstructedPathIsNotFound(t *testing.T) {
	g, _ := buildChain(t, "a", "b")
	rg := NewResultGraph(g)

	_, err := rg.Result(path.New("ds:a", "ds:b"))
	assert.True(t, IsNotFound(err))
}

func TestAdaptedResult_TranslatesConstraints(t *testing.T) {
	// Adaptor X -> Y with {"a": "b"}. Constraining a Y-rooted result by
	// {X: "a"} must behave exactly like constraining by {Y: "b"}.
	nodeX := newStub("db", "x")
	nodeY := newStub("ts", "y", "b", "c")
	adaptor := NewRelabelAdaptor(nodeX, nodeY, map[string]string{"a": "b"})

	adapted := NewAdaptedResult(nodeY.Result(), adaptor)

	viaAdaptor := Constraints{}
	viaAdaptor.Set(nodeX, "a")
	got, err := adapted.Values(viaAdaptor)
	require.NoError(t, err)

	direct := Constraints{}
	direct.Set(nodeY, "b")
	want, err := nodeY.Result().Values(direct)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, []any{"b"}, got)

	// The caller's constraint map must not be mutated.
	_, hasY := viaAdaptor.Get(nodeY)
	assert.False(t, hasY)
}

func TestRelabelAdaptor_Bidirectional(t *testing.T) {
	first := newStub("db", "rack")
	second := newStub("ts", "rack")
	adaptor := NewRelabelAdaptor(first, second, map[string]string{"R1": "r1"})

	assert.Equal(t, "r1", adaptor.AdaptValue("R1"))
	assert.Equal(t, "R1", adaptor.AdaptValue("r1"))
	assert.Equal(t, "other", adaptor.AdaptValue("other"))

	to, err := adaptor.AdaptNode(first)
	require.NoError(t, err)
	assert.Equal(t, "ts:rack", to.Mangled())

	back, err := adaptor.AdaptNode(second)
	require.NoError(t, err)
	assert.Equal(t, "db:rack", back.Mangled())
}

func TestIdentityAdaptor_Directional(t *testing.T) {
	from := newStub("db", "host")
	to := &stubNode{Info: NewInfo("ts", "instance", KindString)}
	adaptor := NewIdentityAdaptor(from, to)

	assert.True(t, adaptor.AppliesTo(from))
	assert.False(t, adaptor.AppliesTo(to))

	_, err := adaptor.AdaptNode(to)
	assert.Error(t, err)

	adapted, err := adaptor.AdaptNode(from)
	require.NoError(t, err)
	assert.Equal(t, "ts:instance", adapted.Mangled())
	assert.Equal(t, "42", adaptor.AdaptValue(42), "value coerced to target kind")
}
