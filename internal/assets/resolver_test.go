package assets

import (
	"testing"

	"github.com/dl-alexandre/bimview/internal/model"
	testutil "github.com/dl-alexandre/bimview/internal/testing"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func siblings() []types.RemoteNode {
	return []types.RemoteNode{
		testutil.TestFolder("f1", "model.bin", "p"),
		testutil.TestFile("g1", "model.gltf", "p"),
		testutil.TestFile("b1", "model.bin", "p"),
		testutil.TestFile("b2", "MODEL.BIN", "p"),
		testutil.TestFile("o1", "other.bin", "p"),
	}
}

func TestResolve_GLTFFindsCompanion(t *testing.T) {
	r := NewResolver(utils.DefaultSupportedExtensions, MatchExact)
	res, err := r.Resolve(testutil.TestSelection("g1", "model.gltf", "p"), siblings())
	require.NoError(t, err)

	assert.Equal(t, model.FormatGLTF, res.Format)
	require.NotNil(t, res.Auxiliary)
	assert.Equal(t, "b1", res.Auxiliary.ID)
	assert.Empty(t, res.Warnings)
}

func TestResolve_MissingCompanionWarns(t *testing.T) {
	r := NewResolver(utils.DefaultSupportedExtensions, MatchExact)
	res, err := r.Resolve(testutil.TestSelection("g2", "duct.gltf", "p"), siblings())
	require.NoError(t, err)

	assert.Nil(t, res.Auxiliary)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, utils.ErrCodeCompanionMissing, res.Warnings[0].Code)
	assert.Contains(t, res.Warnings[0].Message, "duct.bin")
}

func TestResolve_MatchModes(t *testing.T) {
	nodes := []types.RemoteNode{testutil.TestFile("b2", "Model.BIN", "p")}
	file := testutil.TestSelection("g1", "Model.gltf", "p")

	exact, err := NewResolver(nil, MatchExact).Resolve(file, nodes)
	require.NoError(t, err)
	assert.Nil(t, exact.Auxiliary)

	fold, err := NewResolver(nil, MatchFold).Resolve(file, nodes)
	require.NoError(t, err)
	require.NotNil(t, fold.Auxiliary)
	assert.Equal(t, "b2", fold.Auxiliary.ID)
}

func TestResolve_NoCompanionFormats(t *testing.T) {
	r := NewResolver(utils.DefaultSupportedExtensions, MatchExact)
	for _, name := range []string{"AR1.ifc", "TS1.GLB"} {
		res, err := r.Resolve(testutil.TestSelection("x", name, "p"), siblings())
		require.NoError(t, err, name)
		assert.Nil(t, res.Auxiliary, name)
		assert.Empty(t, res.Warnings, name)
	}
}

func TestResolve_Unsupported(t *testing.T) {
	r := NewResolver([]string{".ifc"}, MatchExact)
	_, err := r.Resolve(testutil.TestSelection("x", "duct.glb", "p"), nil)
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeUnsupportedFormat, utils.ErrorCode(err))

	assert.True(t, r.Supports("wall.IFC"))
	assert.False(t, r.Supports("notes.txt"))
}

func TestSniffAndVerify(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		want   model.Format
		wantOK bool
	}{
		{"ifc", []byte(testutil.SampleIFC), model.FormatIFC, true},
		{"ifc with bom", append([]byte("\xef\xbb\xbf\n"), testutil.SampleIFC...), model.FormatIFC, true},
		{"glb", testutil.TriangleGLB(0), model.FormatGLB, true},
		{"gltf", testutil.TriangleGLTF("x.bin", 0), model.FormatGLTF, true},
		{"text", []byte("hello"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Sniff(tt.data)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.NoError(t, Verify("a.ifc", model.FormatIFC, []byte(testutil.SampleIFC)))
	assert.NoError(t, Verify("a.gltf", model.FormatGLTF, testutil.TriangleGLB(0)))

	err := Verify("a.glb", model.FormatGLB, []byte(testutil.SampleIFC))
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeUnsupportedFormat, utils.ErrorCode(err))
	assert.Contains(t, err.Error(), "ifc content")
}

func TestCompanionName(t *testing.T) {
	assert.Equal(t, "HV1.bin", CompanionName("HV1.gltf"))
	assert.Equal(t, "a.b.bin", CompanionName("a.b.gltf"))
}
