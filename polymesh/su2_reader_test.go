package polymesh

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempSU2File(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "test.su2")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return tmpFile
}

func TestReadSU2(t *testing.T) {
	testCases := []struct {
		name      string
		content   string
		numCells  int
		numPoints int
		cell0     []int64
		point1    [3]float64
		errMsg    string
	}{
		{
			name: "2D square of two triangles and a quad",
			content: `% square
NDIME= 2
NELEM= 3
5 0 1 2 0
5 0 2 3 1
9 1 4 5 2 2
NPOIN= 6
0.0 0.0 0
1.0 0.0 1
1.0 1.0 2
0.0 1.0 3
2.0 0.0 4
2.0 1.0 5
NMARK= 1
MARKER_TAG= wall
MARKER_ELEMS= 1
3 0 1
`,
			numCells:  3,
			numPoints: 6,
			cell0:     []int64{0, 1, 2},
			point1:    [3]float64{1, 0, 0},
		},
		{
			name: "3D surface from markers, volume skipped",
			content: `NDIME= 3
NELEM= 1
10 0 1 2 3 0
NPOIN= 4
0.0 0.0 0.0 0
1.0 0.0 0.0 1
0.0 1.0 0.0 2
0.0 0.0 1.0 3
NMARK= 2
MARKER_TAG= bottom
MARKER_ELEMS= 1
5 0 2 1
MARKER_TAG= sides
MARKER_ELEMS= 3
5 0 1 3
5 1 2 3
5 2 0 3
`,
			numCells:  4,
			numPoints: 4,
			cell0:     []int64{0, 2, 1},
			point1:    [3]float64{1, 0, 0},
		},
		{
			name: "Points without trailing index",
			content: `NDIME= 2
NPOIN= 3
0.0 0.0
1.0 0.0
0.0 1.0
NELEM= 1
5 0 1 2
`,
			numCells:  1,
			numPoints: 3,
			cell0:     []int64{0, 1, 2},
			point1:    [3]float64{1, 0, 0},
		},
		{
			name: "Bad dimension",
			content: `NDIME= 4
`,
			errMsg: "NDIME",
		},
		{
			name: "Vertex out of range",
			content: `NDIME= 2
NELEM= 1
5 0 1 7
NPOIN= 3
0.0 0.0
1.0 0.0
0.0 1.0
`,
			errMsg: "references point 7",
		},
		{
			name: "Truncated points",
			content: `NDIME= 2
NPOIN= 3
0.0 0.0
`,
			errMsg: "unexpected end of file",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ReadSU2(createTempSU2File(t, tc.content))
			if tc.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.numCells, m.NumCells())
			assert.Equal(t, tc.numPoints, m.NumPoints())
			assert.Equal(t, tc.cell0, m.Polys.Cell(0))
			assert.Equal(t, tc.point1, m.Point(1))
		})
	}
	_, err := ReadSU2(filepath.Join(t.TempDir(), "missing.su2"))
	assert.Error(t, err)
}
