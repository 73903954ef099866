package rescue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocIndexLayout(t *testing.T) {
	S, T := 3, 2
	seen := make(map[int]bool)
	for s := 0; s < S; s++ {
		for tm := 0; tm < T; tm++ {
			idx := GetAllocIndex(s, tm, T)
			assert.False(t, seen[idx], "index %d assigned twice", idx)
			seen[idx] = true
			assert.GreaterOrEqual(t, idx, 0)
			assert.Less(t, idx, S*T)
		}
	}
	// theta block starts right after the allocation block
	assert.Equal(t, S*T, GetThetaIndex(0, S, T))
	assert.Equal(t, S*T+4, GetThetaIndex(4, S, T))
}

func TestCalcNeighborhoods(t *testing.T) {
	coords := [][]float64{{0, 0}, {3, 0}, {0, 4}, {100, 100}}
	hoods := CalcNeighborhoods(coords, 5)

	assert.ElementsMatch(t, []int{0, 1, 2}, hoods[0])
	assert.ElementsMatch(t, []int{1, 0, 2}, hoods[1])
	assert.ElementsMatch(t, []int{2, 0, 1}, hoods[2])
	assert.Equal(t, []int{3}, hoods[3], "remote site only reaches itself")
}

func TestCalcNeighborhoodsRadiusBoundary(t *testing.T) {
	coords := [][]float64{{0, 0}, {5, 0}}
	hoods := CalcNeighborhoods(coords, 5)
	assert.Contains(t, hoods[0], 1, "distance equal to radius is reachable")
}

func TestIsIntegral(t *testing.T) {
	assert.True(t, isIntegral(0))
	assert.True(t, isIntegral(1.0000000001))
	assert.True(t, isIntegral(2.9999999))
	assert.False(t, isIntegral(0.5))
	assert.False(t, isIntegral(1.3))
}

func TestPrint2DArray(t *testing.T) {
	assert.Equal(t, "1,2,\n3,\n", Print2DArray([][]int{{1, 2}, {3}}))
	assert.Equal(t, "", Print2DArray(nil))
}

func TestCutIsOptimality(t *testing.T) {
	assert.True(t, Cut{Kind: CutOptimality}.IsOptimality())
	assert.False(t, Cut{Kind: CutFeasibility}.IsOptimality())
}
