package rescue

import (
	"fmt"
	"math"
	"regexp"
)

// GetAllocIndex maps (site, team) to the column of the allocation variable
// X_{site,team} in the master model.
func GetAllocIndex(site, team, teamCount int) int {
	return site*teamCount + team
}

// GetThetaIndex maps scenario k to the column of the recourse variable
// theta_k. The theta block starts right after the allocation block.
func GetThetaIndex(k, siteCount, teamCount int) int {
	return siteCount*teamCount + k
}

// CalcNeighborhoods derives the reachability sets from the site coordinates:
// site i is a neighbor of site j when their Euclidean distance is within the
// radius. Every site is its own neighbor.
func CalcNeighborhoods(coordinates [][]float64, radius float64) [][]int {
	n := len(coordinates)
	result := make([][]int, n)
	for j := 0; j < n; j++ {
		result[j] = append(result[j], j)
		for i := 0; i < n; i++ {
			if i == j {
				continue
			}
			xDist := coordinates[i][0] - coordinates[j][0]
			yDist := coordinates[i][1] - coordinates[j][1]
			distance := math.Sqrt(math.Pow(xDist, 2) + math.Pow(yDist, 2))
			if distance <= radius {
				result[j] = append(result[j], i)
			}
		}
	}
	return result
}

func Print2DArray(a [][]int) string {
	res := ""
	for _, x := range a {
		for _, y := range x {
			res += fmt.Sprintf("%d,", y)
		}
		res += fmt.Sprintln("")
	}
	return res
}

func SanitizeJsonArrayLineBreaks(json string) string {
	res := fmt.Sprintf("%s", json)
	var numbers = regexp.MustCompile(`\s*([0-9]+),\s+([0-9]+)(,)?`)
	var brackets = regexp.MustCompile(`\[(([0-9]+,)+[0-9]+)\s+\](,?)(\s+)`)
	for numbers.MatchString(res) {
		res = numbers.ReplaceAllString(res, "$1,$2$3")
	}
	for brackets.MatchString(res) {
		res = brackets.ReplaceAllString(res, "[$1]$3$4")
	}
	return res
}
