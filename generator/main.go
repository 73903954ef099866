package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"git.solver4all.com/azaryc2s/rescue"
)

var (
	name      *string
	output    *string
	count     *int
	sites     *int
	scenarios *int
	teams     *int
	maxDemand *int
	maxCap    *int
	radius    *float64
	load      *float64
	budgetFrc *float64
	xTo       *int
	yTo       *int
	seed      *int64
)

func main() {
	name = flag.String("name", "zarychta", "Name prefix for the instances")
	output = flag.String("outputDir", ".", "Output directory")
	count = flag.Int("count", 1, "Number of instances per combination")
	sites = flag.Int("sites", 10, "Number of demand sites")
	scenarios = flag.Int("scenarios", 5, "Number of demand scenarios")
	teams = flag.Int("teams", 4, "Number of teams in the pool")
	maxDemand = flag.Int("maxDemand", 20, "Max demand per site and scenario")
	maxCap = flag.Int("maxCap", 30, "Max team capacity")
	radius = flag.Float64("radius", 3000, "Neighborhood radius")
	load = flag.Float64("load", 1.0, "Load factor on team capacity")
	budgetFrc = flag.Float64("budget", 0.5, "Budget as a fraction of the total team cost")
	xTo = flag.Int("x", 10000, "Max value on the x-axis")
	yTo = flag.Int("y", 10000, "Max value on the y-axis")
	seed = flag.Int64("seed", time.Now().UnixNano(), "RNG seed")

	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for c := 0; c < *count; c++ {
		inst := generate(rng, c)
		fileName := fmt.Sprintf("%s/%s.json", *output, inst.Name)
		if err := rescue.WriteInstance(inst, fileName); err != nil {
			log.Printf("Couldn't write %s: %s\n", fileName, err.Error())
			return
		}
		log.Printf("Generated %s\n", fileName)
	}
}

func generate(rng *rand.Rand, c int) *rescue.Instance {
	coords := make([][]float64, *sites)
	for j := range coords {
		coords[j] = []float64{float64(rng.Intn(*xTo)), float64(rng.Intn(*yTo))}
	}
	demand := make([][]int, *sites)
	for j := range demand {
		demand[j] = make([]int, *scenarios)
		for k := range demand[j] {
			demand[j][k] = rng.Intn(*maxDemand + 1)
		}
	}
	caps := make([]int, *teams)
	costs := make([]int, *teams)
	totalCost := 0
	for t := range caps {
		caps[t] = 1 + rng.Intn(*maxCap)
		// costlier teams carry more capacity
		costs[t] = 1 + caps[t]/3 + rng.Intn(3)
		totalCost += costs[t]
	}

	inst := &rescue.Instance{
		Name:            fmt.Sprintf("%s_s%d_k%d_t%d_%d", *name, *sites, *scenarios, *teams, c),
		Comment:         "Generated rescue allocation instance",
		Type:            "RESCUE",
		SiteCount:       *sites,
		ScenarioCount:   *scenarios,
		SiteCoordinates: coords,
		Demand:          demand,
		TeamCapacities:  caps,
		TeamCosts:       costs,
		Radius:          *radius,
		Budget:          int(float64(totalCost)**budgetFrc + 0.5),
		LoadFactor:      *load,
	}
	if err := inst.Prepare(); err != nil {
		log.Printf("Generated an invalid instance: %s\n", err.Error())
	}
	return inst
}
