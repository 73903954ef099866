package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"git.solver4all.com/azaryc2s/rescue"
)

func main() {
	if len(os.Args) < 2 {
		log.Printf("No arguments passed!")
		return
	}
	dirName := os.Args[1]
	dir, err := os.ReadDir(dirName)
	if err != nil {
		log.Printf("Couldn't open directory %s: %s\n", os.Args[1], err.Error())
		return
	}
	fmt.Printf("Name,Model,Optimal,Time,Obj,Iterations,Cuts,Sites,Scenarios,Valid,Comment\n")
	for _, f := range dir {
		fileName := dirName + "/" + f.Name()
		if !strings.Contains(fileName, ".json") {
			continue
		}
		inst := rescue.Instance{}
		instStr, err := os.ReadFile(fileName)
		if err != nil {
			log.Printf("Couldn't read %s: %s\n", f.Name(), err.Error())
			return
		}
		err = json.Unmarshal(instStr, &inst)
		if err != nil {
			log.Printf("Couldn't parse %s: %s\n", f.Name(), err.Error())
			return
		}
		if inst.Solution == nil {
			fmt.Printf("No solution for %s\n", inst.Name)
			continue
		}
		sol := *inst.Solution
		if err := inst.Prepare(); err != nil {
			log.Printf("Invalid instance %s: %s\n", f.Name(), err.Error())
			continue
		}
		solValid, validComment := rescue.CheckSolutionValidity(&sol, &inst)
		if !solValid {
			sol.Comment = fmt.Sprintf("%s %s", sol.Comment, validComment)
		}
		fmt.Printf("%s,%s,%t,%s,%.4f,%d,%d,%d,%d,%t,%s\n",
			inst.Name, sol.Model, sol.Optimal, sol.Time, sol.Obj, sol.Iterations,
			sol.CutCount, inst.SiteCount, inst.ScenarioCount, solValid, sol.Comment)
	}
}
