package main

import (
	"fmt"
	"os"

	"git.solver4all.com/azaryc2s/rescue"
	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	inputF    string
	outputF   string
	benchF    string
	model     string
	logLvl    int
	timeLimit float64
	seed      int64
)

var rootCmd = &cobra.Command{
	Use:   "rescue-solver",
	Short: "Solves rescue team allocation instances by L-shaped decomposition",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to a JSON/YAML driver configuration")
	rootCmd.Flags().StringVar(&inputF, "input", "input.json", "Path to the input instance")
	rootCmd.Flags().StringVar(&outputF, "output", "", "Path to the output file. By default the input file will be overwritten adding the solution")
	rootCmd.Flags().StringVar(&benchF, "bench", "benchmarks.csv", "Path to the benchmark ledger")
	rootCmd.Flags().StringVar(&model, "model", rescue.ModelLShaped, fmt.Sprintf("Decomposition variant. Possible: %v", rescue.Models()))
	rootCmd.Flags().IntVar(&logLvl, "log", 0, "Level of the logging output. Higher value is more verbose. Range 1-4")
	rootCmd.Flags().Float64Var(&timeLimit, "timelimit", 0, "Wall clock limit per solver invocation in seconds")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for the branching RNG")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := rescue.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if logLvl > 0 {
		cfg.LogLevel = logLvl
	}
	if timeLimit > 0 {
		cfg.TimeLimit = timeLimit
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	rescue.InitLogger(cfg.LogLevel)

	inst, err := rescue.LoadInstance(inputF)
	if err != nil {
		return err
	}

	sol, err := rescue.Solve(model, inst, cfg)
	if err != nil {
		return fmt.Errorf("solving %s with %s: %w", inst.Name, model, err)
	}
	sol.System = rescue.CollectSysInfo()
	sol.Comment = fmt.Sprintf("Solver-Settings: Model=%s, MaxIter=%d, Gap=%g, Seed=%d",
		model, cfg.MaxIterations, cfg.Gap, cfg.Seed)

	solValid, validComment := rescue.CheckSolutionValidity(sol, inst)
	if !solValid {
		rescue.Log(1, validComment)
	} else {
		rescue.Log(1, "The computed solution is valid!")
	}
	rescue.Log(2, "Found a rescue allocation with expected rescues %.4f in %s", sol.Obj, sol.Time)

	inst.Solution = sol
	fileName := inputF
	if outputF != "" {
		fileName = outputF
	}
	if err := rescue.WriteInstance(inst, fileName); err != nil {
		return err
	}
	if benchF != "" {
		if err := rescue.AppendBenchmarkRow(benchF, inst, sol); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		rescue.Log(1, err.Error())
		os.Exit(1)
	}
}
