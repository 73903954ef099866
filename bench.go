package rescue

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

// CollectSysInfo captures the host system for the solution comment, so
// benchmark numbers stay comparable across machines.
func CollectSysInfo() SysInfo {
	hostStat, _ := host.Info()
	cpuStat, _ := cpu.Info()
	vmStat, _ := mem.VirtualMemory()
	info := SysInfo{}
	if hostStat != nil {
		info.Platform = hostStat.Platform
	}
	if len(cpuStat) > 0 {
		info.CPU = cpuStat[0].ModelName
	}
	if vmStat != nil {
		info.RAM = fmt.Sprintf("%d GB", vmStat.Total/1024/1024/1024)
	}
	return info
}

// AppendBenchmarkRow appends one ledger row per run:
// timestamp, run id, instance, model, objective, execution time.
func AppendBenchmarkRow(path string, inst *Instance, sol *Solution) error {
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening benchmark ledger %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write([]string{"timestamp", "run_id", "instance", "model", "objective", "time"}); err != nil {
			return fmt.Errorf("writing ledger header: %w", err)
		}
	}
	row := []string{
		time.Now().Format(time.RFC3339),
		uuid.NewString(),
		inst.Name,
		sol.Model,
		fmt.Sprintf("%.6f", sol.Obj),
		sol.Time,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing ledger row: %w", err)
	}
	w.Flush()
	return w.Error()
}
