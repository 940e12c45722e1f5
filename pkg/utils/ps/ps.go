package ps

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const sampleWindow = 50 * time.Millisecond

func CPUStatus() (CPU, error) {
	list, err := cpu.Percent(sampleWindow, false)
	if err != nil {
		return CPU{}, err
	}
	res := CPU{Cores: len(list)}
	if len(list) > 0 {
		res.Percent = list[0]
	}
	if counts, err := cpu.Counts(true); err == nil {
		res.Cores = counts
	}

	return res, nil
}

func MemoryStatus() (Memory, error) {
	memory, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, err
	}
	swapMemory, err := mem.SwapMemory()
	if err != nil {
		return Memory{}, err
	}

	return Memory{
		Total:       memory.Total,
		Used:        memory.Used,
		UsedPercent: memory.UsedPercent,

		SwapTotal:       swapMemory.Total,
		SwapUsed:        swapMemory.Used,
		SwapUsedPercent: swapMemory.UsedPercent,
	}, nil
}

// SelfStatus reports the resource usage of the running viewer process.
func SelfStatus() (Process, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return Process{}, err
	}
	percent, err := p.CPUPercent()
	if err != nil {
		return Process{}, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return Process{}, err
	}
	threads, err := p.NumThreads()
	if err != nil {
		return Process{}, err
	}

	return Process{
		Pid:        p.Pid,
		CPUPercent: percent,
		RSS:        info.RSS,
		Threads:    threads,
	}, nil
}

type CPU struct {
	Percent float64 `json:"percent"`
	Cores   int     `json:"cores"`
}

type Memory struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`

	SwapTotal       uint64  `json:"swapTotal"`
	SwapUsed        uint64  `json:"swapUsed"`
	SwapUsedPercent float64 `json:"swapUsedPercent"`
}

type Process struct {
	Pid        int32   `json:"pid"`
	CPUPercent float64 `json:"cpuPercent"`
	RSS        uint64  `json:"rss"`
	Threads    int32   `json:"threads"`
}
