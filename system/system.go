// Package system reports host resource usage.
package system

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SysInfo holds static host details for the boot report.
type SysInfo struct {
	CPUModel       string
	CPUThreadCount int
	TotalMemory    uint64
}

// DiskInfo holds usage for the filesystem containing a path.
type DiskInfo struct {
	Path        string
	Total       uint64
	Free        uint64
	UsedPercent float64
}

// GetSysInfo returns the CPU model, thread count and total memory.
func GetSysInfo() (*SysInfo, error) {
	info := &SysInfo{CPUThreadCount: runtime.NumCPU()}
	cpus, err := cpu.Info()
	if err != nil {
		return info, err
	}
	if len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return info, err
	}
	info.TotalMemory = vm.Total
	return info, nil
}

// GetCPUUsage returns the current CPU usage as a percentage
func GetCPUUsage() (float64, error) {
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("could not get CPU usage")
	}
	return percentages[0], nil
}

// GetMemoryUsage returns the current memory usage as a percentage
func GetMemoryUsage() (float64, error) {
	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return virtualMem.UsedPercent, nil
}

// GetDiskInfo returns usage of the filesystem holding path.
func GetDiskInfo(path string) (*DiskInfo, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("could not stat %s: %w", path, err)
	}
	return &DiskInfo{Path: path, Total: usage.Total, Free: usage.Free, UsedPercent: usage.UsedPercent}, nil
}

// FreeBytes returns the free space on the filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	info, err := GetDiskInfo(path)
	if err != nil {
		return 0, err
	}
	return info.Free, nil
}
