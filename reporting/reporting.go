package reporting

import (
	"fmt"
	"strings"

	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/system"
)

// ServiceStatus holds the formatted status line of each collaborator.
type ServiceStatus struct {
	Discord    string
	Cache      string
	FFmpeg     string
	Summarizer string
	Speech     string
	Drive      string
}

// StatusReport is everything the final boot message shows.
type StatusReport struct {
	SysInfo       *system.SysInfo
	CPUUsage      float64
	MemUsage      float64
	Disk          *system.DiskInfo
	Services      ServiceStatus
	SweptSessions int
	TargetUserID  string
}

func humanReadableBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatSystemStatus(sysInfo *system.SysInfo, cpuUsage, memUsage float64) string {
	if sysInfo == nil {
		sysInfo = &system.SysInfo{}
	}
	model := sysInfo.CPUModel
	if model == "" {
		model = "CPU"
	}
	return strings.Join([]string{
		"**System Status**",
		fmt.Sprintf("🖥️ %s: `%.2f%%` (`%d threads`)", model, cpuUsage, sysInfo.CPUThreadCount),
		fmt.Sprintf("🧠 Memory: `%.2f%%` (`%s / %s`)", memUsage, humanReadableBytes(uint64(memUsage/100*float64(sysInfo.TotalMemory))), humanReadableBytes(sysInfo.TotalMemory)),
	}, "\n")
}

func formatStorageStatus(d *system.DiskInfo) string {
	if d == nil {
		return "**Recording Storage**\n❌ Working directory unavailable."
	}
	return strings.Join([]string{
		"**Recording Storage**",
		fmt.Sprintf("💿 %s: `%s free` (`%.2f%%` of `%s` used)", d.Path, humanReadableBytes(d.Free), d.UsedPercent, humanReadableBytes(d.Total)),
	}, "\n")
}

func formatServiceStatus(s ServiceStatus) string {
	return strings.Join([]string{
		"**Service Status**",
		fmt.Sprintf("💬 Discord: %s", s.Discord),
		fmt.Sprintf("🗄️ Session Cache: %s", s.Cache),
		fmt.Sprintf("🎚️ FFmpeg: %s", s.FFmpeg),
		fmt.Sprintf("🤖 Summarizer: %s", s.Summarizer),
		fmt.Sprintf("🎧 Speech: %s", s.Speech),
		fmt.Sprintf("📁 Drive: %s", s.Drive),
	}, "\n")
}

// FormatStatus renders r as a Discord message.
func FormatStatus(r *StatusReport) string {
	sections := []string{
		formatSystemStatus(r.SysInfo, r.CPUUsage, r.MemUsage),
		formatStorageStatus(r.Disk),
		formatServiceStatus(r.Services),
		strings.Join([]string{
			"**Essential Tasks**",
			fmt.Sprintf("🗘 Orphaned sessions cleaned: `%d`", r.SweptSessions),
			fmt.Sprintf("👤 Following user: `%s`", r.TargetUserID),
		}, "\n"),
	}
	return strings.Join(sections, "\n\n")
}

// CollectHostStatus fills the host fields of r. Failures are logged and
// leave the zero value in place.
func CollectHostStatus(r *StatusReport, workDir string, logger logger.Logger) {
	sysInfo, err := system.GetSysInfo()
	if err != nil {
		logger.Error("Failed to get system info", err)
	}
	r.SysInfo = sysInfo
	if r.CPUUsage, err = system.GetCPUUsage(); err != nil {
		logger.Error("Failed to get CPU usage", err)
	}
	if r.MemUsage, err = system.GetMemoryUsage(); err != nil {
		logger.Error("Failed to get memory usage", err)
	}
	if r.Disk, err = system.GetDiskInfo(workDir); err != nil {
		logger.Error("Failed to get storage info", err)
	}
}

// PostFinalStatus replaces the boot message with the final status report,
// or posts a new message when there is no boot message.
func PostFinalStatus(boot *BootMessage, r *StatusReport, logger logger.Logger) {
	status := FormatStatus(r)
	if boot != nil && boot.MessageID != "" {
		logger.UpdateInitialMessage(boot.MessageID, status)
		return
	}
	logger.Post(status)
}
