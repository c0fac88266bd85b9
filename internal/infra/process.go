// Package infra implements infrastructure concerns (process scanning,
// capture, encoding, filesystem, hotkeys).
package infra

import (
	"github.com/shirou/gopsutil/v3/process"

	"github.com/mgrindstad/replayd/internal/domain"
)

// ProcessScannerImpl implements domain.ProcessScanner using gopsutil.
type ProcessScannerImpl struct{}

// NewProcessScanner creates a new process scanner.
func NewProcessScanner() domain.ProcessScanner {
	return &ProcessScannerImpl{}
}

// Snapshot lists the processes currently visible to the daemon.
// Processes that exit mid-enumeration are skipped.
func (ps *ProcessScannerImpl) Snapshot() ([]domain.ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, domain.NewProcessWatchError("snapshot", err)
	}

	infos := make([]domain.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		infos = append(infos, domain.ProcessInfo{PID: p.Pid, Name: name})
	}

	return infos, nil
}

// Ensure ProcessScannerImpl implements domain.ProcessScanner.
var _ domain.ProcessScanner = (*ProcessScannerImpl)(nil)
