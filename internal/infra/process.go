package infra

import (
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/intentd/internal/domain"
)

// AppResolverImpl implements domain.AppResolver using gopsutil.
// Focus events from the OS observer carry only a PID; the executable
// name becomes the stable app identifier fed to the decision engine.
type AppResolverImpl struct{}

// NewAppResolver creates a new app resolver.
func NewAppResolver() domain.AppResolver {
	return &AppResolverImpl{}
}

// ResolvePID returns the executable name for a focused process.
func (r *AppResolverImpl) ResolvePID(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Name()
}

// IsRunning checks if a PID exists and is running.
func (r *AppResolverImpl) IsRunning(pid int) bool {
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Ensure AppResolverImpl implements domain.AppResolver.
var _ domain.AppResolver = (*AppResolverImpl)(nil)
