// Package reboot implements the abstract reboot() hook the Orchestrator
// invokes after committing or reverting an update.
package reboot

import (
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Hook is the abstract reboot primitive the core consumes. The source
// spec treats reboot as an external collaborator; this package ships the
// default implementation for Linux systemd-managed services, falling back
// to a plain process exit elsewhere.
type Hook interface {
	Reboot() error
}

// SystemdHook restarts a systemd unit with --no-block (returns
// immediately; systemd handles stopping this process and starting the new
// one) when running on Linux under systemd, and exits the process
// otherwise.
type SystemdHook struct {
	ServiceName string
	IsService   bool
	Exit        func(code int)
}

// NewSystemdHook builds a SystemdHook. exit defaults to os.Exit when nil.
func NewSystemdHook(serviceName string, isService bool, exit func(int)) *SystemdHook {
	if exit == nil {
		exit = defaultExit
	}
	return &SystemdHook{ServiceName: serviceName, IsService: isService, Exit: exit}
}

func (h *SystemdHook) Reboot() error {
	name := h.ServiceName
	if name == "" {
		name = "ota-updater"
	}
	if !strings.HasSuffix(name, ".service") {
		name += ".service"
	}

	if runtime.GOOS == "linux" && h.IsService {
		cmd := exec.Command("systemctl", "restart", "--no-block", name)
		if err := cmd.Start(); err != nil {
			h.Exit(1)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
		h.Exit(0)
		return nil
	}

	h.Exit(0)
	return nil
}

func defaultExit(code int) {
	// Defined as a function value (rather than calling os.Exit directly
	// in Reboot) so tests can substitute a non-terminating stand-in.
	osExit(code)
}
