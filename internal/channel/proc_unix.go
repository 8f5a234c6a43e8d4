//go:build unix

package channel

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcess puts the worker in its own process group so teardown
// reaches anything it spawned.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return signalGroup(p, unix.SIGTERM)
}

func kill(p *os.Process) error {
	return signalGroup(p, unix.SIGKILL)
}

func signalGroup(p *os.Process, sig unix.Signal) error {
	if p == nil {
		return nil
	}
	err := unix.Kill(-p.Pid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return p.Signal(sig)
}
