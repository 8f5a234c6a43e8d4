//go:build !unix

package channel

import (
	"os"
	"os/exec"
)

func configureProcess(*exec.Cmd) {}

func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

func kill(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
