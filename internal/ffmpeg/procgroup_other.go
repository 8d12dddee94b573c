//go:build !unix

package ffmpeg

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// terminateGroup has no graceful equivalent off unix; callers fall back to killGroup.
func terminateGroup(*exec.Cmd) error {
	return errors.ErrUnsupported
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
