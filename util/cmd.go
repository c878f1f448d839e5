package util

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var errEmptyCmd = errors.New("empty command")

// ExecCmd runs a whitespace separated command line and returns its
// stdout. The error carries stderr when the command fails.
func ExecCmd(cmd string) ([]byte, error) {
	c := strings.Fields(cmd)
	if len(c) == 0 {
		return nil, errEmptyCmd
	}
	out, err := exec.Command(c[0], c[1:]...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return out, err
}
