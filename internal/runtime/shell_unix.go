//go:build !windows

// Package runtime runs shell commands for the command handler: sh -c on
// Unix-like systems, cmd /C on Windows.
package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// RunShell runs cmdline with sh -c and returns its combined output. env is
// added to the inherited environment.
func RunShell(ctx context.Context, cmdline string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("command failed: %w\n%s", err, out)
	}
	return string(out), nil
}
