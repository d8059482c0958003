//go:build windows

package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// RunShell runs cmdline with cmd /C. cmd.exe is used instead of PowerShell
// because Windows PowerShell 5.x writes UTF-16 LE on ">" redirects.
func RunShell(ctx context.Context, cmdline string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, "cmd", "/C", cmdline)
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("command failed: %w\n%s", err, out)
	}
	return string(out), nil
}
