//go:build !unix

package system

import (
	"os"
	"os/exec"
)

// execProcess starts a new copy and exits, since the platform has no exec(2).
func execProcess(argv0 string, argv []string, envv []string) error {
	cmd := exec.Command(argv0, argv[1:]...)
	cmd.Env = envv
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	os.Exit(0)

	return nil
}
