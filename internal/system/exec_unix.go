//go:build unix

package system

import "syscall"

func execProcess(argv0 string, argv []string, envv []string) error {
	return syscall.Exec(argv0, argv, envv)
}
