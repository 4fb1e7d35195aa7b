package system

import (
	"fmt"
	"os"

	"github.com/NamanBalaji/otad/internal/logger"
)

// Restarter replaces the running process with a fresh copy of itself, the
// host equivalent of rebooting into the new boot partition.
type Restarter struct {
	Executable func() (string, error)
	Exec       func(argv0 string, argv []string, envv []string) error
	Args       []string
}

func NewRestarter() *Restarter {
	return &Restarter{
		Executable: os.Executable,
		Exec:       execProcess,
		Args:       os.Args,
	}
}

// Restart only returns on failure.
func (r *Restarter) Restart() error {
	path, err := r.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	logger.Infof("Restarting %s", path)
	logger.Close()

	if err := r.Exec(path, r.Args, os.Environ()); err != nil {
		return fmt.Errorf("failed to restart %s: %w", path, err)
	}

	return nil
}
