package isolation

import (
	"fmt"
	"os"
	"path/filepath"
)

// devLinks are the symlinks created inside the jail pointing /dev/{stdin,
// stdout,stderr,fd} at /proc/self/fd, matching a minimal chroot userland's
// expectations.
var devLinks = [...][2]string{
	{"dev/stdin", "/proc/self/fd/0"},
	{"dev/stdout", "/proc/self/fd/1"},
	{"dev/stderr", "/proc/self/fd/2"},
	{"dev/fd", "/proc/self/fd/"},
}

func link(root, path, target string) error {
	linkPath := filepath.Join(root, path)
	if err := os.Symlink(target, linkPath); err != nil {
		return fmt.Errorf("create symlink %q -> %q: %w", linkPath, target, err)
	}
	return nil
}

// tempFolderPerms is sticky, read/write/execute for all (mode 1777).
const tempFolderPerms = 0o1777

func mkTemp(root, path string) error {
	full := filepath.Join(root, path)
	if err := os.MkdirAll(full, tempFolderPerms); err != nil {
		return fmt.Errorf("create temp directory %q: %w", full, err)
	}
	if err := os.Chmod(full, tempFolderPerms); err != nil {
		return fmt.Errorf("set permissions on %q: %w", full, err)
	}
	return nil
}

const (
	runnerUser = "runner"
	homeDir    = "/home/runner"
)

func setupHome() error {
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return fmt.Errorf("create runner home directory: %w", err)
	}
	if err := os.Chown(homeDir, RunnerUID, RunnerGID); err != nil {
		return fmt.Errorf("chown runner home directory: %w", err)
	}
	return nil
}

func setupEnvVars() error {
	if err := os.Setenv("HOME", homeDir); err != nil {
		return err
	}
	if err := os.Setenv("USER", runnerUser); err != nil {
		return err
	}
	if err := os.Chdir(homeDir); err != nil {
		return fmt.Errorf("chdir to HOME: %w", err)
	}
	return nil
}

// setupEnvironment runs pre-chroot: mounts, dev symlinks, and sticky temp
// directories for /tmp and /dev/shm.
func setupEnvironment(root string, bindMounts []BindMountConfig) error {
	if err := setupMounts(root, bindMounts); err != nil {
		return err
	}
	for _, l := range devLinks {
		if err := link(root, l[0], l[1]); err != nil {
			return err
		}
	}
	if err := mkTemp(root, "tmp"); err != nil {
		return err
	}
	return mkTemp(root, "dev/shm")
}

// setupEnvironmentPostChroot runs after chroot: create $HOME and set
// environment variables to point at it.
func setupEnvironmentPostChroot() error {
	if err := setupHome(); err != nil {
		return err
	}
	return setupEnvVars()
}
