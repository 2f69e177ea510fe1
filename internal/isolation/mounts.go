package isolation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// devBinds are the device files bind-mounted read-only (and noexec) into
// every worker jail.
var devBinds = [...]string{"/dev/null", "/dev/zero", "/dev/random", "/dev/urandom"}

func bindMount(root, path string, noExec bool) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("bind mount path %q must be absolute", path)
	}

	fullPath := filepath.Join(root, strings.TrimPrefix(path, "/"))

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat bind mount source %q: %w", path, err)
	}
	if info.IsDir() {
		if err := os.MkdirAll(fullPath, 0o755); err != nil {
			return fmt.Errorf("create bind mount target dir %q: %w", fullPath, err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return fmt.Errorf("create bind mount target parent %q: %w", fullPath, err)
		}
		f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_RDONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create bind mount target file %q: %w", fullPath, err)
		}
		f.Close()
	}

	flags := uintptr(unix.MS_BIND | unix.MS_RDONLY | unix.MS_PRIVATE | unix.MS_NOSUID | unix.MS_NODEV)
	if noExec {
		flags |= unix.MS_NOEXEC
	}

	if err := unix.Mount(path, fullPath, "", flags, ""); err != nil {
		return fmt.Errorf("bind mount %q -> %q: %w", path, fullPath, err)
	}
	return nil
}

func mountProc(root string) error {
	procPath := filepath.Join(root, "proc")
	if err := os.MkdirAll(procPath, 0o755); err != nil {
		return fmt.Errorf("create /proc directory: %w", err)
	}
	if err := unix.Mount("", procPath, "proc", unix.MS_NOEXEC|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		return fmt.Errorf("mount proc at %q: %w", procPath, err)
	}
	return nil
}

// mountRoot mounts a fresh tmpfs at root (used as the worker's new root
// filesystem) and chdirs into it.
func mountRoot(root, size string) error {
	data := "mode=0755"
	if size != "" {
		data += ",size=" + size
	}
	if err := unix.Mount("", root, "tmpfs", unix.MS_NODEV|unix.MS_NOSUID, data); err != nil {
		return fmt.Errorf("mount tmpfs root at %q: %w", root, err)
	}
	if err := os.Chdir(root); err != nil {
		return fmt.Errorf("chdir to new root %q: %w", root, err)
	}
	return nil
}

// setupMounts mounts /proc, then each configured bind mount, then the fixed
// device file binds (always noexec), in that order.
// step 5.
func setupMounts(root string, bindMounts []BindMountConfig) error {
	if err := mountProc(root); err != nil {
		return err
	}
	for _, bm := range bindMounts {
		if err := bindMount(root, bm.Src, bm.NoExec); err != nil {
			return fmt.Errorf("bind mount expose path %q: %w", bm.Src, err)
		}
	}
	for _, dev := range devBinds {
		if err := bindMount(root, dev, true); err != nil {
			return fmt.Errorf("bind mount dev path %q: %w", dev, err)
		}
	}
	return nil
}
