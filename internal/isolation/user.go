package isolation

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func setKeepCaps(keep bool) error {
	val := 0
	if keep {
		val = 1
	}
	if err := unix.Prctl(unix.PR_SET_KEEPCAPS, uintptr(val), 0, 0, 0); err != nil {
		return fmt.Errorf("set keepcaps=%v: %w", keep, err)
	}
	return nil
}

// su switches the real/effective/saved uid and gid to the given values, in
// gid-then-uid order so the process still has permission to change its own
// uid afterward.
func su(uid, gid int, name string) error {
	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return fmt.Errorf("setresgid switching to %s: %w", name, err)
	}
	if err := unix.Setgroups([]int{gid}); err != nil {
		return fmt.Errorf("setgroups switching to %s: %w", name, err)
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return fmt.Errorf("setresuid switching to %s: %w", name, err)
	}
	return nil
}

// suRoot switches to uid/gid 0 inside the user namespace. keepcaps is held
// true for the duration of the switch (needed to retain capabilities across
// a uid change) and cleared immediately after, since root-in-namespace only
// needs capabilities long enough to perform the mount/chroot sequence.
func suRoot() error {
	if err := setKeepCaps(true); err != nil {
		return err
	}
	if err := su(0, 0, "root"); err != nil {
		return fmt.Errorf("switch to root: %w", err)
	}
	return setKeepCaps(false)
}

// suRunner drops to the unprivileged runner uid/gid with no retained
// capabilities.
func suRunner() error {
	if err := setKeepCaps(false); err != nil {
		return err
	}
	if err := su(RunnerUID, RunnerGID, "runner"); err != nil {
		return fmt.Errorf("switch to runner: %w", err)
	}
	return nil
}
