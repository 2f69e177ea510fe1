package isolation

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// harden applies miscellaneous process hardening: non-dumpable (no
// ptrace/core-dump of this process by other processes in the same user
// namespace) and no-new-privs (setuid/capability-granting execve is
// disabled from here on).
func harden() error {
	if err := unix.Prctl(unix.PR_SET_DUMPABLE, 0, 0, 0, 0); err != nil {
		return fmt.Errorf("set non-dumpable: %w", err)
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no-new-privs: %w", err)
	}
	return nil
}
