package isolation

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// chroot chdirs into newRoot, chroots there, then chdirs to "/" again so
// the process's cwd is consistent with the new root rather than whatever
// absolute path newRoot used to be.
func chroot(newRoot string) error {
	if err := os.Chdir(newRoot); err != nil {
		return fmt.Errorf("chdir to %q before chroot: %w", newRoot, err)
	}
	if err := unix.Chroot(newRoot); err != nil {
		return fmt.Errorf("chroot to %q: %w", newRoot, err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir to / after chroot: %w", err)
	}
	return nil
}
