// Package testutil provides shared test helpers.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kkloberdanz/judgerun/internal/isolation"
)

// SkipIfNoCgroupV2 skips the test if cgroup v2 is not available or the
// process is not running as root.
func SkipIfNoCgroupV2(t *testing.T) {
	t.Helper()
	if os.Getuid() != 0 {
		t.Skip("skipping: requires root")
	}
	if _, err := os.Stat("/sys/fs/cgroup/cgroup.controllers"); err != nil {
		t.Skip("skipping: cgroup v2 not available")
	}
}

// RequireServiceCgroup skips the test if cgroups are unavailable and returns
// a freshly created child cgroup under the current process's own cgroup,
// torn down when the test finishes.
func RequireServiceCgroup(t *testing.T) *isolation.Cgroup {
	t.Helper()
	SkipIfNoCgroupV2(t)

	root, err := isolation.CurrentCgroup()
	if err != nil {
		t.Fatalf("CurrentCgroup failed: %v", err)
	}
	if err := root.VerifyAccess(); err != nil {
		t.Skipf("skipping: cgroup not delegated to current user: %v", err)
	}

	cg, err := root.CreateChild("judgerun-test-"+uuid.New().String(), true)
	if err != nil {
		t.Fatalf("CreateChild failed: %v", err)
	}
	t.Cleanup(func() {
		_ = cg.Shutdown(50*time.Millisecond, 4)
	})
	return cg
}
