// Package isolation implements the worker-side namespace/mount/chroot/user/
// seccomp sequence and the service-side cgroup lifecycle described in
// the isolation sequence. Steps that must run before exec (building SysProcAttr
// clone flags and UID/GID mappings) live alongside the steps that run
// inside the already-cloned worker process (mounts, chroot, user switch,
// seccomp install) because both sides share the same config type and
// constants.
package isolation

import (
	"fmt"
	"regexp"
)

// RunnerUID and RunnerGID are the in-namespace identity the worker process
// drops to after mounting and chrooting, matching the original isolation
// scheme's fixed runner account.
const (
	RunnerUID = 1000
	RunnerGID = 100
)

// BindMountConfig describes one read-only bind mount exposed into the
// worker's jail.
type BindMountConfig struct {
	Src    string `json:"src" toml:"src"`
	NoExec bool   `json:"no_exec" toml:"no_exec"`
}

// LimitConfig holds the tunable resource ceilings applied to a worker.
type LimitConfig struct {
	// TmpfsSize is passed verbatim as tmpfs's "size=" mount option, e.g.
	// "5%", "64m". Validated against tmpfsSizePattern.
	TmpfsSize string `toml:"tmpfs_size"`

	// HardTimeoutInternalSecs bounds internal worker messages for
	// everything except user code (bootstrap, teardown). 0 disables.
	HardTimeoutInternalSecs uint64 `toml:"hard_timeout_internal_secs"`

	// HardTimeoutUserSecs bounds each compile/run step of the user's own
	// program. 0 disables.
	HardTimeoutUserSecs uint64 `toml:"hard_timeout_user_secs"`

	// HardMemoryLimitBytes is the cgroup memory.max hard cap.
	HardMemoryLimitBytes uint64 `toml:"hard_memory_limit_bytes"`

	// PidLimit is advisory; written to pids.max when the controller is delegated.
	PidLimit uint64 `toml:"pid_limit"`

	// Nice is the cpu.weight.nice value, in [-20, 19].
	Nice int `toml:"nice"`

	// ShutdownKillWaitMillis / ShutdownGiveUpCount govern the cgroup
	// teardown retry loop (write cgroup.kill, sleep, rmdir, repeat).
	ShutdownKillWaitMillis uint64 `toml:"shutdown_kill_wait_millis"`
	ShutdownGiveUpCount    uint64 `toml:"shutdown_give_up_count"`
}

// DefaultLimitConfig returns a reasonable set of defaults for a production
// deployment.
func DefaultLimitConfig() LimitConfig {
	return LimitConfig{
		TmpfsSize:               "5%",
		HardTimeoutInternalSecs: 2,
		HardTimeoutUserSecs:     30,
		HardMemoryLimitBytes:    1024 * 1024 * 350,
		PidLimit:                100,
		Nice:                    10,
		ShutdownKillWaitMillis:  50,
		ShutdownGiveUpCount:     4,
	}
}

var tmpfsSizePattern = regexp.MustCompile(`^\d+(?:\.\d+)?(?:k|m|g|%)?$`)

// SubIDRange is an override for the sub-UID/sub-GID range to allocate from,
// in place of reading /etc/subuid or /etc/subgid.
type SubIDRange struct {
	Start uint32
	End   uint32
}

// IsolationConfig is immutable per service instance: it describes how every
// worker spawned by this service is isolated.
type IsolationConfig struct {
	WorkersParent string `toml:"workers_parent"`

	BindMounts []BindMountConfig `toml:"bind_mounts"`

	// IncludeBins are bare binary names resolved against PATH at startup
	// and added to the worker's PATH, so user-submitted build tooling can
	// find them inside the jail.
	IncludeBins []string `toml:"include_bins"`

	Env map[string]string `toml:"env"`

	OverrideSubUID *SubIDRange `toml:"override_subuid"`
	OverrideSubGID *SubIDRange `toml:"override_subgid"`

	Seccomp SeccompConfig `toml:"seccomp"`

	Limits LimitConfig `toml:"limits"`

	// RelaxedDebugProfile, when true, allows startup to continue (with a
	// warning) if cgroup delegation can't be verified. Never set in
	// production configuration.
	RelaxedDebugProfile bool `toml:"relaxed_debug_profile"`

	// compiledFilter is set by CompileSeccomp and consumed by Isolate.
	compiledFilter *CompiledFilter
}

// CompileSeccomp validates and compiles the configured seccomp allow-list.
// Must be called once at service startup, before any worker is spawned —
// the invariant that a compiled BPF filter exists before a worker is spawned.
func (c *IsolationConfig) CompileSeccomp() error {
	filter, err := CompileFilter(c.Seccomp)
	if err != nil {
		return err
	}
	c.compiledFilter = filter
	return nil
}

// SeccompCompiled reports whether CompileSeccomp has run successfully.
func (c *IsolationConfig) SeccompCompiled() bool {
	return c.compiledFilter != nil
}

// Validate checks the invariants placed on IsolationConfig: nice
// range and tmpfs size pattern. It does not compile seccomp or resolve
// binaries — callers do that explicitly via CompileSeccomp/ResolveBinaries
// so construction-time failures are easy to attribute.
func (c *IsolationConfig) Validate() error {
	if c.Limits.Nice < -20 || c.Limits.Nice > 19 {
		return fmt.Errorf("invalid nice value %d, must be in [-20, 19]", c.Limits.Nice)
	}
	if !tmpfsSizePattern.MatchString(c.Limits.TmpfsSize) {
		return fmt.Errorf("invalid tmpfs size %q", c.Limits.TmpfsSize)
	}
	return nil
}
