package isolation

import (
	"fmt"
)

// Isolate runs the mount/chroot/user-switch/seccomp sequence inside a
// worker process that has already been cloned into fresh namespaces and is
// already PID 1 of its PID namespace (both handled by the service at
// exec.Cmd.Start() time via BuildSysProcAttr — see namespaces.go).
// waitForIDMapping blocks until the service confirms the UID/GID maps are
// in place; root is the absolute path of the worker's private tmpfs root.
func Isolate(cfg *IsolationConfig, root string, waitForIDMapping func() error) error {
	if err := waitForIDMapping(); err != nil {
		return fmt.Errorf("wait for uid/gid mapping: %w", err)
	}
	if err := suRoot(); err != nil {
		return fmt.Errorf("switch to root: %w", err)
	}
	if err := mountRoot(root, cfg.Limits.TmpfsSize); err != nil {
		return fmt.Errorf("mount root: %w", err)
	}
	if err := setupEnvironment(root, cfg.BindMounts); err != nil {
		return fmt.Errorf("setup environment: %w", err)
	}
	if err := chroot(root); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	if err := setupEnvironmentPostChroot(); err != nil {
		return fmt.Errorf("setup environment post chroot: %w", err)
	}
	if err := suRunner(); err != nil {
		return fmt.Errorf("switch to runner: %w", err)
	}
	if err := harden(); err != nil {
		return fmt.Errorf("harden process: %w", err)
	}
	if !cfg.SeccompCompiled() {
		// The service compiles the filter once at startup and the
		// IsolationConfig travels to the worker over the wire as plain
		// JSON; the compiled field itself is unexported and doesn't
		// serialize, so the worker recompiles the same rule set here
		// rather than receiving raw bytecode.
		if err := cfg.CompileSeccomp(); err != nil {
			return fmt.Errorf("compile seccomp filter: %w", err)
		}
	}
	if err := cfg.compiledFilter.Install(); err != nil {
		return fmt.Errorf("install seccomp filter: %w", err)
	}

	return nil
}
