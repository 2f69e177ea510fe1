package isolation

import "syscall"

// CloneFlags is the full namespace set a worker re-exec must be cloned
// into: user, mount, pid, net, ipc, cgroup, and uts. Go cannot safely
// fork() mid-process and keep running Go code in the child (the runtime is
// multi-threaded, so only async-signal-safe operations are valid between
// fork and exec), so the original "unshare, then fork to PID 1" sequence
// collapses into a single exec.Cmd.Start() with these clone flags: the
// kernel performs the unshare-and-clone atomically as part of spawning the
// worker binary in --worker mode, and the worker process itself is already
// PID 1 in the new PID namespace by the time it starts running.
const CloneFlags = syscall.CLONE_NEWUSER |
	syscall.CLONE_NEWNS |
	syscall.CLONE_NEWPID |
	syscall.CLONE_NEWNET |
	syscall.CLONE_NEWIPC |
	syscall.CLONE_NEWCGROUP |
	syscall.CLONE_NEWUTS

// BuildSysProcAttr returns the SysProcAttr the service uses to spawn a
// worker re-exec. The UID/GID mappings are intentionally left empty: the
// worker starts unmapped (everything appears as the overflow uid/gid) and
// waits for an explicit UID/GID-map confirmation message before proceeding.
func BuildSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Cloneflags:                 uintptr(CloneFlags),
		GidMappingsEnableSetgroups: false,
		Setpgid:                    true,
		Pdeathsig:                  syscall.SIGKILL,
	}
}
