package isolation

import (
	"fmt"

	libseccomp "github.com/seccomp/libseccomp-golang"
)

// MismatchAction selects what happens to a syscall not on the allow-list.
type MismatchAction string

const (
	MismatchKillProcess MismatchAction = "killProcess"
	MismatchKillThread  MismatchAction = "killThread"
	MismatchErrno       MismatchAction = "errno"
	MismatchLog         MismatchAction = "log"
	MismatchTrap        MismatchAction = "trap"
)

// SeccompConfig is the user-facing seccomp specification: a base allow-list
// (always applied) plus configured additions, and the action taken on a
// syscall that isn't allowed.
type SeccompConfig struct {
	MismatchAction MismatchAction `toml:"mismatch_action"`
	// MismatchErrno is only consulted when MismatchAction == MismatchErrno.
	MismatchErrno  int      `toml:"mismatch_errno"`
	AllowedCalls   []string `toml:"allowed_calls"`
}

func (a MismatchAction) toLibseccomp(errno int) (libseccomp.ScmpAction, error) {
	switch a {
	case "", MismatchKillProcess:
		return libseccomp.ActKillProcess, nil
	case MismatchKillThread:
		return libseccomp.ActKillThread, nil
	case MismatchErrno:
		return libseccomp.ActErrno.SetReturnCode(int16(errno)), nil
	case MismatchLog:
		return libseccomp.ActLog, nil
	case MismatchTrap:
		return libseccomp.ActTrap, nil
	default:
		return libseccomp.ActKillProcess, fmt.Errorf("unknown seccomp mismatch action %q", a)
	}
}

// baseAllowedSyscalls is the fixed allow-list covering standard C/Go/
// Python/JVM process startup (reads, writes, mmap variants, futex,
// sched_yield, clone/clone3, execve, openat, newfstatat, rseq,
// pkey_alloc, ...). Reproduced verbatim from the original isolation
// scheme's syscall table.
var baseAllowedSyscalls = [...]string{
	"sched_yield", "statx", "clock_nanosleep", "faccessat2", "setsockopt",
	"dup", "getdents64", "madvise", "exit", "getgid", "getegid", "getppid",
	"getpgrp", "mkdir", "unlinkat", "mremap", "tgkill", "socketpair",
	"clone", "recvfrom", "vfork", "umask", "chmod", "unlink", "write",
	"openat", "close", "pipe2", "prlimit64", "mmap", "rt_sigprocmask",
	"clone3", "rt_sigaction", "dup2", "execve", "munmap", "ioctl", "poll",
	"brk", "access", "newfstatat", "read", "fstat", "pread64",
	"arch_prctl", "set_tid_address", "set_robust_list", "rseq",
	"mprotect", "getrandom", "getuid", "geteuid", "uname", "getcwd",
	"getpid", "socket", "connect", "lseek", "fcntl", "readlinkat",
	"futex", "sigaltstack", "sched_getaffinity", "readlink", "prctl",
	"rt_sigreturn", "exit_group", "wait4", "getrusage", "statfs",
	"sysinfo", "clock_getres", "gettid", "chdir", "listxattr",
	"ftruncate", "sched_getparam", "sched_getscheduler",
	"sched_get_priority_min", "sched_get_priority_max",
	"sched_setscheduler", "fadvise64", "clock_gettime", "capget",
	"timerfd_create", "timerfd_settime", "epoll_create", "eventfd2",
	"epoll_ctl", "epoll_wait", "rename", "fallocate", "rmdir",
	"epoll_create1", "io_uring_setup", "io_uring_enter", "epoll_pwait",
	"pkey_alloc",
}

// CompiledFilter is an opaque, already-validated seccomp rule set. It
// carries no bytecode (libseccomp-golang compiles directly from syscall
// names against the live kernel at Install time) but its presence on an
// IsolationConfig carries the compiled BPF program field:
// once built, Install is guaranteed to succeed barring a kernel that lacks
// one of the named syscalls.
type CompiledFilter struct {
	action MismatchAction
	errno  int
	calls  []string
}

// CompileFilter validates the configured allow-list (base set plus
// additions) can be resolved to syscall numbers on this architecture and
// returns a CompiledFilter ready to Install in a worker. Mirrors
// seccomp.rs's compile_filter, minus the actual BPF bytecode generation
// (libseccomp-golang defers that to Install/Load).
func CompileFilter(cfg SeccompConfig) (*CompiledFilter, error) {
	action, err := cfg.MismatchAction.toLibseccomp(cfg.MismatchErrno)
	if err != nil {
		return nil, err
	}

	calls := make([]string, 0, len(baseAllowedSyscalls)+len(cfg.AllowedCalls))
	calls = append(calls, baseAllowedSyscalls[:]...)
	calls = append(calls, cfg.AllowedCalls...)

	for _, name := range calls {
		if _, err := libseccomp.GetSyscallFromName(name); err != nil {
			return nil, fmt.Errorf("unknown syscall for seccomp: %s", name)
		}
	}

	return &CompiledFilter{action: action, errno: cfg.MismatchErrno, calls: calls}, nil
}

// Install builds a libseccomp filter context from the compiled rule set and
// loads it into the kernel for the calling thread/process. Must run after
// the worker has dropped to the unprivileged runner user and right before
// it begins serving RunCmd messages.
func (f *CompiledFilter) Install() error {
	action, err := f.action.toLibseccomp(f.errno)
	if err != nil {
		return err
	}

	filter, err := libseccomp.NewFilter(action)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()

	if err := filter.SetNoNewPrivsBit(false); err != nil {
		// no-new-privs is set independently by harden.go; don't let the
		// filter object fight over it.
		return fmt.Errorf("configure seccomp filter: %w", err)
	}

	for _, name := range f.calls {
		call, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			return fmt.Errorf("resolve syscall %s: %w", name, err)
		}
		if err := filter.AddRule(call, libseccomp.ActAllow); err != nil {
			return fmt.Errorf("add rule for %s: %w", name, err)
		}
	}

	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}
