package isolation

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// requiredControllers are the cgroup v2 controllers the service refuses to
// start without (absent RelaxedDebugProfile).
var requiredControllers = []string{"memory", "cpu"}

// Cgroup is a handle to one cgroup v2 directory. It supports both the
// service's own long-lived cgroup and the short-lived, per-worker
// ephemeral children created under it.
type Cgroup struct {
	path      string
	ephemeral bool
	fd        int
}

func (g *Cgroup) writeProp(prop, val string) error {
	if err := os.WriteFile(filepath.Join(g.path, prop), []byte(val), 0o644); err != nil {
		return fmt.Errorf("write cgroup property %s: %w", prop, err)
	}
	return nil
}

func (g *Cgroup) readProp(prop string) (string, error) {
	data, err := os.ReadFile(filepath.Join(g.path, prop))
	if err != nil {
		return "", fmt.Errorf("read cgroup property %s: %w", prop, err)
	}
	return string(data), nil
}

func statValue(stat, statProp string) (string, error) {
	for _, line := range strings.Split(stat, "\n") {
		if strings.HasPrefix(line, statProp) {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				break
			}
			return fields[len(fields)-1], nil
		}
	}
	return "", fmt.Errorf("couldn't find stat property %s", statProp)
}

func (g *Cgroup) readStatValue(statFile, statProp string) (string, error) {
	stat, err := g.readProp(statFile)
	if err != nil {
		return "", err
	}
	return statValue(stat, statProp)
}

// CurrentCgroup returns a handle to the cgroup the current process already
// belongs to, read from /proc/self/cgroup.
func CurrentCgroup() (*Cgroup, error) {
	const cgroupRoot = "/sys/fs/cgroup"
	data, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return nil, fmt.Errorf("read /proc/self/cgroup: %w", err)
	}
	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	fields := strings.SplitN(line, ":", 3)
	if len(fields) != 3 {
		return nil, fmt.Errorf("couldn't parse /proc/self/cgroup line %q", line)
	}
	path := strings.TrimPrefix(strings.TrimSpace(fields[2]), "/")
	return &Cgroup{path: filepath.Join(cgroupRoot, path), fd: -1}, nil
}

// VerifyAccess confirms the cgroup directory is owned by the current
// uid/gid (so the service has write permission to it without being root).
func (g *Cgroup) VerifyAccess() error {
	info, err := os.Stat(g.path)
	if err != nil {
		return fmt.Errorf("stat cgroup %s: %w", g.path, err)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("couldn't read ownership of cgroup %s", g.path)
	}
	if stat.Uid != uint32(os.Getuid()) || stat.Gid != uint32(os.Getgid()) {
		return fmt.Errorf("cgroup %s is not owned by the running user/group", g.path)
	}
	return nil
}

// VerifyControllers ensures every name in required is present in this
// cgroup's cgroup.controllers file.
func (g *Cgroup) VerifyControllers(required []string) error {
	raw, err := g.readProp("cgroup.controllers")
	if err != nil {
		return err
	}
	have := make(map[string]bool)
	for _, c := range strings.Fields(raw) {
		have[c] = true
	}
	for _, want := range required {
		if !have[want] {
			return fmt.Errorf("cgroup controller %s is not delegated", want)
		}
	}
	return nil
}

// CreateChild creates (and returns a handle to) a child cgroup directory.
func (g *Cgroup) CreateChild(name string, ephemeral bool) (*Cgroup, error) {
	path := filepath.Join(g.path, name)
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("create cgroup %s: %w", path, err)
	}
	return &Cgroup{path: path, ephemeral: ephemeral, fd: -1}, nil
}

// Child returns a handle to a child path without creating it.
func (g *Cgroup) Child(name string, ephemeral bool) *Cgroup {
	return &Cgroup{path: filepath.Join(g.path, name), ephemeral: ephemeral, fd: -1}
}

func (g *Cgroup) EnableSubtreeControl(controllers []string) error {
	parts := make([]string, len(controllers))
	for i, c := range controllers {
		parts[i] = "+" + c
	}
	return g.writeProp("cgroup.subtree_control", strings.Join(parts, " "))
}

func (g *Cgroup) MoveSelf() error {
	return g.MovePID(os.Getpid())
}

func (g *Cgroup) MovePID(pid int) error {
	return g.writeProp("cgroup.procs", strconv.Itoa(pid))
}

// OpenDirFD opens the cgroup directory for use with exec.Cmd's CgroupFD /
// UseCgroupFD, which atomically places a freshly spawned process into this
// cgroup at clone time rather than racily after Start() returns.
func (g *Cgroup) OpenDirFD() (int, error) {
	fd, err := unix.Open(g.path, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return -1, fmt.Errorf("open cgroup dir %s: %w", g.path, err)
	}
	g.fd = fd
	return fd, nil
}

func (g *Cgroup) CloseFD() {
	if g.fd >= 0 {
		unix.Close(g.fd)
		g.fd = -1
	}
}

// ApplyHardLimits sets the limits a worker may never exceed without being
// killed: memory.max, cpu.weight.nice, and memory.oom.group=1 (so an OOM
// kill of any one process in the cgroup takes the whole group down).
func (g *Cgroup) ApplyHardLimits(lim LimitConfig) error {
	if err := g.writeProp("cpu.weight.nice", strconv.Itoa(lim.Nice)); err != nil {
		return err
	}
	if err := g.writeProp("memory.max", strconv.FormatUint(lim.HardMemoryLimitBytes, 10)); err != nil {
		return err
	}
	return g.writeProp("memory.oom.group", "1")
}

// ApplySoftLimits sets memory.high, the recoverable throttling ceiling.
func (g *Cgroup) ApplySoftLimits(maxMemBytes uint64) error {
	return g.writeProp("memory.high", strconv.FormatUint(maxMemBytes, 10))
}

// Stats is a point-in-time snapshot of cumulative CPU usage and the
// memory.events "high" counter, used to measure deltas across a single
// command execution.
type Stats struct {
	CPUUsageUsec     uint64
	HighMemoryBreaks uint64
}

// Sub returns s minus other, for computing the delta since a baseline
// snapshot.
func (s Stats) Sub(other Stats) Stats {
	return Stats{
		CPUUsageUsec:     s.CPUUsageUsec - other.CPUUsageUsec,
		HighMemoryBreaks: s.HighMemoryBreaks - other.HighMemoryBreaks,
	}
}

func (s Stats) BrokeCPUTime(limitUsec uint64) bool    { return s.CPUUsageUsec >= limitUsec }
func (s Stats) BrokeMemoryLimit() bool                 { return s.HighMemoryBreaks > 0 }

func (g *Cgroup) GetStats() (Stats, error) {
	highStr, err := g.memoryHighEventCount()
	if err != nil {
		return Stats{}, err
	}
	cpuStr, err := g.readStatValue("cpu.stat", "user_usec")
	if err != nil {
		return Stats{}, err
	}
	cpu, err := strconv.ParseUint(strings.TrimSpace(cpuStr), 10, 64)
	if err != nil {
		return Stats{}, fmt.Errorf("parse cpu usage: %w", err)
	}
	return Stats{CPUUsageUsec: cpu, HighMemoryBreaks: highStr}, nil
}

func (g *Cgroup) memoryHighEventCount() (uint64, error) {
	raw, err := g.readProp("memory.events")
	if err != nil {
		return 0, err
	}
	val, err := statValue(raw, "high")
	if err != nil {
		return 0, fmt.Errorf("get high event count: %w", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse high event count: %w", err)
	}
	return n, nil
}

// GetMemoryPeak reads memory.peak, the highest memory usage ever observed
// for this cgroup.
func (g *Cgroup) GetMemoryPeak() (uint64, error) {
	raw, err := g.readProp("memory.peak")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse memory peak: %w", err)
	}
	return n, nil
}

// Kill writes 1 to cgroup.kill, immediately SIGKILLing every process in the
// cgroup (and its descendants).
func (g *Cgroup) Kill() error {
	return g.writeProp("cgroup.kill", "1")
}

func (g *Cgroup) Exists() bool {
	_, err := os.Stat(g.path)
	return err == nil
}

func (g *Cgroup) Path() string { return g.path }

// Shutdown removes the cgroup directory, retrying a kill+rmdir cycle up to
// giveUpCount times (lingering processes keep rmdir from succeeding until
// they're reaped).
func (g *Cgroup) Shutdown(killWait time.Duration, giveUpCount uint64) error {
	if !g.Exists() {
		return nil
	}
	g.CloseFD()
	var times uint64
	for {
		if err := os.Remove(g.path); err == nil {
			return nil
		}
		if times >= giveUpCount {
			return fmt.Errorf("couldn't remove cgroup %s after %d attempts", g.path, times)
		}
		if err := g.Kill(); err != nil {
			return err
		}
		time.Sleep(killWait)
		times++
	}
}

// SetupServiceCgroup verifies the inherited cgroup is usable and creates
// (clearing any stale leftover) a child cgroup named serviceName that the
// service moves itself into, enabling subtree control for future per-worker
// children. Returns the root handle and the new service-cgroup handle.
func SetupServiceCgroup(serviceName string, relaxed bool) (root *Cgroup, service *Cgroup, err error) {
	root, err = CurrentCgroup()
	if err != nil {
		return nil, nil, err
	}
	if err := root.VerifyAccess(); err != nil {
		if !relaxed {
			return nil, nil, fmt.Errorf("verify cgroup access: %w", err)
		}
	}
	if err := root.VerifyControllers(requiredControllers); err != nil {
		if !relaxed {
			return nil, nil, fmt.Errorf("verify cgroup controllers: %w", err)
		}
	}

	existing := root.Child(serviceName, false)
	if existing.Exists() {
		if err := existing.Shutdown(50*time.Millisecond, 4); err != nil {
			return nil, nil, fmt.Errorf("clear stale service cgroup: %w", err)
		}
	}

	service, err = root.CreateChild(serviceName, false)
	if err != nil {
		return nil, nil, err
	}
	if err := service.MoveSelf(); err != nil {
		return nil, nil, err
	}
	if err := root.EnableSubtreeControl(requiredControllers); err != nil {
		return nil, nil, err
	}
	return root, service, nil
}
