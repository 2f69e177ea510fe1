package isolation

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
)

// IDMap is one newuidmap/newgidmap mapping triple: map count IDs starting
// at OutsideStart (on the host) to InsideStart (inside the namespace).
type IDMap struct {
	InsideStart  uint32
	OutsideStart uint32
	Count        uint32
}

func (m IDMap) args() []string {
	return []string{
		strconv.FormatUint(uint64(m.InsideStart), 10),
		strconv.FormatUint(uint64(m.OutsideStart), 10),
		strconv.FormatUint(uint64(m.Count), 10),
	}
}

// mapIDsWithCmd invokes newuidmap/newgidmap (prog) against pid with one or
// more mappings. A non-zero exit aborts the worker.
func mapIDsWithCmd(prog string, pid int, maps []IDMap) error {
	args := []string{strconv.Itoa(pid)}
	for _, m := range maps {
		args = append(args, m.args()...)
	}
	cmd := exec.Command(prog, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", prog, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// subIDRange reads the delegated sub-UID or sub-GID range for the current
// user from /etc/subuid or /etc/subgid, falling back to an explicit
// override when provided.
func subIDRange(path string, override *SubIDRange) (SubIDRange, error) {
	if override != nil {
		return *override, nil
	}

	me, err := user.Current()
	if err != nil {
		return SubIDRange{}, fmt.Errorf("determine current user: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return SubIDRange{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) != 3 {
			continue
		}
		if fields[0] != me.Username && fields[0] != me.Uid {
			continue
		}
		start, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			continue
		}
		count, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			continue
		}
		return SubIDRange{Start: uint32(start), End: uint32(start + count)}, nil
	}
	return SubIDRange{}, fmt.Errorf("no sub-id range for %s in %s", me.Username, path)
}

// randomOutsideStart picks a random outside-start inside [rng.Start,
// rng.End) leaving room for `count` consecutive IDs. Picking randomly
// rather than always starting at rng.Start limits accidental collisions
// between concurrent workers; a collision doesn't compromise isolation
// since each worker lives in its own user namespace regardless.
func randomOutsideStart(rng SubIDRange, count uint32) (uint32, error) {
	span := int64(rng.End) - int64(rng.Start) - int64(count)
	if span <= 0 {
		return 0, fmt.Errorf("sub-id range %d-%d too small for %d ids", rng.Start, rng.End, count)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(span+1))
	if err != nil {
		return 0, fmt.Errorf("generate random sub-id offset: %w", err)
	}
	return rng.Start + uint32(n.Int64()), nil
}

// MapUIDGID maps the root (0) and runner (RunnerUID/RunnerGID) identities
// inside the worker's new user namespace to randomly chosen delegated
// ranges on the host, then invokes newuidmap/newgidmap for pid (the
// worker's own, host-visible PID — it is PID 1 inside its own namespace).
// The outside ranges come from /etc/subuid/subgid (or configured
// overrides), with a random outside start rather than a hardcoded one.
func MapUIDGID(pid int, cfg *IsolationConfig) error {
	uidRange, err := subIDRange("/etc/subuid", cfg.OverrideSubUID)
	if err != nil {
		return err
	}
	gidRange, err := subIDRange("/etc/subgid", cfg.OverrideSubGID)
	if err != nil {
		return err
	}

	uidStart, err := randomOutsideStart(uidRange, 2)
	if err != nil {
		return fmt.Errorf("pick uid range: %w", err)
	}
	gidStart, err := randomOutsideStart(gidRange, 2)
	if err != nil {
		return fmt.Errorf("pick gid range: %w", err)
	}

	uidMaps := []IDMap{
		{InsideStart: 0, OutsideStart: uidStart, Count: 1},
		{InsideStart: RunnerUID, OutsideStart: uidStart + 1, Count: 1},
	}
	gidMaps := []IDMap{
		{InsideStart: 0, OutsideStart: gidStart, Count: 1},
		{InsideStart: RunnerGID, OutsideStart: gidStart + 1, Count: 1},
	}

	if err := mapIDsWithCmd("newuidmap", pid, uidMaps); err != nil {
		return err
	}
	if err := mapIDsWithCmd("newgidmap", pid, gidMaps); err != nil {
		return err
	}
	return nil
}
