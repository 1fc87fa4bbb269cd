//go:build linux

package proc

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EachRegion walks the target's address space in ascending order,
// calling fn once per eligible region until fn returns false or the
// walk ends. The walk streams /proc/<pid>/maps, so callers see regions
// (and can report progress) before enumeration completes.
//
// Eligibility: unreadable and guard-style pseudo mappings are always
// excluded. With all=false only the target application's own memory is
// visited: anonymous mappings, the heap and stacks, and the main
// executable's segments. all=true lifts that filter and visits every
// readable mapping, shared libraries included.
func (t *Target) EachRegion(all bool, fn func(Region) bool) error {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", t.pid))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("enumerate pid %d: %w", t.pid, ErrNoSuchProcess)
		}
		return fmt.Errorf("enumerate pid %d: %w", t.pid, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		r, err := parseMapsLine(sc.Text())
		if err != nil {
			continue
		}
		if !eligible(r, t.exe, all) {
			continue
		}
		if !fn(r) {
			return nil
		}
	}
	return sc.Err()
}

func eligible(r Region, exe string, all bool) bool {
	if !r.Readable {
		return false
	}
	// The vsyscall page faults on remote reads regardless of the 'r'
	// bit in maps.
	if r.Path == "[vsyscall]" || r.Path == "[vvar]" {
		return false
	}
	if all {
		return true
	}
	switch {
	case r.Path == "":
		return true
	case r.Path == "[heap]" || strings.HasPrefix(r.Path, "[stack"):
		return true
	case exe != "" && r.Path == exe:
		return true
	}
	return false
}

// parseMapsLine parses one /proc/<pid>/maps line:
//
//	559f2a60c000-559f2a62d000 rw-p 00000000 00:00 0    [heap]
func parseMapsLine(line string) (Region, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Region{}, fmt.Errorf("malformed maps line %q", line)
	}

	lo, hi, ok := strings.Cut(fields[0], "-")
	if !ok {
		return Region{}, fmt.Errorf("malformed address range %q", fields[0])
	}
	base, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("bad base address %q: %w", lo, err)
	}
	end, err := strconv.ParseUint(hi, 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("bad end address %q: %w", hi, err)
	}
	if end < base {
		return Region{}, fmt.Errorf("inverted range %q", fields[0])
	}

	perms := fields[1]
	r := Region{
		Base:     base,
		Size:     end - base,
		Readable: strings.Contains(perms, "r"),
		Writable: strings.Contains(perms, "w"),
	}
	if len(fields) >= 6 {
		// The path is everything after the inode column, not a single
		// field: executables installed under spaced paths must compare
		// equal to /proc/<pid>/exe.
		rest := line
		for i := 0; i < 5; i++ {
			rest = strings.TrimLeft(rest, " \t")
			j := strings.IndexAny(rest, " \t")
			if j < 0 {
				rest = ""
				break
			}
			rest = rest[j:]
		}
		r.Path = strings.TrimSpace(rest)
	}
	return r, nil
}
