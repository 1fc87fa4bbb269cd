// Package proclist lists candidate target processes. It is a
// collaborator of the scan engine, not part of it: the engine only
// ever consumes a chosen pid.
package proclist

import (
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Entry describes one running process.
type Entry struct {
	Pid    int32
	Name   string
	RSS    uint64 // resident memory in bytes
	User   string
	System bool
}

// Processes below this footprint are almost never interesting targets.
const minRSS = 1 << 20

// Names of processes that are part of the OS rather than something a
// user would scan. The default listing hides them; --all shows them.
var systemNames = map[string]bool{
	// Windows
	"system": true, "registry": true, "smss.exe": true, "csrss.exe": true,
	"wininit.exe": true, "winlogon.exe": true, "services.exe": true,
	"svchost.exe": true, "lsass.exe": true, "dwm.exe": true,
	"conhost.exe": true, "sihost.exe": true, "taskhostw.exe": true,
	"audiodg.exe": true, "runtimebroker.exe": true, "searchindexer.exe": true,
	"spoolsv.exe": true, "explorer.exe": true, "dllhost.exe": true,
	"memcompression": true, "secure system": true,
	// Linux
	"systemd": true, "systemd-journald": true, "systemd-logind": true,
	"systemd-udevd": true, "systemd-resolved": true, "dbus-daemon": true,
	"rsyslogd": true, "cron": true, "sshd": true, "agetty": true,
	"init": true, "kthreadd": true, "polkitd": true, "networkmanager": true,
}

// List returns running processes, likely targets first (largest
// resident set at the top). With all=false, system processes and tiny
// daemons are filtered out.
func List(all bool) ([]Entry, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue // gone or unreadable between listing and query
		}
		var rss uint64
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			rss = mi.RSS
		}
		user, _ := p.Username()

		e := Entry{
			Pid:    p.Pid,
			Name:   name,
			RSS:    rss,
			User:   user,
			System: isSystem(name, rss),
		}
		if !all && e.System {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RSS != entries[j].RSS {
			return entries[i].RSS > entries[j].RSS
		}
		return entries[i].Pid < entries[j].Pid
	})
	return entries, nil
}

func isSystem(name string, rss uint64) bool {
	if systemNames[strings.ToLower(name)] {
		return true
	}
	return rss < minRSS
}
