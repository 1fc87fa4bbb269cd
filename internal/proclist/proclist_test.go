package proclist

import "testing"

func TestIsSystem(t *testing.T) {
	tests := []struct {
		name string
		rss  uint64
		want bool
	}{
		{"firefox", 512 << 20, false},
		{"game.exe", 64 << 20, false},
		{"svchost.exe", 32 << 20, true},
		{"SvcHost.EXE", 32 << 20, true}, // case-insensitive
		{"systemd", 8 << 20, true},
		{"systemd-journald", 8 << 20, true},
		{"tinyd", 256 << 10, true}, // below minRSS
		{"explorer.exe", 128 << 20, true},
	}

	for _, tt := range tests {
		if got := isSystem(tt.name, tt.rss); got != tt.want {
			t.Errorf("isSystem(%q, %d) = %v, want %v", tt.name, tt.rss, got, tt.want)
		}
	}
}
