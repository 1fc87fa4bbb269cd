package hexdump

import (
	"strings"
	"testing"
)

func TestDump(t *testing.T) {
	data := append([]byte("Hi"), 0x00, 0xff)
	out := Dump(data, 0x1000)

	if !strings.Contains(out, "0000000000001000") {
		t.Errorf("missing base address: %q", out)
	}
	if !strings.Contains(out, "48 69 00 ff") {
		t.Errorf("missing hex bytes: %q", out)
	}
	if !strings.Contains(out, "|Hi..|") {
		t.Errorf("missing ascii gutter: %q", out)
	}
}

func TestDumpLineCount(t *testing.T) {
	out := Dump(make([]byte, 33), 0)
	if got := strings.Count(out, "\n"); got != 3 {
		t.Errorf("lines = %d, want 3", got)
	}
}

func TestDumpEmpty(t *testing.T) {
	if out := Dump(nil, 0); out != "" {
		t.Errorf("Dump(nil) = %q, want empty", out)
	}
}
