// Package hexdump renders memory as a classic hex dump, 16 bytes per
// line with printable characters on the right.
package hexdump

import (
	"fmt"
	"strings"
)

// Dump formats buffer as hex lines addressed from base.
func Dump(buffer []byte, base uint64) string {
	var b strings.Builder
	for i := 0; i < len(buffer); i += 16 {
		fmt.Fprintf(&b, "%016x ", base+uint64(i))
		for j := 0; j < 16; j++ {
			if j == 8 {
				b.WriteByte(' ')
			}
			if i+j < len(buffer) {
				fmt.Fprintf(&b, " %02x", buffer[i+j])
			} else {
				b.WriteString("   ")
			}
		}

		b.WriteString("  |")
		for j := 0; j < 16 && i+j < len(buffer); j++ {
			c := buffer[i+j]
			if c >= 32 && c <= 126 {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}
	return b.String()
}
