// Package colorize applies terminal syntax highlighting to the memory
// inspector's hex dumps.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// getHexdumpLexer returns the hexdump lexer if chroma ships one.
func getHexdumpLexer() chroma.Lexer {
	candidates := []string{"hexdump", "Hexdump"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDumpStyle returns our style with fallbacks.
func getDumpStyle() *chroma.Style {
	candidates := []string{"memscan-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter.
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Hexdump highlights a hex dump for terminal display. On any failure,
// or when MEMSCAN_NO_COLOR is set, the input comes back unchanged.
func Hexdump(dump string) string {
	if os.Getenv("MEMSCAN_NO_COLOR") != "" {
		return dump
	}

	lexer := getHexdumpLexer()
	if lexer == nil {
		return dump
	}

	iterator, err := lexer.Tokenise(nil, dump)
	if err != nil {
		return dump
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDumpStyle(), iterator); err != nil {
		return dump
	}
	return buf.String()
}
