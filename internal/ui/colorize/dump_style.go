package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// Dark style tuned for hex dumps: offsets recede, data bytes carry the
// color, the ascii gutter reads as text.
var MemscanDark = styles.Register(chroma.MustNewStyle("memscan-dark", chroma.StyleEntries{
	chroma.Text:       "#D4D4D4",
	chroma.Background: "bg:#1e1e1e",

	// Offset column
	chroma.NameLabel:    "#858585",
	chroma.NameVariable: "#858585",

	// Data bytes
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	// ASCII gutter
	chroma.LiteralString: "#7C9C9D",
	chroma.Punctuation:   "#D4D4D4",

	chroma.Comment: "#6A9955",
}))
