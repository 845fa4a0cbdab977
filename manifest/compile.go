package manifest

import (
	"strings"
)

// IndentWidth is the number of spaces added per nesting level.
const IndentWidth = 4

// itemMarker prefixes sequence entries.
const itemMarker = "- "

// Compile renders root as compose-style YAML text.
//
// Mappings render as "key: value" for scalar values and "key:" followed by
// an indented block otherwise. Sequences render one "- " entry per item.
// A mapping inside a sequence carries the marker on its first key; the
// remaining keys line up two columns to the right of the marker.
func Compile(root Node) string {
	var b strings.Builder
	render(&b, root, 0, 0, "")
	return b.String()
}

// render writes n at the given depth. extra is the number of columns added
// on top of depth*IndentWidth by enclosing list markers. marker, when set,
// replaces the leading columns of the first mapping key.
func render(b *strings.Builder, n Node, depth, extra int, marker string) {
	pad := strings.Repeat(" ", depth*IndentWidth+extra)

	switch n.kind {
	case KindMapping:
		for _, f := range n.fields {
			lead := pad
			if marker != "" {
				lead = strings.Repeat(" ", max(len(pad)-len(marker), 0)) + marker
				marker = ""
			}
			if f.Value.kind == KindScalar {
				b.WriteString(lead + f.Key + ": " + f.Value.scalar + "\n")
				continue
			}
			b.WriteString(lead + f.Key + ":\n")
			render(b, f.Value, depth+1, extra, "")
		}
	case KindSequence:
		for _, item := range n.items {
			switch item.kind {
			case KindMapping:
				render(b, item, depth, extra+len(itemMarker), itemMarker)
			case KindSequence:
				render(b, item, depth+1, extra, "")
			default:
				b.WriteString(pad + itemMarker + item.scalar + "\n")
			}
		}
	default:
		b.WriteString(n.scalar + "\n")
	}
}
