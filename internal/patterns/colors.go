package patterns

// DefaultColor is used for patterns without a configured position.
const DefaultColor = "#FFFFFF"

var palette = []string{
	"#F28E2B",
	"#4E79A7",
	"#59A14F",
	"#E15759",
	"#B07AA1",
	"#EDC948",
	"#76B7B2",
	"#FF9DA7",
	"#9C755F",
	"#BAB0AC",
}

// ColorAt returns the palette color for a pattern position. Positions wrap
// around the palette; negative positions yield DefaultColor.
func ColorAt(index int) string {
	if index < 0 {
		return DefaultColor
	}
	return palette[index%len(palette)]
}
