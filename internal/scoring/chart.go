package scoring

import "math"

// Anchor is the horizontal text alignment of a chart label.
type Anchor string

const (
	AnchorStart  Anchor = "start"
	AnchorMiddle Anchor = "middle"
	AnchorEnd    Anchor = "end"
)

// Geometry describes the radial ("octopus") summary chart.
type Geometry struct {
	CenterX, CenterY float64
	// Radius is the length of a spoke for a score of 10.
	Radius float64
	// LabelOffset is how far beyond Radius labels are placed.
	LabelOffset float64
	// LabelNudge shifts start/end anchored labels away from their spoke.
	LabelNudge float64
}

// DefaultGeometry matches the 800x800 canvas the mobile client renders.
var DefaultGeometry = Geometry{
	CenterX:     400,
	CenterY:     400,
	Radius:      200,
	LabelOffset: 80,
	LabelNudge:  20,
}

// Point is the placement of one priority area on the chart.
type Point struct {
	Name   string  `json:"name"`
	Score  int     `json:"score"`
	Angle  float64 `json:"angle"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	LabelX float64 `json:"label_x"`
	LabelY float64 `json:"label_y"`
	Anchor Anchor  `json:"anchor"`
}

// Layout spreads areas evenly around the centre, clockwise from the top of
// the chart. Each point sits at Radius*score/10 along its spoke, so scores
// outside 1-10 land inside the centre or past the ring.
func Layout(areas []PriorityArea, g Geometry) []Point {
	if len(areas) == 0 {
		return nil
	}
	step := 2 * math.Pi / float64(len(areas))
	labelR := g.Radius + g.LabelOffset

	points := make([]Point, len(areas))
	for i, a := range areas {
		angle := float64(i) * step
		// Screen y grows downward: angle 0 points up, pi/2 to the right.
		dx, dy := math.Sin(angle), -math.Cos(angle)
		r := g.Radius * float64(a.Score) / 10

		anchor := anchorFor(angle)
		labelX := g.CenterX + labelR*dx
		switch anchor {
		case AnchorStart:
			labelX -= g.LabelNudge
		case AnchorEnd:
			labelX += g.LabelNudge
		}

		points[i] = Point{
			Name:   a.Name,
			Score:  a.Score,
			Angle:  angle,
			X:      g.CenterX + r*dx,
			Y:      g.CenterY + r*dy,
			LabelX: labelX,
			LabelY: g.CenterY + labelR*dy,
			Anchor: anchor,
		}
	}
	return points
}

// anchorFor aligns labels so they grow away from the chart: spokes on the
// right side start at the label point, spokes on the bottom and left end at
// it, and the top spoke is centred.
func anchorFor(angle float64) Anchor {
	switch {
	case angle > math.Pi/4 && angle < 3*math.Pi/4:
		return AnchorStart
	case angle > 3*math.Pi/4 && angle < 7*math.Pi/4:
		return AnchorEnd
	default:
		return AnchorMiddle
	}
}
