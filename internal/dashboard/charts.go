// Package dashboard turns the backend's pre-aggregated statistics into chart geometry
// and keeps the debounced profile editor shown in the dashboard shell.
package dashboard

import (
	"fmt"
	"math"
	"strconv"

	"linkoraadmin/internal/models"
)

// Pie charts are drawn in a 200x200 viewBox.
const (
	pieCenter = 100.0
	pieRadius = 80.0
)

var palette = []string{"#3b82f6", "#6366f1", "#8b5cf6", "#a855f7", "#c084fc", "#d8b4fe", "#10b981", "#06b6d4"}

type Bar struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	// Width is the bar length as a percentage of the largest value.
	Width float64 `json:"width"`
}

type Segment struct {
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
	StartAngle float64 `json:"start_angle"`
	EndAngle   float64 `json:"end_angle"`
	Path       string  `json:"path"`
	Color      string  `json:"color"`
}

func Bars(points []models.Point) []Bar {
	out := make([]Bar, 0, len(points))
	maxValue := 0.0
	for _, p := range points {
		maxValue = math.Max(maxValue, p.Value)
	}
	for _, p := range points {
		b := Bar{Label: p.Label, Value: p.Value}
		if maxValue > 0 {
			b.Width = p.Value / maxValue * 100
		}
		out = append(out, b)
	}
	return out
}

// Pie lays points out clockwise from angle zero. Percentages are of the series total;
// a zero total yields no segments.
func Pie(points []models.Point) []Segment {
	total := 0.0
	for _, p := range points {
		if p.Value > 0 {
			total += p.Value
		}
	}
	if total == 0 {
		return []Segment{}
	}
	out := make([]Segment, 0, len(points))
	cumulative := 0.0
	for i, p := range points {
		if p.Value <= 0 {
			continue
		}
		pct := p.Value / total * 100
		start := cumulative * 3.6
		cumulative += pct
		end := cumulative * 3.6
		out = append(out, Segment{
			Label:      p.Label,
			Value:      p.Value,
			Percentage: pct,
			StartAngle: start,
			EndAngle:   end,
			Path:       ArcPath(start, end),
			Color:      palette[i%len(palette)],
		})
	}
	return out
}

// ArcPath returns the SVG path of a wedge between two angles in degrees.
func ArcPath(start, end float64) string {
	if end-start >= 360 {
		// A single arc cannot close on itself; split the full circle in two.
		return fmt.Sprintf("M %s %s A 80 80 0 1 1 %s %s A 80 80 0 1 1 %s %s Z",
			num(pieCenter+pieRadius), num(pieCenter),
			num(pieCenter-pieRadius), num(pieCenter),
			num(pieCenter+pieRadius), num(pieCenter))
	}
	x1, y1 := point(start)
	x2, y2 := point(end)
	large := 0
	if end-start > 180 {
		large = 1
	}
	return fmt.Sprintf("M 100 100 L %s %s A 80 80 0 %d 1 %s %s Z", num(x1), num(y1), large, num(x2), num(y2))
}

func point(deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	return pieCenter + pieRadius*math.Cos(rad), pieCenter + pieRadius*math.Sin(rad)
}

func num(v float64) string {
	v = math.Round(v*1000) / 1000
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
