package reports

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

const (
	chartWidth  = 900
	chartHeight = 420
	chartMargin = 48.0
	// Bars beyond this are dropped; the PDF table shows the same window.
	maxChartBars = 50
)

var (
	chartBackground = color.White
	chartAxis       = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	chartBar        = color.RGBA{R: 46, G: 117, B: 182, A: 255}
	chartNegative   = color.RGBA{R: 192, G: 80, B: 77, A: 255}
)

// BarChartPNG draws values as vertical bars with a zero baseline and returns
// the encoded PNG.
func BarChartPNG(title string, values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no values to chart")
	}
	if len(values) > maxChartBars {
		values = values[:maxChartBars]
	}

	lo, hi := 0.0, 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1
	}

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetColor(chartBackground)
	dc.Clear()

	plotW := float64(chartWidth) - 2*chartMargin
	plotH := float64(chartHeight) - 2*chartMargin
	yOf := func(v float64) float64 {
		return chartMargin + plotH*(hi-v)/(hi-lo)
	}
	baseline := yOf(0)

	slot := plotW / float64(len(values))
	barW := math.Max(1, slot*0.7)
	for i, v := range values {
		x := chartMargin + float64(i)*slot + (slot-barW)/2
		top := math.Min(yOf(v), baseline)
		h := math.Abs(yOf(v) - baseline)
		if v < 0 {
			dc.SetColor(chartNegative)
		} else {
			dc.SetColor(chartBar)
		}
		dc.DrawRectangle(x, top, barW, math.Max(h, 1))
		dc.Fill()
	}

	dc.SetColor(chartAxis)
	dc.SetLineWidth(1.5)
	dc.DrawLine(chartMargin, baseline, chartMargin+plotW, baseline)
	dc.DrawLine(chartMargin, chartMargin, chartMargin, chartMargin+plotH)
	dc.Stroke()

	dc.DrawStringAnchored(title, float64(chartWidth)/2, chartMargin/2, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.3g", hi), chartMargin-6, chartMargin, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.3g", lo), chartMargin-6, chartMargin+plotH, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("n=%d", len(values)), chartMargin+plotW, float64(chartHeight)-chartMargin/2, 1, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
