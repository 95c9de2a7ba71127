package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/go-pdf/fpdf"
)

const (
	reportTitle  = "IPDR Prediction Report"
	noDataText   = "No prediction data available to generate a report."
	pageHeight   = 297.0
	pageMargin   = 10.0
	maxPieSlices = 8
)

var errNoChartData = errors.New("no data to plot")

var palette = [][3]int{
	{31, 119, 180},
	{255, 127, 14},
	{44, 160, 44},
	{214, 39, 40},
	{148, 103, 189},
	{140, 86, 75},
	{227, 119, 194},
	{127, 127, 127},
}

// chart is a laid-out figure. Layout happens before anything is drawn so a
// chart that cannot be laid out leaves no partial output on the page.
type chart struct {
	title  string
	height float64
	draw   func(pdf *fpdf.Fpdf, tr func(string) string, x, y, w float64)
}

type chartLayout struct {
	name   string
	layout func(Report) (chart, error)
}

var chartLayouts = []chartLayout{
	{name: "label_distribution", layout: layoutLabelPie},
	{name: "top_ips", layout: layoutTopIps},
	{name: "confidence_histogram", layout: layoutConfidenceHistogram},
}

func (e *Engine) WritePDF(ctx context.Context, w io.Writer) error {
	report, err := e.Build(ctx)
	if err != nil {
		return err
	}
	return RenderPDF(report, w)
}

func RenderPDF(report Report, w io.Writer) error {
	return renderPDF(report, chartLayouts, w)
}

func renderPDF(report Report, layouts []chartLayout, w io.Writer) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCreationDate(report.GeneratedAt)
	pdf.SetModificationDate(report.GeneratedAt)
	pdf.SetTitle(reportTitle, false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, reportTitle, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated at "+report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	if report.TotalPredictions == 0 {
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 8, noDataText, "", 1, "L", false, 0, "")
		return pdf.Output(w)
	}

	writeSummary(pdf, tr, report)

	width := 210 - 2*pageMargin
	for _, cl := range layouts {
		c, err := cl.layout(report)
		if err != nil {
			slog.Warn("skipping report chart", "chart", cl.name, "error", err)
			continue
		}
		if err := checkDraw(c, width); err != nil {
			slog.Warn("skipping report chart", "chart", cl.name, "error", err)
			continue
		}

		ensureSpace(pdf, c.height+12)
		heading(pdf, c.title)
		x, y := pdf.GetXY()
		c.draw(pdf, tr, x, y, width)
		pdf.SetXY(pageMargin, y+c.height+4)
	}

	writeSamples(pdf, tr, report)

	return pdf.Output(w)
}

// checkDraw renders c on a scratch document. fpdf errors are sticky and
// would fail the whole report, so a chart is only drawn for real once it has
// rendered cleanly here.
func checkDraw(c chart, width float64) error {
	scratch := fpdf.New("P", "mm", "A4", "")
	scratch.SetMargins(pageMargin, pageMargin, pageMargin)
	scratch.AddPage()
	scratch.SetFont("Helvetica", "", 10)
	tr := scratch.UnicodeTranslatorFromDescriptor("")

	x, y := scratch.GetXY()
	c.draw(scratch, tr, x, y, width)
	return scratch.Error()
}

func ensureSpace(pdf *fpdf.Fpdf, h float64) {
	if pdf.GetY()+h > pageHeight-pageMargin {
		pdf.AddPage()
	}
}

func heading(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
}

func writeSummary(pdf *fpdf.Fpdf, tr func(string) string, report Report) {
	heading(pdf, "Summary")
	pdf.CellFormat(0, 6, fmt.Sprintf("Total predictions: %d", report.TotalPredictions), "", 1, "L", false, 0, "")
	for _, l := range report.Labels {
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s: %d (%.1f%%)", l.Label, l.Count, percent(l.Count, report.TotalPredictions))), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// fit shortens s until it fits in width w at the current font.
func fit(pdf *fpdf.Fpdf, s string, w float64) string {
	if pdf.GetStringWidth(s) <= w {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > w {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

func setFill(pdf *fpdf.Fpdf, i int) {
	c := palette[i%len(palette)]
	pdf.SetFillColor(c[0], c[1], c[2])
}

type slice struct {
	label string
	count int64
}

func layoutLabelPie(report Report) (chart, error) {
	if len(report.Labels) == 0 || report.TotalPredictions == 0 {
		return chart{}, errNoChartData
	}

	var slices []slice
	var other int64
	for i, l := range report.Labels {
		if i < maxPieSlices-1 || len(report.Labels) == maxPieSlices {
			slices = append(slices, slice{label: l.Label, count: l.Count})
		} else {
			other += l.Count
		}
	}
	if other > 0 {
		slices = append(slices, slice{label: "other", count: other})
	}

	const radius = 30.0
	total := float64(report.TotalPredictions)

	return chart{
		title:  "Prediction Distribution",
		height: 2*radius + 4,
		draw: func(pdf *fpdf.Fpdf, tr func(string) string, x, y, w float64) {
			cx, cy := x+radius+2, y+radius+2
			start := -math.Pi / 2
			for i, s := range slices {
				sweep := 2 * math.Pi * float64(s.count) / total
				points := []fpdf.PointType{{X: cx, Y: cy}}
				steps := max(2, int(sweep/(math.Pi/90)))
				for j := 0; j <= steps; j++ {
					a := start + sweep*float64(j)/float64(steps)
					points = append(points, fpdf.PointType{X: cx + radius*math.Cos(a), Y: cy + radius*math.Sin(a)})
				}
				setFill(pdf, i)
				pdf.Polygon(points, "F")
				start += sweep

				ly := y + 4 + float64(i)*7
				pdf.Rect(x+2*radius+14, ly, 4, 4, "F")
				pdf.SetXY(x+2*radius+20, ly)
				label := fmt.Sprintf("%s: %d (%.1f%%)", s.label, s.count, percent(s.count, report.TotalPredictions))
				pdf.CellFormat(w-2*radius-20, 4, fit(pdf, tr(label), w-2*radius-20), "", 0, "L", false, 0, "")
			}
		},
	}, nil
}

func layoutTopIps(report Report) (chart, error) {
	if len(report.TopIps) == 0 {
		return chart{}, errNoChartData
	}

	const rowHeight = 6.0
	const labelWidth = 40.0
	maxCount := report.TopIps[0].Count
	for _, ip := range report.TopIps {
		maxCount = max(maxCount, ip.Count)
	}

	return chart{
		title:  fmt.Sprintf("Top %d IPs", len(report.TopIps)),
		height: float64(len(report.TopIps))*rowHeight + 2,
		draw: func(pdf *fpdf.Fpdf, tr func(string) string, x, y, w float64) {
			barSpace := w - labelWidth - 20
			setFill(pdf, 0)
			for i, ip := range report.TopIps {
				ry := y + float64(i)*rowHeight
				pdf.SetXY(x, ry)
				pdf.CellFormat(labelWidth, rowHeight-1, fit(pdf, tr(ip.Ip), labelWidth-2), "", 0, "L", false, 0, "")
				bw := barSpace * float64(ip.Count) / float64(maxCount)
				pdf.Rect(x+labelWidth, ry+0.5, bw, rowHeight-2, "F")
				pdf.SetXY(x+labelWidth+bw+2, ry)
				pdf.CellFormat(18, rowHeight-1, strconv.FormatInt(ip.Count, 10), "", 0, "L", false, 0, "")
			}
		},
	}, nil
}

func layoutConfidenceHistogram(report Report) (chart, error) {
	if report.Confidence.Total() == 0 {
		return chart{}, errNoChartData
	}

	var maxCount int64
	for _, c := range report.Confidence.Counts {
		maxCount = max(maxCount, c)
	}

	const plotHeight = 50.0

	return chart{
		title:  "Confidence Distribution",
		height: plotHeight + 8,
		draw: func(pdf *fpdf.Fpdf, tr func(string) string, x, y, w float64) {
			binWidth := w / HistogramBins
			base := y + plotHeight
			setFill(pdf, 2)
			for i, c := range report.Confidence.Counts {
				if c == 0 {
					continue
				}
				h := plotHeight * float64(c) / float64(maxCount)
				pdf.Rect(x+float64(i)*binWidth, base-h, binWidth-0.5, h, "FD")
			}
			pdf.Line(x, base, x+w, base)

			pdf.SetXY(x, base+1)
			pdf.CellFormat(20, 4, "0.0", "", 0, "L", false, 0, "")
			pdf.SetXY(x+w-20, base+1)
			pdf.CellFormat(20, 4, "1.0", "", 0, "R", false, 0, "")
			pdf.SetXY(x, y)
			pdf.CellFormat(40, 4, fmt.Sprintf("max %d", maxCount), "", 0, "L", false, 0, "")
		},
	}, nil
}

var sampleColumns = []struct {
	title string
	width float64
}{
	{"Row", 12},
	{"Prediction", 28},
	{"IP", 30},
	{"MSISDN", 30},
	{"Timestamp", 40},
	{"Volume", 24},
	{"Confidence", 24},
}

func writeSamples(pdf *fpdf.Fpdf, tr func(string) string, report Report) {
	if len(report.Samples) == 0 {
		return
	}

	ensureSpace(pdf, 8+6*float64(len(report.Samples)+1))
	heading(pdf, "Sample Predictions")

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range sampleColumns {
		pdf.CellFormat(col.width, 6, col.title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, rec := range report.Samples {
		values := exportRow(rec)
		for i, col := range sampleColumns {
			pdf.CellFormat(col.width, 6, fit(pdf, tr(values[i]), col.width-2), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
