// Package chart renders the monthly category breakdown as a PNG donut chart.
// Rendering happens entirely in memory.
package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"gastos/internal/core"
	"gastos/internal/log"

	"github.com/dustin/go-humanize"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 800
)

// ErrNoData is wrapped by RenderError when no category has a positive total.
var ErrNoData = errors.New("no positive category totals")

// RenderError is the only failure Render returns. The orchestrator treats
// it as recoverable and falls back to a text report.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render chart: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

type Renderer struct {
	Width  int
	Height int
	logger *log.Logger
}

func NewRenderer(logger *log.Logger) *Renderer {
	if logger == nil {
		logger = log.Discard()
	}
	return &Renderer{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		logger: logger.WithComponent(log.ComponentChart),
	}
}

type result struct {
	png []byte
	err error
}

// Render draws one slice per category with a positive total, colored from
// the category table and labeled with the name and share. A context that
// expires first yields a RenderError wrapping the context error.
func (r *Renderer) Render(ctx context.Context, agg core.Aggregation, label string) ([]byte, error) {
	slices := Slices(agg)
	if len(slices) == 0 {
		return nil, &RenderError{Err: ErrNoData}
	}
	if err := ctx.Err(); err != nil {
		return nil, &RenderError{Err: err}
	}

	done := make(chan result, 1)
	go func() {
		png, err := r.draw(label, slices)
		done <- result{png: png, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &RenderError{Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			return nil, &RenderError{Err: res.err}
		}
		r.logger.DebugContext(ctx, "Chart rendered",
			"slices", len(slices),
			log.FieldImageSize, humanize.Bytes(uint64(len(res.png))))
		return res.png, nil
	}
}

// draw recovers panics from the raster backend into an error.
func (r *Renderer) draw(label string, slices []gochart.Value) (png []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			png = nil
			err = fmt.Errorf("renderer panic: %v", p)
		}
	}()

	donut := gochart.DonutChart{
		Title: fmt.Sprintf("Gastos de %s", label),
		TitleStyle: gochart.Style{
			FontSize:  18,
			FontColor: drawing.ColorFromHex("333333"),
		},
		Width:  r.width(),
		Height: r.height(),
		Background: gochart.Style{
			FillColor: drawing.ColorWhite,
		},
		SliceStyle: gochart.Style{
			FontSize:    12,
			FontColor:   drawing.ColorFromHex("333333"),
			StrokeColor: drawing.ColorWhite,
			StrokeWidth: 2,
		},
		Values: slices,
	}

	var buf bytes.Buffer
	if err := donut.Render(gochart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) width() int {
	if r.Width <= 0 {
		return DefaultWidth
	}
	return r.Width
}

func (r *Renderer) height() int {
	if r.Height <= 0 {
		return DefaultHeight
	}
	return r.Height
}

// Slices converts the non-zero breakdown into chart values in descending
// order. Labels carry the category name and its share of the grand total.
func Slices(agg core.Aggregation) []gochart.Value {
	breakdown := agg.Breakdown()
	out := make([]gochart.Value, 0, len(breakdown))
	for _, ca := range breakdown {
		if !ca.Amount.IsPositive() {
			continue
		}
		info, _ := core.LookupCategory(ca.Category)
		out = append(out, gochart.Value{
			Label: fmt.Sprintf("%s %s%%", ca.Category, agg.Share(ca.Amount).StringFixed(1)),
			Value: ca.Amount.InexactFloat64(),
			Style: gochart.Style{
				FillColor: drawing.ColorFromHex(info.Color),
			},
		})
	}
	return out
}
