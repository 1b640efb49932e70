// Package board wires the LT-3 layer table to a pin backend.
package board

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Alia5/lt3/device/keyboard"
	"github.com/Alia5/lt3/internal/board/gpiocdev"
	"github.com/Alia5/lt3/internal/board/virtual"
	"github.com/Alia5/lt3/layout"
	"github.com/Alia5/lt3/matrix"
)

const (
	Rows = 1
	Cols = 2
)

// Layers is the LT-3 layer table: one layer, left switch Shift, right switch Ctrl.
var Layers = layout.Layers{
	{
		{layout.K(keyboard.KeyLeftShift), layout.K(keyboard.KeyLeftCtrl)},
	},
}

var ErrKind = errors.New("unknown board kind")

const (
	KindVirtual = "virtual"
	KindGPIO    = "gpio"
)

type Config struct {
	Kind        string `help:"Pin backend" default:"virtual" enum:"virtual,gpio" env:"LT3_BOARD_KIND"`
	Chip        string `help:"GPIO character device" default:"/dev/gpiochip0" env:"LT3_BOARD_CHIP"`
	RowLines    string `help:"Comma separated GPIO offsets driving rows" default:"8" env:"LT3_BOARD_ROW_LINES"`
	ColLines    string `help:"Comma separated GPIO offsets reading columns" default:"9,10" env:"LT3_BOARD_COL_LINES"`
	LedLine     int    `help:"GPIO offset of the caps lock LED (-1 for none)" default:"-1" env:"LT3_BOARD_LED_LINE"`
	Interactive bool   `help:"Toggle virtual switches from the terminal" default:"true" negatable:"" env:"LT3_BOARD_INTERACTIVE"`
}

// Board is an opened pin backend.
type Board struct {
	Cols []matrix.InputPin
	Rows []matrix.OutputPin
	Leds keyboard.Leds
	// Grid is set for the virtual backend.
	Grid  *virtual.Grid
	close func() error
}

func (b *Board) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the pins for cfg.Kind.
func Open(cfg Config, logger *slog.Logger) (*Board, error) {
	switch cfg.Kind {
	case KindVirtual, "":
		g := virtual.NewGrid(Rows, Cols)
		return &Board{Cols: g.Inputs(), Rows: g.Outputs(), Leds: g, Grid: g}, nil
	case KindGPIO:
		rows, err := ParseLines(cfg.RowLines)
		if err != nil {
			return nil, fmt.Errorf("row lines: %w", err)
		}
		cols, err := ParseLines(cfg.ColLines)
		if err != nil {
			return nil, fmt.Errorf("col lines: %w", err)
		}
		if len(rows) != Rows || len(cols) != Cols {
			return nil, fmt.Errorf("need %d row and %d col lines, got %d and %d", Rows, Cols, len(rows), len(cols))
		}
		p, err := gpiocdev.OpenPins(gpiocdev.Config{
			Chip:     cfg.Chip,
			Rows:     rows,
			Cols:     cols,
			Led:      cfg.LedLine,
			Consumer: "lt3",
		}, logger)
		if err != nil {
			return nil, err
		}
		return &Board{Cols: p.Cols, Rows: p.Rows, Leds: p.Leds, close: p.Close}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrKind, cfg.Kind)
	}
}

// ParseLines parses a comma separated list of line offsets.
func ParseLines(s string) ([]uint32, error) {
	var out []uint32
	for f := range strings.SplitSeq(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid line offset %q", f)
		}
		out = append(out, uint32(v))
	}
	if len(out) == 0 {
		return nil, errors.New("no line offsets")
	}
	return out, nil
}

// WriteKeymap prints every layer as a table of action names.
func WriteKeymap(w io.Writer, layers layout.Layers) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for li, layer := range layers {
		fmt.Fprintf(tw, "layer %d\n", li)
		for ri, row := range layer {
			cells := make([]string, 0, len(row)+1)
			cells = append(cells, fmt.Sprintf("  row %d", ri))
			for _, a := range row {
				cells = append(cells, a.String())
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
	}
	return tw.Flush()
}
