package virtual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

var (
	ErrNotTerminal = errors.New("stdin is not a terminal")
	ErrInterrupted = errors.New("interrupted from the terminal")
)

// DefaultKeys assigns keyboard keys to switches, one string per row.
var DefaultKeys = []string{"asdfghjkl;", "zxcvbnm,./", "qwertyuiop"}

const (
	keyCtrlC  = 0x03
	keyEscape = 0x1b
	keySpace  = ' '
)

// Terminal toggles grid switches from raw terminal input: each mapped key
// flips its switch, space releases everything, Ctrl-C or Esc ends the
// session.
type Terminal struct {
	grid   *Grid
	keys   map[byte][2]int
	in     *os.File
	out    io.Writer
	logger *slog.Logger
}

// NewTerminal maps DefaultKeys onto g.
func NewTerminal(g *Grid, in *os.File, out io.Writer, logger *slog.Logger) *Terminal {
	t := &Terminal{grid: g, keys: make(map[byte][2]int), in: in, out: out, logger: logger}
	for r := 0; r < g.Rows() && r < len(DefaultKeys); r++ {
		for c := 0; c < g.Cols() && c < len(DefaultKeys[r]); c++ {
			t.keys[DefaultKeys[r][c]] = [2]int{r, c}
		}
	}
	return t
}

// HandleKey applies one input byte and reports whether the session ends.
func (t *Terminal) HandleKey(b byte) bool {
	switch b {
	case keyCtrlC, keyEscape:
		return true
	case keySpace:
		t.grid.Release()
		return false
	}
	if pos, ok := t.keys[b]; ok {
		closed := t.grid.Toggle(pos[0], pos[1])
		t.logger.Debug("switch toggled", "row", pos[0], "col", pos[1], "closed", closed)
	}
	return false
}

// Status is the one-line view redrawn after every key.
func (t *Terminal) Status() string {
	caps := "off"
	if t.grid.CapsLockOn() {
		caps = "ON"
	}
	return fmt.Sprintf("switches [%s]  caps lock %s", t.grid, caps)
}

// Help lists the key assignments.
func (t *Terminal) Help() string {
	s := "keys:"
	for r := 0; r < t.grid.Rows() && r < len(DefaultKeys); r++ {
		n := min(t.grid.Cols(), len(DefaultKeys[r]))
		s += fmt.Sprintf(" row %d = %q", r, DefaultKeys[r][:n])
	}
	return s + "; space releases all; Esc or Ctrl-C quits"
}

// Run puts the terminal in raw mode and processes keys until ctx is done
// or the user quits, which returns ErrInterrupted.
func (t *Terminal) Run(ctx context.Context) error {
	fd := int(t.in.Fd())
	if !term.IsTerminal(fd) {
		return ErrNotTerminal
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer func() {
		_ = term.Restore(fd, state)
		_, _ = fmt.Fprint(t.out, "\r\n")
	}()

	keys := make(chan byte)
	go func() {
		var buf [1]byte
		for {
			n, err := t.in.Read(buf[:])
			if err != nil {
				close(keys)
				return
			}
			if n == 1 {
				select {
				case keys <- buf[0]:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	_, _ = fmt.Fprintf(t.out, "%s\r\n", t.Help())
	t.grid.OnLed(func(bool) { t.redraw() })
	defer t.grid.OnLed(nil)
	t.redraw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-keys:
			if !ok {
				return nil
			}
			if t.HandleKey(b) {
				return ErrInterrupted
			}
			t.redraw()
		}
	}
}

func (t *Terminal) redraw() {
	_, _ = fmt.Fprintf(t.out, "\r\x1b[2K%s", t.Status())
}
