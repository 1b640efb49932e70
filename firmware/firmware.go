// Package firmware wires the keyboard pipeline into the periodic tick:
// scan, debounce, layout, render and submit the report to the USB class.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/Alia5/lt3/debounce"
	"github.com/Alia5/lt3/device/keyboard"
	"github.com/Alia5/lt3/internal/log"
	"github.com/Alia5/lt3/layout"
	"github.com/Alia5/lt3/matrix"
	"github.com/Alia5/lt3/sched"
)

// DefaultMaxWriteRetries bounds the busy-wait on a full IN endpoint.
const DefaultMaxWriteRetries = 16

// Config is the firmware section of the run command.
type Config struct {
	TickRate        uint            `help:"Matrix scan rate in Hz" default:"1000" env:"LT3_FIRMWARE_TICK_RATE"`
	MaxWriteRetries int             `help:"Write attempts per tick while the IN endpoint is busy" default:"16" env:"LT3_FIRMWARE_MAX_WRITE_RETRIES"`
	Debounce        debounce.Config `embed:"" prefix:"debounce."`
}

// DefaultConfig returns the values the kong defaults describe.
func DefaultConfig() Config {
	return Config{
		TickRate:        sched.DefaultTickRate,
		MaxWriteRetries: DefaultMaxWriteRetries,
		Debounce:        debounce.Config{Threshold: debounce.DefaultThreshold},
	}
}

// Scanner reads the raw switch grid.
type Scanner interface {
	Scan() (matrix.PressedKeys, error)
	Rows() int
	Cols() int
}

// Stats counts what happened across ticks.
type Stats struct {
	Ticks       uint64
	ScanErrors  uint64
	ReportsSent uint64
	BusyRetries uint64
	Deferred    uint64
	Dropped     uint64
}

type counters struct {
	ticks, scanErrors, sent, busy, deferred, dropped atomic.Uint64
}

// App owns the pipeline state. Everything except the class is private to
// the tick task.
type App struct {
	cfg       Config
	scanner   Scanner
	debouncer *debounce.Debouncer
	layout    *layout.Layout
	class     *sched.Resource[keyboard.Class]
	task      *sched.Task
	timer     *sched.Timer
	logger    *slog.Logger
	stats     counters
}

// New builds the pipeline and registers the tick task and its timer on s.
func New(s *sched.Scheduler, cfg Config, scanner Scanner, layers layout.Layers, class *sched.Resource[keyboard.Class], logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxWriteRetries < 0 {
		return nil, fmt.Errorf("max write retries must not be negative, got %d", cfg.MaxWriteRetries)
	}
	if len(layers) == 0 {
		return nil, errors.New("layer table is empty")
	}
	deb, err := debounce.New(scanner.Rows(), scanner.Cols(), cfg.Debounce)
	if err != nil {
		return nil, fmt.Errorf("debouncer: %w", err)
	}
	a := &App{
		cfg:       cfg,
		scanner:   scanner,
		debouncer: deb,
		layout:    layout.New(layers),
		class:     class,
		logger:    logger.With("task", "tick"),
	}
	a.task = s.NewTask("tick", sched.PriorityTick, a.tick)
	a.timer, err = sched.NewTimer(a.task, cfg.TickRate)
	if err != nil {
		return nil, fmt.Errorf("tick timer: %w", err)
	}
	return a, nil
}

// Step runs one tick synchronously.
func (a *App) Step() { a.task.Exec(a.tick) }

// Timer returns the periodic tick trigger.
func (a *App) Timer() *sched.Timer { return a.timer }

// Stats returns a snapshot of the counters.
func (a *App) Stats() Stats {
	return Stats{
		Ticks:       a.stats.ticks.Load(),
		ScanErrors:  a.stats.scanErrors.Load(),
		ReportsSent: a.stats.sent.Load(),
		BusyRetries: a.stats.busy.Load(),
		Deferred:    a.stats.deferred.Load(),
		Dropped:     a.stats.dropped.Load(),
	}
}

func (a *App) tick(c *sched.Context) {
	a.stats.ticks.Add(1)
	raw, err := a.scanner.Scan()
	if err != nil {
		a.stats.scanErrors.Add(1)
		a.logger.Warn("matrix scan failed, skipping tick", "error", err)
		return
	}
	events, err := a.debouncer.Events(raw)
	if err != nil {
		a.logger.Error("debounce failed", "error", err)
		return
	}
	for _, e := range events {
		a.logger.Debug("key event", "event", e.String())
		a.layout.Event(e)
	}
	a.stats.dropped.Store(a.layout.Dropped())
	report := keyboard.Render(a.layout.Tick())

	a.class.Lock(c, func(cl *keyboard.Class) { a.submit(cl, report) })
}

// submit hands the report to the class. A report the endpoint cannot take
// within the retry budget stays pending and goes out on a later tick.
func (a *App) submit(cl *keyboard.Class, report keyboard.Report) {
	if !cl.SetKeyboardReport(report) && !cl.Pending() {
		return
	}
	for range a.cfg.MaxWriteRetries + 1 {
		n, err := cl.Write(report.Bytes())
		if err != nil {
			if !errors.Is(err, keyboard.ErrNotConfigured) {
				a.logger.Warn("report write failed", "error", err)
			}
			return
		}
		if n > 0 {
			a.stats.sent.Add(1)
			a.logger.Log(context.Background(), log.LevelTrace, "report sent", "report", log.Dump(report[:]))
			return
		}
		a.stats.busy.Add(1)
		runtime.Gosched()
	}
	a.stats.deferred.Add(1)
	a.logger.Debug("endpoint busy, report deferred", "report", log.Dump(report[:]))
}
