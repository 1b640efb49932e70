package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alia5/lt3/device/keyboard"
	"github.com/Alia5/lt3/firmware"
	"github.com/Alia5/lt3/internal/board"
	"github.com/Alia5/lt3/internal/board/virtual"
	"github.com/Alia5/lt3/internal/log"
	"github.com/Alia5/lt3/internal/server/usb"
	"github.com/Alia5/lt3/matrix"
	"github.com/Alia5/lt3/sched"
	"github.com/Alia5/lt3/virtualbus"
)

type Run struct {
	Firmware          firmware.Config  `embed:"" prefix:"firmware."`
	Board             board.Config     `embed:"" prefix:"board."`
	UsbServerConfig   usb.ServerConfig `embed:"" prefix:"usb."`
	ConnectionTimeout time.Duration    `help:"USB-IP connection operation timeout" default:"30s" env:"LT3_CONNECTION_TIMEOUT"`
}

// Run is called by Kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Start(ctx, logger, rawLogger, os.Stdin, os.Stdout)
}

// Start runs the firmware until ctx is done. in and out drive the
// interactive virtual board when it is enabled.
func (r *Run) Start(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger, in *os.File, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.UsbServerConfig.ConnectionTimeout = r.ConnectionTimeout

	b, err := board.Open(r.Board, logger)
	if err != nil {
		return fmt.Errorf("open board: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("close board", "error", err)
		}
	}()
	m, err := matrix.New(b.Cols, b.Rows)
	if err != nil {
		return fmt.Errorf("init matrix: %w", err)
	}

	s := sched.New(logger)
	dev := keyboard.New(s, b.Leds, logger, sched.PriorityTick)
	app, err := firmware.New(s, r.Firmware, m, board.Layers, dev.Class(), logger)
	if err != nil {
		return err
	}

	bus, err := virtualbus.New(r.UsbServerConfig.BusID)
	if err != nil {
		return err
	}
	defer bus.Close()
	_, meta, err := bus.Add(dev)
	if err != nil {
		return err
	}

	logger.Info("Starting LT-3 USB-IP server", "addr", r.UsbServerConfig.Addr, "busid", meta.BusID())
	srv := usb.New(r.UsbServerConfig, logger, rawLogger)
	if err := srv.AddBus(bus); err != nil {
		return err
	}
	usbErrCh := make(chan error, 1)
	go func() {
		usbErrCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-usbErrCh:
		return err
	case <-srv.Ready():
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = s.Run(ctx)
	}()
	logger.Info("Firmware running", "tickRate", r.Firmware.TickRate, "debounce", r.Firmware.Debounce.Threshold)

	if r.UsbServerConfig.AutoAttach {
		logger.Info("Auto-attach is enabled, checking prerequisites...")
		if !usb.CheckAutoAttachPrerequisites(logger) {
			logger.Warn("Auto-attach prerequisites not met")
			logger.Info("You can disable auto-attach with --usb.auto-attach=false")
		} else {
			go func() {
				_ = usb.AttachLocalhostClient(ctx, &meta, srv.ListenPort(), logger)
			}()
		}
	}

	if b.Grid != nil && r.Board.Interactive {
		go r.interact(ctx, cancel, b.Grid, in, out, logger)
	}

	var runErr error
	usbDone := false
	select {
	case <-ctx.Done():
	case runErr = <-usbErrCh:
		usbDone = true
		cancel()
	}
	<-schedDone
	_ = bus.Close()
	_ = srv.Close()
	if !usbDone {
		runErr = <-usbErrCh
	}

	st := app.Stats()
	logger.Info("Firmware stopped",
		"ticks", st.Ticks,
		"reports", st.ReportsSent,
		"busyRetries", st.BusyRetries,
		"deferred", st.Deferred,
		"scanErrors", st.ScanErrors,
		"overruns", app.Timer().Overruns(),
	)
	return runErr
}

func (r *Run) interact(ctx context.Context, cancel context.CancelFunc, g *virtual.Grid, in *os.File, out io.Writer, logger *slog.Logger) {
	t := virtual.NewTerminal(g, in, out, logger)
	err := t.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, virtual.ErrInterrupted):
		cancel()
	case errors.Is(err, virtual.ErrNotTerminal):
		logger.Info("stdin is not a terminal, virtual switches stay open")
	default:
		logger.Error("interactive board", "error", err)
	}
}
