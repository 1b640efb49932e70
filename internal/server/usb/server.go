// Package usb serves exported devices over USB-IP.
package usb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Alia5/lt3/internal/log"
	"github.com/Alia5/lt3/usb"
	"github.com/Alia5/lt3/usbip"
	"github.com/Alia5/lt3/virtualbus"
)

// maxTransfer bounds OUT payloads accepted from the client.
const maxTransfer = 4096

type Server struct {
	config    ServerConfig
	logger    *slog.Logger
	rawLogger log.RawLogger
	busses    map[uint32]*virtualbus.VirtualBus
	busesMu   sync.Mutex
	ready     chan struct{}
	readyOnce sync.Once
	lnMu      sync.Mutex
	ln        net.Listener
	conns     sync.WaitGroup
}

func New(config ServerConfig, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = 30 * time.Second
	}
	return &Server{
		config:    config,
		logger:    logger,
		rawLogger: rawLogger,
		busses:    make(map[uint32]*virtualbus.VirtualBus),
		ready:     make(chan struct{}),
	}
}

// AddBus registers a bus with the server.
func (s *Server) AddBus(bus *virtualbus.VirtualBus) error {
	if bus == nil {
		return fmt.Errorf("bus is nil")
	}
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	if _, ok := s.busses[bus.BusID()]; ok {
		return fmt.Errorf("bus %d already registered", bus.BusID())
	}
	s.busses[bus.BusID()] = bus
	return nil
}

// RemoveBus unregisters a bus and closes it, ending its URB streams.
func (s *Server) RemoveBus(busID uint32) error {
	s.busesMu.Lock()
	bus, ok := s.busses[busID]
	delete(s.busses, busID)
	s.busesMu.Unlock()
	if !ok {
		return fmt.Errorf("bus %d not found", busID)
	}
	return bus.Close()
}

// GetBus returns a bus by ID or nil if not present.
func (s *Server) GetBus(busID uint32) *virtualbus.VirtualBus {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	return s.busses[busID]
}

// ListenAndServe accepts USB-IP clients until Close is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("USBIP server listening", "addr", ln.Addr().String())
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("USBIP server stopped")
				s.conns.Wait()
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Client connected", "remote", c.RemoteAddr())
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			if err := s.handleConn(c); err != nil {
				if isClientDisconnect(err) {
					s.logger.Info("Client disconnected", "error", err)
				} else {
					s.logger.Error("Connection handler error", "error", err)
				}
			}
		}()
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listen address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting clients.
func (s *Server) Close() error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// ListenPort returns the TCP port of the bound listener, falling back to
// the configured address.
func (s *Server) ListenPort() uint16 {
	if a, ok := s.Addr().(*net.TCPAddr); ok {
		return uint16(a.Port)
	}
	_, portStr, err := net.SplitHostPort(s.config.Addr)
	if err != nil {
		return 0
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(port)
}

func (s *Server) handleConn(conn net.Conn) error {
	defer conn.Close()
	conn = &logConn{Conn: conn, s: s}
	if err := conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
		s.logger.Warn("Failed to set deadline", "error", err)
	}

	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	switch hdr.Command {
	case usbip.OpReqDevlist:
		s.logger.Debug("OP_REQ_DEVLIST")
		return s.handleDevList(conn)
	case usbip.OpReqImport:
		s.logger.Debug("OP_REQ_IMPORT")
		m, devCtx, err := s.handleImport(conn)
		if err != nil {
			return fmt.Errorf("handle import: %w", err)
		}
		return s.handleUrbStream(devCtx, conn, m)
	}
	return fmt.Errorf("protocol violation: unexpected op %#04x before import", hdr.Command)
}

func exportedDevice(m virtualbus.DeviceMeta) usbip.ExportedDevice {
	desc := m.Dev.GetDescriptor()
	exp := usbip.ExportedDevice{
		ExportMeta:          m.Meta,
		Speed:               desc.Device.Speed,
		IDVendor:            desc.Device.IDVendor,
		IDProduct:           desc.Device.IDProduct,
		BcdDevice:           desc.Device.BcdDevice,
		BDeviceClass:        desc.Device.BDeviceClass,
		BDeviceSubClass:     desc.Device.BDeviceSubClass,
		BDeviceProtocol:     desc.Device.BDeviceProtocol,
		BConfigurationValue: usb.ConfigValue,
		BNumConfigurations:  desc.Device.BNumConfigurations,
		BNumInterfaces:      uint8(len(desc.Interfaces)),
	}
	for _, iface := range desc.Interfaces {
		exp.Interfaces = append(exp.Interfaces, usbip.InterfaceDesc{
			Class:    iface.Descriptor.BInterfaceClass,
			SubClass: iface.Descriptor.BInterfaceSubClass,
			Protocol: iface.Descriptor.BInterfaceProtocol,
		})
	}
	return exp
}

func (s *Server) handleDevList(conn net.Conn) error {
	var buf bytes.Buffer
	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepDevlist}
	_ = rep.Write(&buf)
	metas := s.getAllDeviceMetas()
	dlh := usbip.DevListReplyHeader{NDevices: uint32(len(metas))}
	_ = dlh.Write(&buf)
	for _, m := range metas {
		exp := exportedDevice(m)
		_ = exp.WriteDevlist(&buf)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write devlist: %w", err)
	}
	return nil
}

func (s *Server) handleImport(conn net.Conn) (virtualbus.DeviceMeta, context.Context, error) {
	var rest [usbip.BusIDLen]byte
	if _, err := io.ReadFull(conn, rest[:]); err != nil {
		return virtualbus.DeviceMeta{}, nil, fmt.Errorf("read import busid: %w", err)
	}
	reqBus := string(rest[:])
	if i := bytes.IndexByte(rest[:], 0); i >= 0 {
		reqBus = string(rest[:i])
	}
	s.logger.Info("Import request", "busid", reqBus)

	m, devCtx, ok := s.lookup(reqBus)
	if !ok {
		rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport, Status: 1}
		_ = rep.Write(conn)
		return m, nil, fmt.Errorf("no device matches busid %s", reqBus)
	}
	var buf bytes.Buffer
	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport}
	_ = rep.Write(&buf)
	exp := exportedDevice(m)
	_ = exp.WriteImport(&buf)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return m, nil, fmt.Errorf("write import reply failed: %w", err)
	}
	return m, devCtx, nil
}

func (s *Server) lookup(busID string) (virtualbus.DeviceMeta, context.Context, bool) {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	for _, b := range s.busses {
		if m, ctx, ok := b.Lookup(busID); ok {
			return m, ctx, true
		}
	}
	return virtualbus.DeviceMeta{}, nil, false
}

// getAllDeviceMetas aggregates device metas from all registered busses.
func (s *Server) getAllDeviceMetas() []virtualbus.DeviceMeta {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	out := []virtualbus.DeviceMeta{}
	for _, b := range s.busses {
		out = append(out, b.GetAllDeviceMetas()...)
	}
	return out
}

type logConn struct {
	net.Conn
	s *Server
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(false, p[:n])
	}
	return n, err
}

// isClientDisconnect tests whether an error represents a normal client
// disconnect (EOF, ECONNRESET, broken pipe, closed connection).
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset by peer") || strings.Contains(e, "forcibly closed")
}
