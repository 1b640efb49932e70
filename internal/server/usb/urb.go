package usb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Alia5/lt3/internal/log"
	"github.com/Alia5/lt3/usb"
	"github.com/Alia5/lt3/usbip"
	"github.com/Alia5/lt3/virtualbus"
)

// session is one imported device's URB stream. Submits on non-control
// endpoints complete asynchronously; replies are written one at a time.
type session struct {
	conn    net.Conn
	dev     usb.Device
	logger  *slog.Logger
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint32]context.CancelFunc
	wg      sync.WaitGroup
}

func (s *Server) handleUrbStream(devCtx context.Context, conn net.Conn, m virtualbus.DeviceMeta) error {
	_ = conn.SetDeadline(time.Time{})

	ctx, cancel := context.WithCancel(devCtx)
	sess := &session{
		conn:    conn,
		dev:     m.Dev,
		logger:  s.logger.With("busid", m.Meta.BusID()),
		pending: make(map[uint32]context.CancelFunc),
	}
	stop := context.AfterFunc(devCtx, func() {
		sess.logger.Info("device removed, closing URB stream")
		_ = conn.Close()
	})
	defer func() {
		stop()
		cancel()
		sess.wg.Wait()
		if r, ok := m.Dev.(usb.Resetter); ok {
			r.Reset()
		}
	}()

	for {
		urb, err := usbip.ReadURB(conn, maxTransfer)
		if err != nil {
			if devCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read URB: %w", err)
		}
		if urb.Unlink != nil {
			if err := sess.unlink(urb.Unlink); err != nil {
				return err
			}
			continue
		}
		sub := urb.Submit
		if sub.Basic.Ep == 0 {
			data, err := s.processControl(m.Dev, sub.Setup[:], urb.Payload)
			if err := sess.reply(sub, urb.Payload, data, err); err != nil {
				return err
			}
			continue
		}
		sess.submit(ctx, sub, urb.Payload)
	}
}

// submit starts an asynchronous transfer. Its reply is dropped if the
// request was unlinked in the meantime.
func (ss *session) submit(ctx context.Context, sub *usbip.CmdSubmit, payload []byte) {
	seq := sub.Basic.Seqnum
	ctx, cancel := context.WithCancel(ctx)
	ss.mu.Lock()
	ss.pending[seq] = cancel
	ss.mu.Unlock()

	ss.wg.Add(1)
	go func() {
		defer ss.wg.Done()
		defer cancel()
		data, err := ss.dev.HandleTransfer(ctx, sub.Basic.Ep, sub.Basic.Dir, payload)
		ss.mu.Lock()
		_, live := ss.pending[seq]
		delete(ss.pending, seq)
		ss.mu.Unlock()
		if !live {
			return
		}
		if err := ss.reply(sub, payload, data, err); err != nil {
			ss.logger.Debug("RET_SUBMIT not delivered", "seq", seq, "error", err)
		}
	}()
}

func (ss *session) unlink(cmd *usbip.CmdUnlink) error {
	ss.mu.Lock()
	cancel, found := ss.pending[cmd.UnlinkSeqnum]
	delete(ss.pending, cmd.UnlinkSeqnum)
	ss.mu.Unlock()

	status := int32(usbip.StatusOK)
	if found {
		cancel()
		status = usbip.StatusConnReset
	}
	ss.logger.Debug("USBIP_CMD_UNLINK", "seq", cmd.Basic.Seqnum, "unlink", cmd.UnlinkSeqnum, "found", found)
	ret := usbip.RetUnlink{
		Basic:  usbip.HeaderBasic{Command: usbip.RetUnlinkCode, Seqnum: cmd.Basic.Seqnum},
		Status: status,
	}
	var buf bytes.Buffer
	_ = ret.Write(&buf)
	return ss.write(buf.Bytes())
}

func (ss *session) reply(sub *usbip.CmdSubmit, out, data []byte, err error) error {
	ret := usbip.RetSubmit{
		Basic: usbip.HeaderBasic{
			Command: usbip.RetSubmitCode,
			Seqnum:  sub.Basic.Seqnum,
			Dir:     sub.Basic.Dir,
			Ep:      sub.Basic.Ep,
		},
		Status: transferStatus(err),
	}
	if err == nil {
		if sub.Basic.Dir == usbip.DirIn {
			if uint32(len(data)) > sub.TransferBufferLen {
				data = data[:sub.TransferBufferLen]
			}
			ret.ActualLength = uint32(len(data))
		} else {
			ret.ActualLength = uint32(len(out))
			data = nil
		}
	} else {
		data = nil
		ss.logger.Debug("transfer failed", "seq", sub.Basic.Seqnum, "ep", sub.Basic.Ep, "error", err)
	}
	var buf bytes.Buffer
	_ = ret.Write(&buf)
	buf.Write(data)
	return ss.write(buf.Bytes())
}

func (ss *session) write(p []byte) error {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	if _, err := ss.conn.Write(p); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

func transferStatus(err error) int32 {
	switch {
	case err == nil:
		return usbip.StatusOK
	case errors.Is(err, usb.ErrStall):
		return usbip.StatusPipe
	case errors.Is(err, context.Canceled):
		return usbip.StatusConnReset
	default:
		return usbip.StatusShutdown
	}
}

// processControl answers an EP0 request. The device's own handler goes
// first; standard enumeration requests fall back to the descriptor.
func (s *Server) processControl(dev usb.Device, rawSetup, out []byte) ([]byte, error) {
	setup, err := usb.ParseSetup(rawSetup)
	if err != nil {
		return nil, err
	}
	s.logger.Log(context.Background(), log.LevelTrace, "control request", "setup", setup.String())

	if h, ok := dev.(usb.ControlHandler); ok {
		if data, handled := h.HandleControl(setup, out); handled {
			return setup.Clip(data), nil
		}
	}
	if !setup.IsStandard() {
		return nil, usb.ErrStall
	}

	desc := dev.GetDescriptor()
	switch setup.Request {
	case usb.RequestSetAddress, usb.RequestSetConfiguration, usb.RequestSetInterface,
		usb.RequestClearFeature, usb.RequestSetFeature:
		return nil, nil
	case usb.RequestGetConfiguration:
		return []byte{usb.ConfigValue}, nil
	case usb.RequestGetInterface:
		return []byte{0}, nil
	case usb.RequestGetStatus:
		return setup.Clip([]byte{0, 0}), nil
	case usb.RequestGetDescriptor:
		var data []byte
		switch setup.Recipient() {
		case usb.RecipientDevice:
			switch setup.DescriptorType() {
			case usb.DeviceDescType:
				data = desc.Bytes()
			case usb.ConfigDescType:
				data = desc.ConfigBytes()
			case usb.StringDescType:
				data = desc.String(setup.DescriptorIndex())
			}
		case usb.RecipientInterface:
			if iface := int(setup.Index & 0xff); iface < len(desc.Interfaces) {
				switch setup.DescriptorType() {
				case usb.HIDDescType:
					data = desc.Interfaces[iface].HIDDescriptor
				case usb.ReportDescType:
					data = desc.Interfaces[iface].HIDReport
				}
			}
		}
		if len(data) == 0 {
			return nil, usb.ErrStall
		}
		return setup.Clip(data), nil
	}
	return nil, usb.ErrStall
}
