// Package testing holds a minimal USB-IP client for end-to-end tests.
package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Alia5/lt3/usb"
	"github.com/Alia5/lt3/usbip"
)

type TestUsbIpClient struct {
	address string
	seq     uint32
}

type ImportResult struct {
	Conn     net.Conn
	Exported usbip.ExportedDevice
}

// StatusError is a RET_SUBMIT with a non-zero status.
type StatusError struct {
	Seqnum uint32
	Status int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("urb seq=%d: ret status %d", e.Seqnum, e.Status)
}

func NewUsbIpClient(t *testing.T, addr string) *TestUsbIpClient {
	t.Helper()

	return &TestUsbIpClient{
		address: addr,
		seq:     1,
	}
}

func (c *TestUsbIpClient) nextSeq() uint32 {
	return atomic.AddUint32(&c.seq, 1) - 1
}

func (c *TestUsbIpClient) ListDevices() ([]usbip.ExportedDevice, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqDevlist}).Write(conn); err != nil {
		return nil, err
	}

	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		return nil, err
	}
	if hdr.Command != usbip.OpRepDevlist {
		return nil, fmt.Errorf("unexpected reply command %x", hdr.Command)
	}
	var n [4]byte
	if _, err := io.ReadFull(conn, n[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(n[:])
	devices := make([]usbip.ExportedDevice, 0, count)
	for range count {
		dev, err := usbip.ReadExportedDevice(conn, true)
		if err != nil {
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// AttachDevice imports busID and returns the connection, now in URB mode.
func (c *TestUsbIpClient) AttachDevice(busID string) (*ImportResult, error) {
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return nil, err
	}

	if err := (&usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpReqImport}).Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	var bus [usbip.BusIDLen]byte
	copy(bus[:], busID)
	if _, err := conn.Write(bus[:]); err != nil {
		conn.Close()
		return nil, err
	}

	hdr, err := usbip.ReadMgmtHeader(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if hdr.Command != usbip.OpRepImport {
		conn.Close()
		return nil, fmt.Errorf("unexpected reply command %x", hdr.Command)
	}
	if hdr.Status != 0 {
		conn.Close()
		return nil, fmt.Errorf("import %s rejected: status %d", busID, hdr.Status)
	}

	dev, err := usbip.ReadExportedDevice(conn, false)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &ImportResult{Conn: conn, Exported: dev}, nil
}

// Send writes a CMD_SUBMIT without waiting for the reply and returns its
// sequence number. For IN transfers length is the buffer size, for OUT
// transfers it is taken from out.
func (c *TestUsbIpClient) Send(conn net.Conn, dir, ep uint32, length uint32, out []byte, setup [8]byte) (uint32, error) {
	seq := c.nextSeq()
	if dir == usbip.DirOut {
		length = uint32(len(out))
	}
	cmd := usbip.CmdSubmit{
		Basic:             usbip.HeaderBasic{Command: usbip.CmdSubmitCode, Seqnum: seq, Dir: dir, Ep: ep},
		TransferBufferLen: length,
		Setup:             setup,
	}
	var buf bytes.Buffer
	if err := cmd.Write(&buf); err != nil {
		return 0, err
	}
	if dir == usbip.DirOut {
		buf.Write(out)
	}
	_, err := conn.Write(buf.Bytes())
	return seq, err
}

// Unlink writes a CMD_UNLINK for target and returns its sequence number.
func (c *TestUsbIpClient) Unlink(conn net.Conn, target uint32) (uint32, error) {
	seq := c.nextSeq()
	cmd := usbip.CmdUnlink{
		Basic:        usbip.HeaderBasic{Command: usbip.CmdUnlinkCode, Seqnum: seq},
		UnlinkSeqnum: target,
	}
	return seq, cmd.Write(conn)
}

// Receive reads the next reply within timeout.
func (c *TestUsbIpClient) Receive(conn net.Conn, timeout time.Duration) (*usbip.RetSubmit, *usbip.RetUnlink, []byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})
	return usbip.ReadRet(conn)
}

// Submit sends one URB and waits for its RET_SUBMIT.
func (c *TestUsbIpClient) Submit(conn net.Conn, dir, ep uint32, length uint32, out []byte, setup [8]byte, timeout time.Duration) ([]byte, error) {
	seq, err := c.Send(conn, dir, ep, length, out, setup)
	if err != nil {
		return nil, err
	}
	ret, _, data, err := c.Receive(conn, timeout)
	if err != nil {
		return nil, err
	}
	if ret == nil || ret.Basic.Seqnum != seq {
		return nil, fmt.Errorf("unexpected reply for seq=%d", seq)
	}
	if ret.Status != usbip.StatusOK {
		return nil, &StatusError{Seqnum: seq, Status: ret.Status}
	}
	return data, nil
}

// Control runs a control transfer on endpoint 0.
func (c *TestUsbIpClient) Control(conn net.Conn, setup usb.Setup, out []byte) ([]byte, error) {
	dir := uint32(usbip.DirOut)
	if setup.IsIn() {
		dir = usbip.DirIn
	}
	return c.Submit(conn, dir, 0, uint32(setup.Length), out, setup.Bytes(), time.Second)
}

// ReadInputReport submits one interrupt IN poll on ep and waits for the
// device to complete it.
func (c *TestUsbIpClient) ReadInputReport(conn net.Conn, ep uint32, timeout time.Duration) ([]byte, error) {
	return c.Submit(conn, usbip.DirIn, ep, 64, nil, [8]byte{}, timeout)
}

// PollInputReport keeps polling until a report equal to want arrives or
// timeout passes; it returns the last report seen.
func (c *TestUsbIpClient) PollInputReport(conn net.Conn, ep uint32, want []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	var last []byte
	for {
		got, err := c.ReadInputReport(conn, ep, time.Until(deadline))
		if err != nil {
			return last, err
		}
		last = got
		if bytes.Equal(got, want) {
			return got, nil
		}
		if time.Now().After(deadline) {
			return last, nil
		}
	}
}
