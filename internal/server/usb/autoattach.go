package usb

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/Alia5/lt3/usbip"
)

// AttachLocalhostClient runs `usbip attach` against this server so the
// exported device shows up on the local machine.
func AttachLocalhostClient(ctx context.Context, meta *usbip.ExportMeta, port uint16, logger *slog.Logger) error {
	logger.Info("Auto-attaching localhost client", "busid", meta.BusID())

	cmd := exec.CommandContext(
		ctx,
		"usbip",
		"--tcp-port", strconv.FormatUint(uint64(port), 10),
		"attach",
		"-r", "localhost",
		"-b", meta.BusID(),
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("Failed to attach device", "error", err, "port", port, "output", string(output))
		return fmt.Errorf("usbip attach %s: %w", meta.BusID(), err)
	}
	logger.Debug("usbip attach output", "output", string(output))
	return nil
}

// CheckAutoAttachPrerequisites logs what is missing for AttachLocalhostClient
// to work and reports whether everything was found.
func CheckAutoAttachPrerequisites(logger *slog.Logger) bool {
	allOk := true
	if _, err := exec.LookPath("usbip"); err != nil {
		logger.Warn("USB/IP tool 'usbip' not found in PATH")
		logger.Info("Install usbip:")
		logger.Info("  Ubuntu/Debian: sudo apt install linux-tools-generic")
		logger.Info("  Arch Linux:    sudo pacman -S usbip")
		allOk = false
	}
	data, err := os.ReadFile("/proc/modules")
	if err != nil {
		logger.Debug("Could not read /proc/modules", "error", err)
	} else if !bytes.Contains(data, []byte("vhci_hcd")) {
		logger.Warn("USB/IP kernel module 'vhci-hcd' is not loaded")
		logger.Info("  sudo modprobe vhci-hcd")
		allOk = false
	}
	return allOk
}
