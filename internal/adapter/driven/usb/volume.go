package usb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ericfisherdev/keyflash/internal/domain/model"
	"github.com/ericfisherdev/keyflash/internal/domain/port/driven"
)

// InfoFileName is the descriptor every UF2 bootloader drive exposes.
const InfoFileName = "INFO_UF2.TXT"

// Compile-time interface satisfaction check.
var _ driven.DeviceEnumerator = (*VolumeEnumerator)(nil)

// VolumeEnumerator finds UF2 bootloader drives among the directories directly
// under a mount root (e.g. /media/$USER or /Volumes).
type VolumeEnumerator struct {
	root   string
	logger *slog.Logger
}

// NewVolumeEnumerator creates a VolumeEnumerator scanning root.
func NewVolumeEnumerator(root string, logger *slog.Logger) *VolumeEnumerator {
	return &VolumeEnumerator{root: root, logger: logger}
}

// Root returns the scanned mount root.
func (e *VolumeEnumerator) Root() string {
	return e.root
}

// Enumerate lists the bootloader drives currently mounted. A missing mount
// root yields an empty list; unreadable drives are skipped and logged.
func (e *VolumeEnumerator) Enumerate(ctx context.Context) ([]model.Device, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Device{}, nil
		}
		return nil, fmt.Errorf("reading mount root %s: %w", e.root, err)
	}

	devices := []model.Device{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}

		mount := filepath.Join(e.root, entry.Name())
		info, err := readUF2Info(filepath.Join(mount, InfoFileName))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				e.logger.Warn("skipping unreadable volume", "mount", mount, "error", err)
			}
			continue
		}

		name := info.model
		if name == "" {
			name = entry.Name()
		}

		devices = append(devices, model.Device{
			ID:        fmt.Sprintf("uf2:%s_%d", entry.Name(), len(devices)),
			Name:      name,
			Side:      SideFromName(name),
			BoardID:   info.boardID,
			MountPath: mount,
		})
	}

	return devices, nil
}

type uf2Info struct {
	model   string
	boardID string
}

// readUF2Info parses the "Key: value" lines of an INFO_UF2.TXT file.
func readUF2Info(path string) (uf2Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return uf2Info{}, err
	}
	defer f.Close()

	var info uf2Info
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Model":
			info.model = value
		case "Board-ID":
			info.boardID = value
		}
	}
	if err := scanner.Err(); err != nil {
		return uf2Info{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return info, nil
}
