package index

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/utils"
)

// SnapshotVersion is the current snapshot format
const SnapshotVersion = 1

// Snapshot is the persisted form of the forward map. The reverse map is
// rebuilt on restore.
type Snapshot struct {
	Version int             `json:"version"`
	TakenAt time.Time       `json:"taken_at"`
	Entries []SnapshotEntry `json:"entries"`
}

// SnapshotEntry is one RFP with its matching services
type SnapshotEntry struct {
	RFP      types.RFPProfile  `json:"rfp"`
	Services map[string]string `json:"services"` // service key -> provider key
}

// Snapshot captures the current relation ordered by RFP URI
func (i *Index) Snapshot() Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()

	snap := Snapshot{
		Version: SnapshotVersion,
		TakenAt: i.now().UTC(),
		Entries: make([]SnapshotEntry, 0, len(i.forward)),
	}
	for _, e := range i.forward {
		services := make(map[string]string, len(e.services))
		for svc, provider := range e.services {
			services[svc] = provider
		}
		snap.Entries = append(snap.Entries, SnapshotEntry{RFP: e.profile.Clone(), Services: services})
	}
	sort.Slice(snap.Entries, func(a, b int) bool {
		return snap.Entries[a].RFP.URI < snap.Entries[b].RFP.URI
	})
	return snap
}

// Restore replaces the relation with snap. The snapshot is validated first;
// on error the index is left untouched.
func (i *Index) Restore(snap Snapshot) error {
	const op = "index.Restore"
	if snap.Version != SnapshotVersion {
		return fault.New(fault.MalformedInput, op, "unsupported snapshot version %d", snap.Version)
	}

	forward := make(map[string]*entry, len(snap.Entries))
	reverse := make(map[string]map[string]struct{})
	for n, se := range snap.Entries {
		if err := validateRFP(se.RFP); err != nil {
			return fault.Wrap(fault.MalformedInput, op, err, "entry %d", n)
		}
		if _, dup := forward[se.RFP.URI]; dup {
			return fault.New(fault.MalformedInput, op, "duplicate rfp %s", se.RFP.URI)
		}
		services := make(map[string]string, len(se.Services))
		for svc, provider := range se.Services {
			if err := utils.ValidateString(svc, "service_key", 1, utils.MaxKeyLength, true); err != nil {
				return fault.Wrap(fault.MalformedInput, op, err, "entry %s", se.RFP.URI)
			}
			services[svc] = provider
			addReverse(reverse, svc, se.RFP.URI)
		}
		forward[se.RFP.URI] = &entry{profile: se.RFP.Clone(), services: services}
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	i.mu.Lock()
	i.forward = forward
	i.reverse = reverse
	i.lastWrite = i.now()
	i.mu.Unlock()

	i.logger.Info("Index restored", zap.Int("rfps", len(forward)), zap.Int("services", len(reverse)))
	return nil
}

// SaveFile writes a snapshot to path. The encoding follows the extension:
// ".zst" for zstd, ".gz" for gzip, plain JSON otherwise. The file is
// replaced atomically.
func (i *Index) SaveFile(path string) error {
	const op = "index.SaveFile"

	data, err := sonic.Marshal(i.Snapshot())
	if err != nil {
		return fault.Wrap(fault.Internal, op, err, "encoding snapshot")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fault.Wrap(fault.Configuration, op, err, "creating snapshot directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fault.Wrap(fault.Configuration, op, err, "creating snapshot file")
	}
	defer os.Remove(tmp.Name())

	if err := writeEncoded(tmp, path, data); err != nil {
		tmp.Close()
		return fault.Wrap(fault.Internal, op, err, "writing snapshot")
	}
	if err := tmp.Close(); err != nil {
		return fault.Wrap(fault.Internal, op, err, "closing snapshot")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fault.Wrap(fault.Internal, op, err, "replacing snapshot")
	}

	i.logger.Debug("Index snapshot saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// LoadFile restores the index from a snapshot written by SaveFile. The
// compression is sniffed from the content, so a renamed file still loads.
// A missing file is reported as NoMatchFound.
func (i *Index) LoadFile(path string) error {
	const op = "index.LoadFile"

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fault.Wrap(fault.NoMatchFound, op, err, "no snapshot at %s", path)
		}
		return fault.Wrap(fault.Configuration, op, err, "opening snapshot")
	}

	data, err := decodeSnapshot(raw)
	if err != nil {
		return fault.Wrap(fault.MalformedInput, op, err, "reading snapshot")
	}

	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return fault.Wrap(fault.MalformedInput, op, err, "decoding snapshot")
	}
	return i.Restore(snap)
}

func writeEncoded(w io.Writer, path string, data []byte) error {
	switch {
	case strings.HasSuffix(path, ".zst"):
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	case strings.HasSuffix(path, ".gz"):
		gw := gzip.NewWriter(w)
		if _, err := gw.Write(data); err != nil {
			gw.Close()
			return err
		}
		return gw.Close()
	default:
		_, err := w.Write(data)
		return err
	}
}

func decodeSnapshot(raw []byte) ([]byte, error) {
	mt := mimetype.Detect(raw)
	switch {
	case mt.Is("application/zstd"):
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		return zr.DecodeAll(raw, nil)
	case mt.Is("application/gzip"):
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gr.Close()
		return io.ReadAll(gr)
	default:
		return raw, nil
	}
}
