// Package checkpoint implements the Checkpoint Manager (C7): creation,
// listing, format detection, best-pointer selection and pruning of
// parameter-blob checkpoints, per spec §4.7 and the filesystem layout
// of §6. Checkpoint files are written atomically (temp file + rename),
// matching hiveGo's pattern of writing profiler/output artifacts next
// to its binaries, generalized here to a crash-safe write.
package checkpoint

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/chessrl/core/internal/corestate"
	"github.com/chessrl/core/internal/generics"
)

// Format is the on-disk checkpoint format tag (§6).
type Format string

const (
	FormatNative           Format = "native"
	FormatNativeCompressed Format = "native_compressed"
	FormatArchive          Format = "archive"
	FormatUnknown          Format = "unknown"
)

func (f Format) extension() string {
	switch f {
	case FormatNative:
		return "bin"
	case FormatNativeCompressed:
		return "bin.gz"
	case FormatArchive:
		return "zip"
	default:
		return "bin"
	}
}

// ValidationStatus mirrors spec §3's Checkpoint.validation_status.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
	ValidationUnknown ValidationStatus = "unknown"
)

// Entry is one checkpoint's manifest row.
type Entry struct {
	ID               string           `yaml:"id"`
	Cycle            int              `yaml:"cycle"`
	PerformanceScore float64          `yaml:"performance_score"`
	IsBest           bool             `yaml:"is_best"`
	FormatTag        Format           `yaml:"format_tag"`
	CreatedAt        time.Time        `yaml:"created_at"`
	ValidationStatus ValidationStatus `yaml:"validation_status"`
}

type manifest struct {
	Entries []Entry `yaml:"entries"`
}

// Manager owns the checkpoint directory and its manifest, the single
// source of truth for "best" (spec §6: "the manifest is the source of
// truth for best, not filenames").
type Manager struct {
	dir               string
	maxModelVersions  int
	defaultFormat     Format
}

// probeFn validates a restored parameter blob by attempting a sanity
// forward pass; callers supply the Approximator-backed implementation so
// this package stays independent of internal/approx.
type probeFn func(blob []byte) bool

// New returns a Manager rooted at dir, creating it if necessary.
func New(dir string, maxModelVersions int, defaultFormat Format) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, corestate.Wrap(corestate.CodeCheckpointIO, "checkpoint.New", err)
	}
	return &Manager{dir: dir, maxModelVersions: maxModelVersions, defaultFormat: defaultFormat}, nil
}

func (m *Manager) manifestPath() string { return filepath.Join(m.dir, "manifest") }

func (m *Manager) readManifest() (manifest, error) {
	data, err := os.ReadFile(m.manifestPath())
	if os.IsNotExist(err) {
		return manifest{}, nil
	}
	if err != nil {
		return manifest{}, corestate.Wrap(corestate.CodeCheckpointIO, "checkpoint.readManifest", err)
	}
	var man manifest
	if err := yaml.Unmarshal(data, &man); err != nil {
		return manifest{}, corestate.Wrap(corestate.CodeCheckpointIO, "checkpoint.readManifest", err)
	}
	return man, nil
}

func (m *Manager) writeManifest(man manifest) error {
	data, err := yaml.Marshal(man)
	if err != nil {
		return corestate.Wrap(corestate.CodeCheckpointIO, "checkpoint.writeManifest", err)
	}
	return atomicWrite(m.manifestPath(), data)
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by rename, so a crash mid-write never corrupts the previous
// contents (spec §5: "Checkpoint files are written atomically").
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return corestate.Wrap(corestate.CodeCheckpointIO, "checkpoint.atomicWrite", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return corestate.Wrap(corestate.CodeCheckpointIO, "checkpoint.atomicWrite", err)
	}
	return nil
}

// Save persists blob under a fresh id for the given cycle/performance and
// appends it to the manifest. It does not itself decide "best" — the
// caller (Orchestrator) calls PromoteIfBest once evaluation confirms the
// new checkpoint strictly exceeds the current best (spec §4.8 step 5).
func (m *Manager) Save(cycle int, performance float64, blob []byte, format Format, probe probeFn) (Entry, error) {
	if format == "" {
		format = m.defaultFormat
	}
	id := fmt.Sprintf("cycle_%d_%s", cycle, uuid.NewString()[:8])
	path := filepath.Join(m.dir, fmt.Sprintf("%s.%s", id, format.extension()))

	payload, err := encode(blob, format)
	if err != nil {
		return Entry{}, corestate.Wrap(corestate.CodeCheckpointIO, "checkpoint.Save", err)
	}
	if err := atomicWrite(path, payload); err != nil {
		return Entry{}, err
	}

	status := ValidationUnknown
	if probe != nil {
		if probe(blob) {
			status = ValidationValid
		} else {
			status = ValidationInvalid
		}
	}

	entry := Entry{
		ID:               id,
		Cycle:            cycle,
		PerformanceScore: performance,
		FormatTag:        format,
		CreatedAt:        time.Now(),
		ValidationStatus: status,
	}

	man, err := m.readManifest()
	if err != nil {
		return Entry{}, err
	}
	man.Entries = append(man.Entries, entry)
	if err := m.writeManifest(man); err != nil {
		klog.Errorf("checkpoint.Save: manifest write failed for %s: %v", id, err)
		return entry, err
	}
	return entry, nil
}

// Load reads id's blob back, decoding per its recorded format tag.
func (m *Manager) Load(id string) ([]byte, Entry, error) {
	man, err := m.readManifest()
	if err != nil {
		return nil, Entry{}, err
	}
	for _, e := range man.Entries {
		if e.ID == id {
			path := filepath.Join(m.dir, fmt.Sprintf("%s.%s", id, e.FormatTag.extension()))
			payload, err := os.ReadFile(path)
			if err != nil {
				return nil, e, corestate.Wrap(corestate.CodeCheckpointIO, "checkpoint.Load", err)
			}
			detected := DetectFormat(path)
			if detected != FormatUnknown && detected != e.FormatTag {
				return nil, e, corestate.New(corestate.CodeCheckpointFormatMismatch, "checkpoint.Load",
					fmt.Sprintf("manifest says %s but file signature says %s", e.FormatTag, detected))
			}
			blob, err := decode(payload, e.FormatTag)
			if err != nil {
				return nil, e, corestate.Wrap(corestate.CodeCheckpointValidationFailed, "checkpoint.Load", err)
			}
			return blob, e, nil
		}
	}
	return nil, Entry{}, corestate.New(corestate.CodeCheckpointIO, "checkpoint.Load", "checkpoint id not found: "+id)
}

// List returns every checkpoint in creation order.
func (m *Manager) List() ([]Entry, error) {
	man, err := m.readManifest()
	if err != nil {
		return nil, err
	}
	return man.Entries, nil
}

// DetectFormat classifies path by its leading magic bytes only (§6):
// gzip header 0x1f 0x8b for native_compressed, "PK" for archive, else
// native. A file that cannot be opened or holds fewer than 2 bytes is
// FormatUnknown; the filename suffix is not consulted.
func DetectFormat(path string) Format {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown
	}
	defer f.Close()
	var magic [4]byte
	n, _ := io.ReadFull(f, magic[:])
	if n < 2 {
		return FormatUnknown
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		return FormatNativeCompressed
	}
	if magic[0] == 'P' && magic[1] == 'K' {
		return FormatArchive
	}
	return FormatNative
}

func encode(blob []byte, format Format) ([]byte, error) {
	switch format {
	case FormatNativeCompressed:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(blob); err != nil {
			return nil, err
		}
		if err := gw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		// native and archive formats are passed through: archive blobs
		// (zip, as produced by internal/approx.Network.Snapshot) are
		// already in their final on-disk shape.
		return blob, nil
	}
}

func decode(payload []byte, format Format) ([]byte, error) {
	switch format {
	case FormatNativeCompressed:
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	default:
		return payload, nil
	}
}

// SelectBest returns the id of the valid checkpoint maximizing
// performance_score, ties broken by latest created_at (spec §4.7, §8
// property 8). Invalid checkpoints are never eligible.
func (m *Manager) SelectBest() (string, error) {
	man, err := m.readManifest()
	if err != nil {
		return "", err
	}
	var best *Entry
	for i := range man.Entries {
		e := &man.Entries[i]
		if e.ValidationStatus == ValidationInvalid {
			continue
		}
		if best == nil ||
			e.PerformanceScore > best.PerformanceScore ||
			(e.PerformanceScore == best.PerformanceScore && e.CreatedAt.After(best.CreatedAt)) {
			best = e
		}
	}
	if best == nil {
		return "", corestate.New(corestate.CodeCheckpointIO, "checkpoint.SelectBest", "no valid checkpoints")
	}
	return best.ID, nil
}

// PromoteIfBest marks id as is_best (clearing the flag from any previous
// best) if its performance strictly exceeds the current best.
func (m *Manager) PromoteIfBest(id string) (bool, error) {
	man, err := m.readManifest()
	if err != nil {
		return false, err
	}
	var target, currentBest *Entry
	for i := range man.Entries {
		e := &man.Entries[i]
		if e.ID == id {
			target = e
		}
		if e.IsBest {
			currentBest = e
		}
	}
	if target == nil {
		return false, corestate.New(corestate.CodeCheckpointIO, "checkpoint.PromoteIfBest", "unknown id: "+id)
	}
	if target.ValidationStatus == ValidationInvalid {
		return false, nil
	}
	if currentBest != nil && currentBest.PerformanceScore >= target.PerformanceScore {
		return false, nil
	}
	if currentBest != nil {
		currentBest.IsBest = false
	}
	target.IsBest = true
	return true, m.writeManifest(man)
}

// Prune enforces max_model_versions by removing the oldest non-best valid
// checkpoints (spec §4.7).
func (m *Manager) Prune() error {
	man, err := m.readManifest()
	if err != nil {
		return err
	}
	if len(man.Entries) <= m.maxModelVersions {
		return nil
	}
	removable := make([]int, 0, len(man.Entries))
	for i, e := range man.Entries {
		if !e.IsBest {
			removable = append(removable, i)
		}
	}
	sort.Slice(removable, func(a, b int) bool {
		return man.Entries[removable[a]].CreatedAt.Before(man.Entries[removable[b]].CreatedAt)
	})
	toRemove := len(man.Entries) - m.maxModelVersions
	if toRemove > len(removable) {
		toRemove = len(removable)
	}
	removeSet := generics.MakeSet[string](toRemove)
	for _, idx := range removable[:toRemove] {
		e := man.Entries[idx]
		removeSet.Insert(e.ID)
		path := filepath.Join(m.dir, fmt.Sprintf("%s.%s", e.ID, e.FormatTag.extension()))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			klog.Warningf("checkpoint.Prune: failed to remove %s: %v", path, err)
		}
	}
	kept := make([]Entry, 0, len(man.Entries)-toRemove)
	for _, e := range man.Entries {
		if !removeSet.Has(e.ID) {
			kept = append(kept, e)
		}
	}
	man.Entries = kept
	return m.writeManifest(man)
}

// DumpDiagnostics writes an arbitrary diagnostic payload (e.g. the last
// CycleRecord and Validator summary) as YAML next to the checkpoint
// directory's contents, for the Internal-error dump described in §7.
func DumpDiagnostics(dir string, name string, payload any) error {
	data, err := yaml.Marshal(payload)
	if err != nil {
		return corestate.Wrap(corestate.CodeInternal, "checkpoint.DumpDiagnostics", err)
	}
	path := filepath.Join(dir, name+".yaml")
	return atomicWrite(path, data)
}
