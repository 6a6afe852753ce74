// Package files exposes a G-code root directory: listing, safe path
// resolution and slicer header metadata.
package files

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	lverrors "layerview/pkg/errors"
)

// headerBytes is how much of each end of a file is scanned for slicer
// comments. PrusaSlicer writes its settings block at the end.
const headerBytes = 64 * 1024

var gcodeExts = map[string]bool{".gcode": true, ".gco": true, ".g": true, ".gc": true}

// IsGCode reports whether name has a G-code file extension.
func IsGCode(name string) bool {
	return gcodeExts[strings.ToLower(filepath.Ext(name))]
}

// FileItem is a file in a listing. Path is relative to the root.
type FileItem struct {
	Path     string  `json:"path" yaml:"path"`
	Modified float64 `json:"modified" yaml:"modified"`
	Size     int64   `json:"size" yaml:"size"`
}

// DirItem is a directory in a listing.
type DirItem struct {
	Dirname  string  `json:"dirname" yaml:"dirname"`
	Modified float64 `json:"modified" yaml:"modified"`
}

// Metadata describes a G-code file.
type Metadata struct {
	Path          string  `json:"path" yaml:"path"`
	Filename      string  `json:"filename" yaml:"filename"`
	Modified      float64 `json:"modified" yaml:"modified"`
	Size          int64   `json:"size" yaml:"size"`
	Slicer        string  `json:"slicer,omitempty" yaml:"slicer,omitempty"`
	SlicerVersion string  `json:"slicer_version,omitempty" yaml:"slicer_version,omitempty"`

	LayerHeight      *float64 `json:"layer_height,omitempty" yaml:"layer_height,omitempty"`
	FirstLayerHeight *float64 `json:"first_layer_height,omitempty" yaml:"first_layer_height,omitempty"`
	// FilamentUsed is in millimeters.
	FilamentUsed *float64 `json:"filament_used,omitempty" yaml:"filament_used,omitempty"`

	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// Manager serves files below a single root directory.
type Manager struct {
	root string
}

// NewManager checks that root is a directory.
func NewManager(root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, lverrors.IOError(root, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, lverrors.IOError(root, err)
	}
	if !fi.IsDir() {
		return nil, lverrors.PathError(root, "not a directory")
	}
	return &Manager{root: abs}, nil
}

func (m *Manager) Root() string { return m.root }

// Resolve maps a root-relative path to an absolute one. Paths escaping the
// root are rejected.
func (m *Manager) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", lverrors.PathError(rel, "absolute paths are not allowed")
	}
	full := filepath.Join(m.root, filepath.FromSlash(rel))
	r, err := filepath.Rel(m.root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", lverrors.PathError(rel, "path escapes the G-code root")
	}
	return full, nil
}

// ResolveFile is Resolve for an existing regular file.
func (m *Manager) ResolveFile(rel string) (string, error) {
	full, err := m.Resolve(rel)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return "", lverrors.IOError(rel, err)
	}
	if !fi.Mode().IsRegular() {
		return "", lverrors.PathError(rel, "not a regular file")
	}
	return full, nil
}

// List returns the files and directories directly inside dir, sorted by name.
func (m *Manager) List(dir string) ([]FileItem, []DirItem, error) {
	full, err := m.Resolve(dir)
	if err != nil {
		return nil, nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, nil, lverrors.IOError(dir, err)
	}
	files := []FileItem{}
	dirs := []DirItem{}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, DirItem{Dirname: e.Name(), Modified: unixSeconds(info.ModTime())})
			continue
		}
		files = append(files, FileItem{
			Path:     filepath.ToSlash(filepath.Join(dir, e.Name())),
			Modified: unixSeconds(info.ModTime()),
			Size:     info.Size(),
		})
	}
	return files, dirs, nil
}

// GCodeFiles walks the whole root and returns every G-code file.
func (m *Manager) GCodeFiles() ([]FileItem, error) {
	out := []FileItem{}
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != m.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsGCode(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(m.root, path)
		out = append(out, FileItem{
			Path:     filepath.ToSlash(rel),
			Modified: unixSeconds(info.ModTime()),
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, lverrors.IOError(m.root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Metadata stats a G-code file and extracts what its slicer comments say.
func (m *Manager) Metadata(rel string) (*Metadata, error) {
	full, err := m.ResolveFile(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, lverrors.IOError(rel, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, lverrors.IOError(rel, err)
	}

	meta := &Metadata{
		Path:     filepath.ToSlash(rel),
		Filename: filepath.Base(full),
		Modified: unixSeconds(info.ModTime()),
		Size:     info.Size(),
	}
	head := io.NewSectionReader(f, 0, min(headerBytes, info.Size()))
	parseHeader(head, meta)
	if info.Size() > headerBytes {
		start := max(headerBytes, info.Size()-headerBytes)
		parseHeader(io.NewSectionReader(f, start, info.Size()-start), meta)
	}

	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, info.Size())); err != nil {
		return nil, lverrors.IOError(rel, err)
	}
	meta.SHA256 = hex.EncodeToString(h.Sum(nil))
	return meta, nil
}

// parseHeader reads slicer comments of the PrusaSlicer/SuperSlicer/OrcaSlicer
// ("; key = value") and Cura (";Key:value") styles.
func parseHeader(r io.Reader, meta *Metadata) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, ";") {
			continue
		}
		line = strings.TrimSpace(line[1:])

		if rest, ok := cutPrefixFold(line, "generated by "); ok {
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				meta.Slicer = fields[0]
			}
			if len(fields) > 1 {
				meta.SlicerVersion = fields[1]
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "Generated with "); ok {
			// Cura: ";Generated with Cura_SteamEngine 5.4.0"
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				meta.Slicer = strings.TrimSuffix(fields[0], "_SteamEngine")
			}
			if len(fields) > 1 {
				meta.SlicerVersion = fields[1]
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			key, value, ok = strings.Cut(line, ":")
		}
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "layer_height", "layer height":
			setFloat(&meta.LayerHeight, value, 1)
		case "first_layer_height", "initial_layer_height":
			setFloat(&meta.FirstLayerHeight, value, 1)
		case "filament used [mm]":
			setFloat(&meta.FilamentUsed, value, 1)
		case "filament used":
			// Cura reports meters: "1.23456m"
			if v, ok := strings.CutSuffix(value, "m"); ok {
				setFloat(&meta.FilamentUsed, v, 1000)
			}
		}
	}
}

func setFloat(dst **float64, s string, scale float64) {
	// Multi-extruder values are comma separated; the first one is kept.
	s, _, _ = strings.Cut(s, ",")
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return
	}
	v *= scale
	*dst = &v
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
