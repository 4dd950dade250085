package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"clipharvest/internal/services"
)

// Fixed names inside a workspace root.
const (
	RawDirName        = "raw"
	TranscodedDirName = "transcoded"
	TrimmedDirName    = "trimmed"
	IndexFileName     = "index.csv"
	LedgerFileName    = "ledger.db"
	LogFileName       = "run.log"
	lockFileName      = ".lock"
)

// Workspace is the directory set owned by one manifest.
type Workspace struct {
	ID            string
	Root          string
	RawDir        string
	TranscodedDir string
	TrimmedDir    string
	IndexPath     string
	LedgerPath    string
	LogPath       string

	lock *flock.Flock
}

// New computes the workspace layout for manifestID under workDir without
// touching the filesystem.
func New(workDir, manifestID string) *Workspace {
	root := filepath.Join(workDir, manifestID)
	return &Workspace{
		ID:            manifestID,
		Root:          root,
		RawDir:        filepath.Join(root, RawDirName),
		TranscodedDir: filepath.Join(root, TranscodedDirName),
		TrimmedDir:    filepath.Join(root, TrimmedDirName),
		IndexPath:     filepath.Join(root, IndexFileName),
		LedgerPath:    filepath.Join(root, LedgerFileName),
		LogPath:       filepath.Join(root, LogFileName),
		lock:          flock.New(filepath.Join(root, lockFileName)),
	}
}

// Prepare creates (or, with reset, clears) the workspace for manifestID and
// acquires its lock. reset removes the stage directories and truncates the
// index; otherwise existing contents are preserved so the run can resume.
// The caller must Release the workspace when the unit finishes.
func Prepare(workDir, manifestID string, reset bool) (*Workspace, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "prepare", "work directory not configured", nil)
	}
	if err := validateID(manifestID); err != nil {
		return nil, err
	}

	ws := New(workDir, manifestID)
	if err := os.MkdirAll(ws.Root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "create root", ws.Root, err)
	}
	if err := ws.Lock(); err != nil {
		return nil, err
	}

	if err := ws.prepareDirs(reset); err != nil {
		_ = ws.Release()
		return nil, err
	}
	return ws, nil
}

func (w *Workspace) prepareDirs(reset bool) error {
	stageDirs := w.StageDirs()
	if reset {
		for _, dir := range stageDirs {
			if err := os.RemoveAll(dir); err != nil {
				return services.Wrap(services.ErrWorkspace, "workspace", "reset", dir, err)
			}
		}
		if err := os.WriteFile(w.IndexPath, nil, 0o644); err != nil {
			return services.Wrap(services.ErrWorkspace, "workspace", "truncate index", w.IndexPath, err)
		}
	}
	for _, dir := range stageDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrWorkspace, "workspace", "create stage directory", dir, err)
		}
	}
	return nil
}

// StageDirs returns the raw, transcoded, and trimmed directories in stage order.
func (w *Workspace) StageDirs() []string {
	return []string{w.RawDir, w.TranscodedDir, w.TrimmedDir}
}

// TrimmedPath returns the final clip path for identifier.
func (w *Workspace) TrimmedPath(identifier string) string {
	return filepath.Join(w.TrimmedDir, identifier+".wav")
}

// Lock acquires the workspace lock without blocking. It fails when another
// process (or another unit in this process) already holds it.
func (w *Workspace) Lock() error {
	ok, err := w.lock.TryLock()
	if err != nil {
		return services.Wrap(services.ErrWorkspace, "workspace", "lock", w.Root, err)
	}
	if !ok {
		return services.Wrap(services.ErrWorkspace, "workspace", "lock", fmt.Sprintf("%s is in use by another run", w.Root), nil)
	}
	return nil
}

// Locked reports whether some other holder currently owns the lock.
func (w *Workspace) Locked() bool {
	probe := flock.New(w.lock.Path())
	ok, err := probe.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = probe.Unlock()
		return false
	}
	return true
}

// Release drops the workspace lock.
func (w *Workspace) Release() error {
	if w == nil || w.lock == nil {
		return nil
	}
	return w.lock.Unlock()
}

// ManifestID derives a workspace identifier from a manifest path: the file
// stem with characters outside [A-Za-z0-9._-] replaced by underscores.
func ManifestID(path string) string {
	base := filepath.Base(strings.TrimSpace(path))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	id := strings.Trim(b.String(), ".")
	if id == "" {
		return "manifest"
	}
	return id
}

func validateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || trimmed != id || trimmed == "." || trimmed == ".." || strings.ContainsAny(id, `/\`) {
		return services.Wrap(services.ErrWorkspace, "workspace", "prepare", fmt.Sprintf("invalid manifest id %q", id), nil)
	}
	return nil
}
