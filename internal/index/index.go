package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const separator = ", "

// Entry is one index line.
type Entry struct {
	Path   string
	Labels []string
}

// Line renders the entry including the trailing newline.
func (e Entry) Line() string {
	return e.Path + separator + strings.Join(e.Labels, ",") + "\n"
}

// ParseLine is the inverse of Entry.Line (without the newline).
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Entry{}, false
	}
	idx := strings.LastIndex(line, separator)
	if idx < 0 {
		return Entry{Path: strings.TrimSpace(line)}, true
	}
	entry := Entry{Path: line[:idx]}
	if labels := strings.TrimSpace(line[idx+len(separator):]); labels != "" {
		entry.Labels = strings.Split(labels, ",")
	}
	return entry, true
}

// Writer appends entries to an index file.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	seen map[string]struct{}
}

// Open opens (creating if needed) the index at path for appending. A trailing
// partial line left by an interrupted write is cut off first.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	if err := repairTail(path); err != nil {
		return nil, err
	}
	entries, err := ReadEntries(path)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	w := &Writer{path: path, file: file, seen: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		w.seen[e.Path] = struct{}{}
	}
	return w, nil
}

// Path returns the index file location.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one entry and syncs it to disk.
func (w *Writer) Append(e Entry) error {
	if strings.ContainsAny(e.Path, "\r\n") {
		return fmt.Errorf("index entry path contains a line break: %q", e.Path)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return errors.New("index writer closed")
	}
	if _, err := io.WriteString(w.file, e.Line()); err != nil {
		return fmt.Errorf("write index entry: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync index: %w", err)
	}
	w.seen[e.Path] = struct{}{}
	return nil
}

// Contains reports whether an entry for path has been written.
func (w *Writer) Contains(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[path]
	return ok
}

// Len returns the number of distinct paths in the index.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// Close releases the file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// ReadEntries parses every line of the index at path. A missing file yields
// no entries.
func ReadEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if entry, ok := ParseLine(scanner.Text()); ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return entries, nil
}

func repairTail(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return nil
	}
	keep := bytes.LastIndexByte(data, '\n') + 1
	if err := os.Truncate(path, int64(keep)); err != nil {
		return fmt.Errorf("truncate partial index line: %w", err)
	}
	return nil
}
