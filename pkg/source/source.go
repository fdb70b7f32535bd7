package source

import (
	"os"
	"path/filepath"
	"strings"
)

// SourceFile is a unit of Kava source text with its display metadata.
type SourceFile struct {
	Name    string // display name (e.g. "app.kava", "<repl>", "<eval>")
	Path    string // full file path, empty for REPL/eval input
	Content string
	lines   []string // lazily split
}

// NewSourceFile creates a source file with explicit metadata.
func NewSourceFile(name, path, content string) *SourceFile {
	return &SourceFile{Name: name, Path: path, Content: content}
}

// NewEvalSource wraps inline input, as given to the -e flag.
func NewEvalSource(content string) *SourceFile {
	return &SourceFile{Name: "<eval>", Content: content}
}

// NewReplSource wraps a REPL snippet.
func NewReplSource(content string) *SourceFile {
	return &SourceFile{Name: "<repl>", Content: content}
}

// FromFile wraps already-read file content.
func FromFile(filePath, content string) *SourceFile {
	return NewSourceFile(filepath.Base(filePath), filePath, content)
}

// ReadFile loads a source file from disk.
func ReadFile(filePath string) (*SourceFile, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromFile(filePath, string(content)), nil
}

// Lines returns the source split into lines, cached after the first call.
func (sf *SourceFile) Lines() []string {
	if sf.lines == nil {
		sf.lines = strings.Split(sf.Content, "\n")
	}
	return sf.lines
}

// Line returns the 1-based line n, or "" when out of range.
func (sf *SourceFile) Line(n int) string {
	lines := sf.Lines()
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

// LineCount reports the number of lines in the source.
func (sf *SourceFile) LineCount() int {
	return len(sf.Lines())
}

// DisplayPath prefers the full path and falls back to the display name.
func (sf *SourceFile) DisplayPath() string {
	if sf.Path != "" {
		return sf.Path
	}
	return sf.Name
}

// IsFile reports whether this source came from an actual file.
func (sf *SourceFile) IsFile() bool {
	return sf.Path != ""
}
