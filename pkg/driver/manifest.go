package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest mirrors kava.yml: one project with the files to build and
// the dependencies to install.
type Manifest struct {
	Path         string                     `yaml:"-"`
	Name         string                     `yaml:"name"`
	Version      string                     `yaml:"version"`
	Bare         bool                       `yaml:"bare"`
	Out          string                     `yaml:"out"`
	Targets      []string                   `yaml:"targets"`
	Dependencies map[string]*DependencySpec `yaml:"dependencies"`
}

// DependencySpec describes one dependency source: a git repository
// pinned by tag, branch or rev, or a local path.
type DependencySpec struct {
	Git    string `yaml:"git"`
	Tag    string `yaml:"tag"`
	Branch string `yaml:"branch"`
	Rev    string `yaml:"rev"`
	Path   string `yaml:"path"`
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// LoadManifest parses kava.yml from disk, returning a validated
// manifest. Unknown keys are rejected.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", abs, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var m Manifest
	if err := decoder.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: %s is empty", abs)
		}
		return nil, fmt.Errorf("manifest: parse %s: %w", abs, err)
	}
	m.Path = abs

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest, aggregating every issue rather than
// stopping at the first.
func (m *Manifest) Validate() error {
	var errs ValidationError
	if strings.TrimSpace(m.Name) == "" {
		errs.Issues = append(errs.Issues, "name must be provided")
	}
	if len(m.Targets) == 0 {
		errs.Issues = append(errs.Issues, "at least one target must be listed")
	}
	for i, target := range m.Targets {
		if strings.TrimSpace(target) == "" {
			errs.Issues = append(errs.Issues, fmt.Sprintf("targets[%d] must be a non-empty path", i))
		}
	}

	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !validDependencyName(name) {
			errs.Issues = append(errs.Issues, fmt.Sprintf("dependency name %q must be a plain directory name", name))
		}
		dep := m.Dependencies[name]
		if dep == nil {
			errs.Issues = append(errs.Issues, fmt.Sprintf("dependencies.%s: missing descriptor", name))
			continue
		}
		for _, issue := range dep.validate() {
			errs.Issues = append(errs.Issues, fmt.Sprintf("dependencies.%s: %s", name, issue))
		}
	}

	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

func (d *DependencySpec) validate() []string {
	var issues []string
	if d.Git != "" && d.Path != "" {
		issues = append(issues, "git and path are mutually exclusive")
	}
	if d.Git == "" && d.Path == "" {
		issues = append(issues, "must specify git or path")
	}
	pins := 0
	for _, pin := range []string{d.Tag, d.Branch, d.Rev} {
		if strings.TrimSpace(pin) != "" {
			pins++
		}
	}
	if d.Path != "" && pins > 0 {
		issues = append(issues, "path dependencies cannot pin tag, branch or rev")
	}
	if pins > 1 {
		issues = append(issues, "tag, branch and rev are mutually exclusive")
	}
	if d.Git != "" && pins == 0 {
		issues = append(issues, "git dependencies require tag, branch or rev")
	}
	return issues
}

// validDependencyName keeps installed modules inside the modules
// directory: no separators, no traversal.
func validDependencyName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
