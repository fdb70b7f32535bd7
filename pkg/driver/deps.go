package driver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"gopkg.in/yaml.v3"
)

// modulesDir is where installed dependencies land, under the project
// root.
const modulesDir = "kava_modules"

// lockName is the file recording resolved dependency revisions.
const lockName = "kava.lock"

// Lockfile records what InstallDependencies resolved, so a later
// install can skip work that is already done.
type Lockfile struct {
	Path     string                    `yaml:"-"`
	Packages map[string]*LockedPackage `yaml:"packages"`
}

// LockedPackage pins one installed dependency: the version descriptor
// as the manifest spelled it and what it resolved to.
type LockedPackage struct {
	Version  string `yaml:"version"`
	Resolved string `yaml:"resolved"`
}

// ReadLockfile parses kava.lock at path. A missing or empty file yields
// an empty lockfile rather than an error.
func ReadLockfile(path string) (*Lockfile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}
	lock := &Lockfile{Path: abs, Packages: map[string]*LockedPackage{}}

	file, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return lock, nil
		}
		return nil, fmt.Errorf("lockfile: open %s: %w", abs, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(lock); err != nil {
		if errors.Is(err, io.EOF) {
			return lock, nil
		}
		return nil, fmt.Errorf("lockfile: parse %s: %w", abs, err)
	}
	if lock.Packages == nil {
		lock.Packages = map[string]*LockedPackage{}
	}
	return lock, nil
}

// WriteLockfile serialises the lockfile to disk. An empty path falls
// back to the path the lockfile was read from.
func WriteLockfile(lock *Lockfile, path string) error {
	if lock == nil {
		return fmt.Errorf("lockfile: nil lockfile")
	}
	if path == "" {
		path = lock.Path
	}
	if path == "" {
		return fmt.Errorf("lockfile: missing path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(lock); err != nil {
		return fmt.Errorf("lockfile: marshal %s: %w", abs, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("lockfile: encoder close: %w", err)
	}
	if err := os.WriteFile(abs, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("lockfile: write %s: %w", abs, err)
	}
	lock.Path = abs
	return nil
}

// InstallDependencies materializes every manifest dependency under
// kava_modules/ in rootDir and records the result in kava.lock. A git
// dependency already present at its locked revision is skipped; path
// dependencies are re-copied. Lock entries for dependencies no longer
// in the manifest are dropped.
func InstallDependencies(m *Manifest, rootDir string) (*Lockfile, error) {
	if m == nil {
		return nil, fmt.Errorf("deps: nil manifest")
	}
	if rootDir == "" {
		rootDir = filepath.Dir(m.Path)
	}
	lock, err := ReadLockfile(filepath.Join(rootDir, lockName))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry, err := installDependency(name, m.Dependencies[name], rootDir, lock.Packages[name])
		if err != nil {
			return nil, err
		}
		lock.Packages[name] = entry
	}

	for name := range lock.Packages {
		if _, ok := m.Dependencies[name]; !ok {
			delete(lock.Packages, name)
		}
	}

	if err := WriteLockfile(lock, ""); err != nil {
		return nil, err
	}
	return lock, nil
}

func installDependency(name string, spec *DependencySpec, rootDir string, locked *LockedPackage) (*LockedPackage, error) {
	if spec == nil {
		return nil, fmt.Errorf("deps: %s has no descriptor", name)
	}
	dest := filepath.Join(rootDir, modulesDir, name)
	if spec.Path != "" {
		return installPathDependency(name, spec, rootDir, dest)
	}
	return installGitDependency(name, spec, dest, locked)
}

// installGitDependency clones the repository and checks out the pinned
// revision. A checkout already at the locked descriptor is left alone.
func installGitDependency(name string, spec *DependencySpec, dest string, locked *LockedPackage) (*LockedPackage, error) {
	revision, descriptor, err := revisionFromSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("deps: %s: %w", name, err)
	}

	if locked != nil && locked.Version == descriptor && locked.Resolved != "" {
		if _, err := os.Stat(dest); err == nil {
			return locked, nil
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("deps: %s: clear %s: %w", name, dest, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("deps: %s: create %s: %w", name, filepath.Dir(dest), err)
	}

	repo, err := git.PlainClone(dest, false, &git.CloneOptions{URL: spec.Git})
	if err != nil {
		return nil, fmt.Errorf("deps: %s: clone %s: %w", name, spec.Git, err)
	}
	hash, err := repo.ResolveRevision(revision)
	if err != nil {
		return nil, fmt.Errorf("deps: %s: resolve %s: %w", name, revision, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("deps: %s: worktree: %w", name, err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return nil, fmt.Errorf("deps: %s: checkout %s: %w", name, revision, err)
	}

	return &LockedPackage{Version: descriptor, Resolved: hash.String()}, nil
}

// installPathDependency copies the dependency's .kava sources into the
// modules directory. Relative paths resolve against the project root.
func installPathDependency(name string, spec *DependencySpec, rootDir, dest string) (*LockedPackage, error) {
	src := spec.Path
	if !filepath.IsAbs(src) {
		src = filepath.Join(rootDir, src)
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("deps: %s: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("deps: %s: %s is not a directory", name, src)
	}

	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("deps: %s: clear %s: %w", name, dest, err)
	}
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, ".kava") {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		return nil, fmt.Errorf("deps: %s: copy %s: %w", name, src, err)
	}

	return &LockedPackage{Version: "local", Resolved: src}, nil
}

func revisionFromSpec(spec *DependencySpec) (plumbing.Revision, string, error) {
	if rev := strings.TrimSpace(spec.Rev); rev != "" {
		return plumbing.Revision(rev), rev, nil
	}
	if tag := strings.TrimSpace(spec.Tag); tag != "" {
		return plumbing.Revision("refs/tags/" + tag), tag, nil
	}
	if branch := strings.TrimSpace(spec.Branch); branch != "" {
		return plumbing.Revision("refs/heads/" + branch), branch, nil
	}
	return "", "", fmt.Errorf("git dependencies require tag, branch or rev")
}
