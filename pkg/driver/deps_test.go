package driver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// fixtureRepo initializes a git repository holding one .kava file and
// returns its path and the commit hash.
func fixtureRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lib.kava"), []byte("answer: 42\n"), 0o644); err != nil {
		t.Fatalf("write fixture file: %v", err)
	}

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := worktree.Add("lib.kava"); err != nil {
		t.Fatalf("stage fixture file: %v", err)
	}
	hash, err := worktree.Commit("init", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Kava",
			Email: "kava@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return dir, hash.String()
}

func depsManifest(t *testing.T, root string, deps map[string]*DependencySpec) *Manifest {
	t.Helper()
	return &Manifest{
		Path:         filepath.Join(root, "kava.yml"),
		Name:         "app",
		Targets:      []string{"main.kava"},
		Dependencies: deps,
	}
}

func TestInstallGitDependency(t *testing.T) {
	repoDir, hash := fixtureRepo(t)
	root := t.TempDir()
	m := depsManifest(t, root, map[string]*DependencySpec{
		"lib": {Git: repoDir, Branch: "master"},
	})

	lock, err := InstallDependencies(m, root)
	if err != nil {
		t.Fatalf("InstallDependencies: %v", err)
	}

	installed := filepath.Join(root, "kava_modules", "lib", "lib.kava")
	if _, err := os.Stat(installed); err != nil {
		t.Fatalf("expected the dependency file at %s: %v", installed, err)
	}
	entry := lock.Packages["lib"]
	if entry == nil {
		t.Fatalf("expected a lock entry for lib")
	}
	if entry.Version != "master" || entry.Resolved != hash {
		t.Errorf("unexpected lock entry: %+v", entry)
	}
	if _, err := os.Stat(filepath.Join(root, "kava.lock")); err != nil {
		t.Errorf("expected kava.lock to be written: %v", err)
	}
}

func TestInstallGitDependencyByRev(t *testing.T) {
	repoDir, hash := fixtureRepo(t)
	root := t.TempDir()
	m := depsManifest(t, root, map[string]*DependencySpec{
		"lib": {Git: repoDir, Rev: hash},
	})

	lock, err := InstallDependencies(m, root)
	if err != nil {
		t.Fatalf("InstallDependencies: %v", err)
	}
	if entry := lock.Packages["lib"]; entry == nil || entry.Resolved != hash {
		t.Errorf("expected the rev to resolve to itself, got %+v", lock.Packages["lib"])
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	repoDir, _ := fixtureRepo(t)
	root := t.TempDir()
	m := depsManifest(t, root, map[string]*DependencySpec{
		"lib": {Git: repoDir, Branch: "master"},
	})

	first, err := InstallDependencies(m, root)
	if err != nil {
		t.Fatalf("first install: %v", err)
	}

	// A checkout already at the locked revision must be left alone.
	marker := filepath.Join(root, "kava_modules", "lib", "marker")
	if err := os.WriteFile(marker, []byte("untouched"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	second, err := InstallDependencies(m, root)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if first.Packages["lib"].Resolved != second.Packages["lib"].Resolved {
		t.Errorf("resolved revision changed across installs")
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("up-to-date checkout was rebuilt: %v", err)
	}
}

func TestInstallPathDependency(t *testing.T) {
	libDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(libDir, "util.kava"), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.WriteFile(filepath.Join(libDir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatalf("write extra file: %v", err)
	}

	root := t.TempDir()
	m := depsManifest(t, root, map[string]*DependencySpec{
		"util": {Path: libDir},
	})

	lock, err := InstallDependencies(m, root)
	if err != nil {
		t.Fatalf("InstallDependencies: %v", err)
	}
	if entry := lock.Packages["util"]; entry == nil || entry.Version != "local" {
		t.Errorf("unexpected lock entry: %+v", lock.Packages["util"])
	}

	dest := filepath.Join(root, "kava_modules", "util")
	if _, err := os.Stat(filepath.Join(dest, "util.kava")); err != nil {
		t.Errorf("expected the .kava source to be copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "notes.txt")); !os.IsNotExist(err) {
		t.Errorf("only .kava files should be copied")
	}
}

func TestInstallPrunesStaleLockEntries(t *testing.T) {
	root := t.TempDir()
	stale := &Lockfile{
		Path: filepath.Join(root, "kava.lock"),
		Packages: map[string]*LockedPackage{
			"gone": {Version: "v1", Resolved: "deadbeef"},
		},
	}
	if err := WriteLockfile(stale, ""); err != nil {
		t.Fatalf("seed lockfile: %v", err)
	}

	m := depsManifest(t, root, nil)
	lock, err := InstallDependencies(m, root)
	if err != nil {
		t.Fatalf("InstallDependencies: %v", err)
	}
	if _, ok := lock.Packages["gone"]; ok {
		t.Errorf("entries for removed dependencies must be pruned")
	}
}

func TestInstallMissingPathDependency(t *testing.T) {
	root := t.TempDir()
	m := depsManifest(t, root, map[string]*DependencySpec{
		"util": {Path: filepath.Join(root, "nope")},
	})
	if _, err := InstallDependencies(m, root); err == nil {
		t.Fatalf("expected an error for a missing path dependency")
	}
}
