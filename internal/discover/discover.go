// Package discover finds FiveM resources and the Lua scripts they contain.
//
// A resource is a directory holding fxmanifest.lua or the older
// __resource.lua. Resources nested in category folders such as
// resources/[qb]/qb-core are named by their path relative to the scanned
// root. Direct mode skips resource detection and groups every script under
// DirectGroup.
package discover

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	ignore "github.com/sabhiram/go-gitignore"
)

// Manifest file names, newest format first.
const (
	Manifest       = "fxmanifest.lua"
	LegacyManifest = "__resource.lua"
)

// DirectGroup names the single group produced in direct mode.
const DirectGroup = "(direct)"

// DefaultIgnoreFile is the gitignore-syntax file read from the scanned root.
const DefaultIgnoreFile = ".luafixignore"

var skipDirs = map[string]bool{
	"node_modules": true,
}

// Options controls what discovery skips.
type Options struct {
	// ExcludeResources lists resource names to leave out.
	ExcludeResources []string
	// ExcludePatterns are gitignore-syntax patterns relative to the root.
	ExcludePatterns []string
	// ExcludeDirs are directory names skipped at any depth.
	ExcludeDirs []string
	// Gitignore applies the .gitignore files found under the root.
	Gitignore bool
	// IgnoreFile names an ignore file at the root; "" means
	// DefaultIgnoreFile.
	IgnoreFile string
	Logger     *slog.Logger
}

// Resource is a group of scripts.
type Resource struct {
	Name string `json:"name"`
	// Dir is the resource directory, or the scanned path in direct mode.
	Dir string `json:"dir"`
	// Manifest is the manifest path, empty in direct mode.
	Manifest string   `json:"manifest,omitempty"`
	Scripts  []string `json:"scripts"`
}

// Result is the outcome of a discovery.
type Result struct {
	Root      string     `json:"root"`
	Direct    bool       `json:"direct"`
	Resources []Resource `json:"resources"`
	// Excluded lists resource names dropped by ExcludeResources.
	Excluded []string `json:"excluded,omitempty"`
}

// Files returns every script of every resource.
func (r *Result) Files() []string {
	var out []string
	for _, res := range r.Resources {
		out = append(out, res.Scripts...)
	}
	return out
}

// ResourceOf maps each script path to its resource name.
func (r *Result) ResourceOf() map[string]string {
	out := make(map[string]string)
	for _, res := range r.Resources {
		for _, s := range res.Scripts {
			out[s] = res.Name
		}
	}
	return out
}

// Discoverer walks a billy filesystem. Paths it returns are joined onto
// root, so a discoverer over osfs.New(root) yields operating system paths.
type Discoverer struct {
	fs       billy.Filesystem
	root     string
	opts     Options
	skip     map[string]bool
	matcher  gitignore.Matcher
	ignore   *ignore.GitIgnore
	excluded map[string]bool
	logger   *slog.Logger
}

// New creates a discoverer over the directory root.
func New(root string, opts Options) *Discoverer {
	return NewFS(osfs.New(root), root, opts)
}

// NewFS creates a discoverer over fsys, reporting paths joined onto root.
func NewFS(fsys billy.Filesystem, root string, opts Options) *Discoverer {
	d := &Discoverer{
		fs:       fsys,
		root:     root,
		opts:     opts,
		skip:     make(map[string]bool),
		excluded: make(map[string]bool),
		logger:   opts.Logger,
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	for name := range skipDirs {
		d.skip[name] = true
	}
	for _, name := range opts.ExcludeDirs {
		d.skip[name] = true
	}
	for _, name := range opts.ExcludeResources {
		d.excluded[name] = true
	}
	d.loadIgnores()
	return d
}

func (d *Discoverer) loadIgnores() {
	var patterns []gitignore.Pattern
	for _, p := range d.opts.ExcludePatterns {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	if d.opts.Gitignore {
		if ps, err := gitignore.ReadPatterns(d.fs, nil); err == nil {
			patterns = append(patterns, ps...)
		} else {
			d.logger.Debug("reading .gitignore files failed", "error", err)
		}
	}
	if len(patterns) > 0 {
		d.matcher = gitignore.NewMatcher(patterns)
	}

	name := d.opts.IgnoreFile
	if name == "" {
		name = DefaultIgnoreFile
	}
	lines, err := readLines(d.fs, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("reading ignore file failed", "file", name, "error", err)
		}
		return
	}
	d.ignore = ignore.CompileIgnoreLines(lines...)
}

func readLines(fsys billy.Filesystem, name string) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func (d *Discoverer) ignored(rel string, isDir bool) bool {
	if d.matcher != nil && d.matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir) {
		return true
	}
	return d.ignore != nil && d.ignore.MatchesPath(filepath.ToSlash(rel))
}

func (d *Discoverer) path(rel string) string {
	if rel == "" {
		return d.root
	}
	return filepath.Join(d.root, rel)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// IsScript reports whether name is a Lua script other than a manifest.
func IsScript(name string) bool {
	base := filepath.Base(name)
	if base == Manifest || base == LegacyManifest {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".lua")
}

func (d *Discoverer) exists(rel string) bool {
	info, err := d.fs.Stat(rel)
	return err == nil && !info.IsDir()
}

// manifestIn returns the manifest file of dir, or "".
func (d *Discoverer) manifestIn(dir string) string {
	for _, name := range []string{Manifest, LegacyManifest} {
		if rel := filepath.Join(dir, name); d.exists(rel) {
			return rel
		}
	}
	return ""
}

// Resources discovers every resource under the root. When the root itself
// is a resource it is the only one returned.
func (d *Discoverer) Resources() (*Result, error) {
	res := &Result{Root: d.root}
	if m := d.manifestIn(""); m != "" {
		name := filepath.Base(filepath.Clean(d.root))
		d.addResource(res, name, "", m, false)
		return res, nil
	}

	var dirs []string
	err := util.Walk(d.fs, "", func(rel string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if rel != "" && (isHidden(info.Name()) || d.skip[info.Name()] || d.ignored(rel, true)) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() == Manifest || info.Name() == LegacyManifest {
			dirs = append(dirs, filepath.Dir(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover resources in %s: %w", d.root, err)
	}

	seen := make(map[string]bool)
	sort.Strings(dirs)
	for _, dir := range dirs {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		d.addResource(res, resourceName(dir), dir, d.manifestIn(dir), true)
	}
	sort.Slice(res.Resources, func(i, j int) bool { return res.Resources[i].Name < res.Resources[j].Name })
	return res, nil
}

// resourceName names a resource by its path relative to the root, so that
// resources in category folders stay distinct.
func resourceName(rel string) string {
	return filepath.ToSlash(rel)
}

func (d *Discoverer) addResource(res *Result, name, dir, manifest string, own bool) {
	if d.excluded[name] || d.excluded[filepath.Base(dir)] {
		res.Excluded = append(res.Excluded, name)
		d.logger.Debug("resource excluded", "resource", name)
		return
	}
	scripts := d.scripts(dir, own)
	if len(scripts) == 0 {
		return
	}
	res.Resources = append(res.Resources, Resource{
		Name:     name,
		Dir:      d.path(dir),
		Manifest: d.path(manifest),
		Scripts:  scripts,
	})
}

// scripts lists the scripts under dir in lexical order, skipping hidden
// and excluded directories. With own set, subdirectories holding their own
// manifest are left to their resource.
func (d *Discoverer) scripts(dir string, own bool) []string {
	var out []string
	_ = util.Walk(d.fs, dir, func(rel string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if rel == dir {
				return nil
			}
			if isHidden(info.Name()) || d.skip[info.Name()] || d.ignored(rel, true) {
				return filepath.SkipDir
			}
			if own && d.manifestIn(rel) != "" {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsScript(info.Name()) || isHidden(info.Name()) || d.ignored(rel, false) {
			return nil
		}
		out = append(out, d.path(rel))
		return nil
	})
	sort.Strings(out)
	return out
}

// Direct groups the scripts under the root without resource detection.
func (d *Discoverer) Direct() (*Result, error) {
	res := &Result{Root: d.root, Direct: true}
	if scripts := d.scripts("", false); len(scripts) > 0 {
		res.Resources = []Resource{{Name: DirectGroup, Dir: d.root, Scripts: scripts}}
	}
	return res, nil
}

// Discover finds the scripts at path. A file path is always handled in
// direct mode and must be a Lua script.
func Discover(path string, direct bool, opts Options) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", path, err)
	}
	if !info.IsDir() {
		res := &Result{Root: path, Direct: true}
		if strings.EqualFold(filepath.Ext(path), ".lua") {
			res.Resources = []Resource{{Name: DirectGroup, Dir: filepath.Dir(path), Scripts: []string{path}}}
		}
		return res, nil
	}
	d := New(path, opts)
	if direct {
		return d.Direct()
	}
	return d.Resources()
}

// ReadExcludeFile reads resource names from r, one per line. Blank lines
// and lines starting with # are skipped.
func ReadExcludeFile(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read exclude file: %w", err)
	}
	return names, nil
}
