// Package scanner finds the source files to analyze. It walks directory
// trees, honours .nflowignore files with gitignore-style patterns and keeps
// only files with a configured extension.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root, or the path as given
	FullPath string // Absolute path
	Language string // Detected language from extension
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow file symlinks that stay within root
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string   // Name of the ignore file (default: .nflowignore)
	Extensions      []string // File extensions to keep, with the dot
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		FollowSymlinks: false,
		IgnoreFileName: ".nflowignore",
		Extensions:     []string{".kt", ".kts"},
		DefaultExcludes: []string{
			".git",
			".gradle",
			".idea",
			".hg",
			".svn",
			"build",
			"out",
			"target",
			"node_modules",
			"vendor",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".nflowignore"
	}
	return &Scanner{opts: opts}
}

// Supported reports whether path has one of the configured extensions.
func (s *Scanner) Supported(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range s.opts.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// Scan recursively scans the directory at root and returns the matching
// files in lexical order.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	var (
		files    []FileInfo
		patterns []IgnorePattern
	)

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped; the walk continues.
			if d != nil && d.IsDir() && path != absRoot {
				return filepath.SkipDir
			}
			if path == absRoot {
				return err
			}
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel := filepath.ToSlash(relPath)

		if d.IsDir() {
			if rel != "." {
				if s.opts.SkipHidden && isHidden(d.Name()) ||
					s.isDefaultExcluded(d.Name()) ||
					ignored(rel, true, patterns) {
					return filepath.SkipDir
				}
			}
			base := rel
			if base == "." {
				base = ""
			}
			nested, err := s.loadIgnorePatterns(path, base)
			if err != nil {
				return fmt.Errorf("loading ignore patterns: %w", err)
			}
			patterns = append(patterns, nested...)
			return nil
		}

		if s.opts.SkipHidden && isHidden(d.Name()) {
			return nil
		}
		if !s.Supported(path) || ignored(rel, false, patterns) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if info = s.followSymlink(absRoot, path); info == nil {
				return nil
			}
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		files = append(files, FileInfo{
			Path:     rel,
			FullPath: path,
			Language: DetectLanguage(filepath.Ext(path)),
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}

// followSymlink returns the target's info when the link points at a file
// inside root and links are followed.
func (s *Scanner) followSymlink(absRoot, path string) os.FileInfo {
	if !s.opts.FollowSymlinks {
		return nil
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil
	}
	realAbs, err := filepath.Abs(realPath)
	if err != nil {
		return nil
	}
	if realRoot, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = realRoot
	}
	if !strings.HasPrefix(realAbs, absRoot+string(filepath.Separator)) {
		return nil
	}
	info, err := os.Stat(realAbs)
	if err != nil || info.IsDir() {
		return nil
	}
	return info
}

// ScanPaths scans every argument. Directories are walked; files are taken
// as given, even when an ignore file would exclude them, but must have a
// supported extension. Duplicates are dropped and the result keeps
// argument order.
func (s *Scanner) ScanPaths(paths []string) ([]FileInfo, error) {
	var out []FileInfo
	seen := make(map[string]bool)
	add := func(f FileInfo) {
		if !seen[f.FullPath] {
			seen[f.FullPath] = true
			out = append(out, f)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			files, err := s.Scan(p)
			if err != nil {
				return nil, fmt.Errorf("scanning %s: %w", p, err)
			}
			for _, f := range files {
				if p != "." {
					f.Path = filepath.ToSlash(filepath.Join(p, filepath.FromSlash(f.Path)))
				}
				add(f)
			}
			continue
		}
		if !s.Supported(p) {
			return nil, fmt.Errorf("%s: unsupported file type (want %s)", p, strings.Join(s.opts.Extensions, ", "))
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("getting absolute path: %w", err)
		}
		add(FileInfo{
			Path:     filepath.ToSlash(p),
			FullPath: abs,
			Language: DetectLanguage(filepath.Ext(p)),
			Size:     info.Size(),
		})
	}
	return out, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	return slices.ContainsFunc(s.opts.DefaultExcludes, func(ex string) bool {
		return strings.EqualFold(name, ex)
	})
}

// loadIgnorePatterns loads the ignore file in dir. base is dir relative to
// the scan root.
func (s *Scanner) loadIgnorePatterns(dir, base string) ([]IgnorePattern, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, parseIgnorePatternIn(base, line))
	}
	return patterns, sc.Err()
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
