package scanner

import (
	"path"
	"strings"
)

// IgnorePattern is one line of a .nflowignore file, with gitignore
// semantics: a leading ! negates, a trailing / only matches directories, a
// leading / or an inner / anchors the pattern to the directory holding the
// ignore file, and ** spans any number of directories. A pattern that
// matches a directory ignores everything beneath it.
type IgnorePattern struct {
	raw      string
	base     string // slash-separated directory of the ignore file, "" for the root
	negate   bool
	dirOnly  bool
	anchored bool
	segments []string
}

// ParseIgnorePattern parses a pattern that applies from the scan root.
func ParseIgnorePattern(line string) IgnorePattern {
	return parseIgnorePatternIn("", line)
}

func parseIgnorePatternIn(base, line string) IgnorePattern {
	p := IgnorePattern{raw: line, base: base}

	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		p.anchored = true
	}
	p.segments = strings.Split(line, "/")
	return p
}

// String returns the pattern as written.
func (p IgnorePattern) String() string { return p.raw }

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool { return p.negate }

// Match reports whether the slash-separated file path, relative to the
// scan root, is matched. Negation is left to the caller.
func (p IgnorePattern) Match(rel string) bool {
	return p.match(rel, false)
}

// MatchDir is Match for a directory path.
func (p IgnorePattern) MatchDir(rel string) bool {
	return p.match(rel, true)
}

func (p IgnorePattern) match(rel string, isDir bool) bool {
	if p.base != "" {
		if !strings.HasPrefix(rel, p.base+"/") {
			return false
		}
		rel = rel[len(p.base)+1:]
	}
	segs := strings.Split(rel, "/")
	if p.dirOnly && !isDir {
		// Only the directories above the file can match.
		segs = segs[:len(segs)-1]
	}
	if p.anchored {
		return matchSegments(p.segments, segs)
	}
	for i := range segs {
		if matchSegments(p.segments, segs[i:]) {
			return true
		}
	}
	return false
}

// matchSegments reports whether pat matches a prefix of segs.
func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return true
	}
	if pat[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, err := path.Match(pat[0], segs[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}

// ignored applies patterns in order. A later negation re-includes a path
// an earlier pattern excluded.
func ignored(rel string, isDir bool, patterns []IgnorePattern) bool {
	out := false
	for _, p := range patterns {
		if p.match(rel, isDir) {
			out = !p.negate
		}
	}
	return out
}
