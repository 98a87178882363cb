// Package extractor turns source files into the resolved trees the
// nullability analysis consumes.
package extractor

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-nullflow/pkg/ast"
)

// Extractor parses one language.
type Extractor interface {
	// Extract reads and parses a source file.
	Extract(file string) (*ast.File, error)
	// ExtractFromBytes parses source already in memory.
	ExtractFromBytes(content []byte, file string) (*ast.File, error)
}

// Language identifies a front end.
type Language string

const (
	Kotlin Language = "kotlin"
)

// ParserFactory creates a new tree-sitter parser for a language. Parsers
// are not safe for concurrent use, so each extraction asks for its own.
type ParserFactory func() *sitter.Parser

// LanguageRegistry maps file extensions to front ends.
type LanguageRegistry struct {
	extractors map[Language]Extractor
	extensions map[string]Language
}

// NewLanguageRegistry returns a registry with the built-in front ends.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		extractors: make(map[Language]Extractor),
		extensions: make(map[string]Language),
	}
	r.RegisterLanguage(Kotlin, []string{".kt", ".kts"}, NewKotlinExtractor)
	return r
}

// RegisterLanguage adds a front end for the given extensions.
func (r *LanguageRegistry) RegisterLanguage(lang Language, extensions []string, factory func() Extractor) {
	r.extractors[lang] = factory()
	for _, ext := range extensions {
		r.extensions[strings.ToLower(ext)] = lang
	}
}

// GetExtractor returns the front end for filePath based on its extension.
func (r *LanguageRegistry) GetExtractor(filePath string) (Extractor, error) {
	lang, err := r.GetLanguage(filePath)
	if err != nil {
		return nil, err
	}
	ex, ok := r.extractors[lang]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for language: %s", lang)
	}
	return ex, nil
}

// GetLanguage returns the language of filePath.
func (r *LanguageRegistry) GetLanguage(filePath string) (Language, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return "", fmt.Errorf("file has no extension: %s", filePath)
	}
	lang, ok := r.extensions[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file extension: %s", ext)
	}
	return lang, nil
}

// IsSupported reports whether filePath has a registered extension.
func (r *LanguageRegistry) IsSupported(filePath string) bool {
	_, err := r.GetLanguage(filePath)
	return err == nil
}

// SupportedExtensions returns the registered extensions, sorted.
func (r *LanguageRegistry) SupportedExtensions() []string {
	out := make([]string, 0, len(r.extensions))
	for ext := range r.extensions {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// ExtractFile parses filePath with the front end registered for its
// extension.
func ExtractFile(filePath string) (*ast.File, error) {
	ex, err := NewLanguageRegistry().GetExtractor(filePath)
	if err != nil {
		return nil, err
	}
	return ex.Extract(filePath)
}

// SyntaxError reports that the parser had to recover from malformed input.
// It is returned together with a usable file: the malformed regions are
// lowered to opaque expressions.
type SyntaxError struct {
	File string
	At   ast.Pos
	Text string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%s: syntax error near %q", e.File, e.At, e.Text)
}
