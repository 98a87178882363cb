package scanner

import (
	"strings"
)

// languageMap maps file extensions to the languages nflow understands.
var languageMap = map[string]string{
	".kt":  "kotlin",
	".kts": "kotlin",
}

// DetectLanguage returns the language for a given file extension.
// Returns empty string if the extension is not recognized.
func DetectLanguage(ext string) string {
	return languageMap[strings.ToLower(ext)]
}
