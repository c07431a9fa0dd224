package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/cvchat/cvchat/internal/secrets"
)

// Secret names consulted by LoadKnowledge.
const (
	SecretCVData     = "CV_DATA"
	SecretReferences = "REFERENCES"
)

// Placeholder texts returned when no knowledge is configured. They become the
// knowledge block of the system prompt, so the model can tell the visitor the
// assistant is not set up yet.
const (
	KnowledgeNotConfigured = "CV data not configured. Please add CV_DATA and optionally REFERENCES to the secrets file."
	KnowledgeNotFound      = "CV data not found. Please add CV_DATA and optionally REFERENCES to the secrets file or create the knowledge file."
)

// LoadKnowledge returns the resume text. The secrets store wins; the file at
// path is the local-development fallback. It never fails: missing or demo
// content yields one of the placeholder strings.
func LoadKnowledge(store secrets.Store, path string) string {
	if store != nil {
		if cv, ok := store.Lookup(SecretCVData); ok {
			if refs, ok := store.Lookup(SecretReferences); ok {
				return cv + "\n\n## References\n\n" + refs
			}
			return cv
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return KnowledgeNotFound
		}
		return fmt.Sprintf("Error loading CV data: %v", err)
	}

	content := string(data)
	lower := strings.ToLower(content)
	if strings.TrimSpace(content) == "" ||
		strings.Contains(lower, "placeholder") ||
		strings.Contains(lower, "demo content") {
		return KnowledgeNotConfigured
	}
	return content
}
