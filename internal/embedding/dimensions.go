package embedding

import (
	"strconv"
	"strings"
)

// DefaultDimension is the fallback for unknown models (OpenAI default).
const DefaultDimension = 1536

// supportedDimensions maps vector widths to the models known to produce them.
// The set mirrors the columns provisioned in the vector store schema.
var supportedDimensions = map[int][]string{
	768:  {"text-embedding-004", "gemini-text-embedding"},
	1024: {"mxbai-embed-large", "ollama-embed-large"},
	1536: {"text-embedding-3-small", "text-embedding-ada-002"},
	3072: {"text-embedding-3-large"},
}

// SupportedDimensions returns a copy of the dimension → models table.
func SupportedDimensions() map[int][]string {
	out := make(map[int][]string, len(supportedDimensions))
	for dim, models := range supportedDimensions {
		out[dim] = append([]string(nil), models...)
	}
	return out
}

// DimensionForModel resolves the vector width for a model name. Ollama model
// tags ("mxbai-embed-large:latest") match on the base name. Unknown models
// fall back to DefaultDimension.
func DimensionForModel(model string) int {
	for dim, models := range supportedDimensions {
		for _, m := range models {
			if model == m {
				return dim
			}
		}
	}
	base := strings.ToLower(strings.SplitN(model, ":", 2)[0])
	for dim, models := range supportedDimensions {
		for _, m := range models {
			lower := strings.ToLower(m)
			if strings.Contains(lower, base) || strings.Contains(base, lower) {
				return dim
			}
		}
	}
	return DefaultDimension
}

// IsDimensionSupported reports whether the schema has a column for dim.
func IsDimensionSupported(dim int) bool {
	_, ok := supportedDimensions[dim]
	return ok
}

// ColumnForDimension returns the vector column name for dim, falling back to
// the legacy unsized column for unsupported widths.
func ColumnForDimension(dim int) string {
	if IsDimensionSupported(dim) {
		return "embedding_" + strconv.Itoa(dim)
	}
	return "embedding"
}
