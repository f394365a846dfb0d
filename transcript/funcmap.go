package transcript

import (
	"encoding/json"
	"text/template"
	"unicode/utf8"
)

// funcMap returns the template.FuncMap used to render the tool-use instruction document.
func funcMap() template.FuncMap {
	return template.FuncMap{
		"truncate_chars":    truncateChars,
		"render_parameters": renderParameters,
	}
}

// truncateChars truncates text to at most maxChars runes.
// Uses RuneCountInString for early exit to avoid allocating []rune when no truncation is needed.
func truncateChars(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}

// renderParameters returns the compact JSON form of a parameter schema.
// Nil or empty schemas render as "{}".
func renderParameters(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
