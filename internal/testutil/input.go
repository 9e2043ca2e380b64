package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TestInput represents a parsed render case file.
//
// A case file has three sections separated by lines holding only "---": a
// JSON object with the render data, a namespace file, and the expected
// output. A single trailing newline of the expected output is ignored.
type TestInput struct {
	Context  map[string]any // JSON render data
	Settings *TestSettings  // Optional $settings from the data
	Template string         // Namespace file source
	Expected string         // Expected render output
}

// TestSettings represents the $settings field in case files.
type TestSettings struct {
	// Entry is the template to render. Defaults to the first template of
	// the file.
	Entry          string `json:"entry"`
	RecursionLimit int    `json:"recursion_limit"`
	Fuel           uint64 `json:"fuel"`
	Debug          bool   `json:"debug"`
	// Error is the expected error kind, e.g. "template not found". The
	// expected output section then holds a substring of the message.
	Error string `json:"error"`
}

// ParseTestInputFile reads and parses a case file.
func ParseTestInputFile(path string) (*TestInput, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	input, err := ParseTestInput(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return input, nil
}

// ParseTestInput parses case file content.
func ParseTestInput(content string) (*TestInput, error) {
	input := &TestInput{
		Context: make(map[string]any),
	}

	parts := strings.SplitN(content, "\n---\n", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("expected at least 2 sections, got %d", len(parts))
	}

	if strings.TrimSpace(parts[0]) != "" {
		if err := json.Unmarshal([]byte(parts[0]), &input.Context); err != nil {
			return nil, err
		}

		if settingsRaw, ok := input.Context["$settings"]; ok {
			settingsJSON, err := json.Marshal(settingsRaw)
			if err != nil {
				return nil, err
			}
			input.Settings = &TestSettings{}
			if err := json.Unmarshal(settingsJSON, input.Settings); err != nil {
				return nil, err
			}
			// not a template variable
			delete(input.Context, "$settings")
		}
	}

	input.Template = parts[1]
	if len(parts) == 3 {
		input.Expected = strings.TrimSuffix(parts[2], "\n")
	}

	return input, nil
}

// GlobTestInputs finds all case files matching a pattern.
func GlobTestInputs(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// TestResult represents the result of running a single case.
type TestResult struct {
	Name     string
	Error    error
	Expected string
	Actual   string
}

// Passed reports whether the case produced the expected output.
func (r *TestResult) Passed() bool {
	return r.Error == nil && r.Expected == r.Actual
}

// Diff returns a simple diff between expected and actual output.
func (r *TestResult) Diff() string {
	if r.Expected == r.Actual {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("=== Expected ===\n")
	sb.WriteString(r.Expected)
	if !strings.HasSuffix(r.Expected, "\n") {
		sb.WriteString("⏎\n") // Show missing newline
	}
	sb.WriteString("=== Actual ===\n")
	sb.WriteString(r.Actual)
	if !strings.HasSuffix(r.Actual, "\n") {
		sb.WriteString("⏎\n")
	}
	sb.WriteString("=== End ===\n")
	return sb.String()
}
