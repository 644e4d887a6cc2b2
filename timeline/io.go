package timeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Write encodes tokens as an indented JSON array. Non-ASCII words are
// written verbatim.
func Write(w io.Writer, tokens []WordToken) error {
	if tokens == nil {
		tokens = []WordToken{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(tokens)
}

// Read decodes a timeline written by Write.
func Read(r io.Reader) ([]WordToken, error) {
	var out []WordToken
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("timeline decode: %w", err)
	}
	return out, nil
}

// WriteFile writes tokens to path, creating parent directories.
func WriteFile(path string, tokens []WordToken) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Write(f, tokens); err != nil {
		return err
	}
	return f.Close()
}

// ReadFile reads a timeline from path.
func ReadFile(path string) ([]WordToken, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Dialogue renders tokens one per line as "[12.34s] S1: word".
func Dialogue(tokens []WordToken) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%.2fs] %s: %s", t.Start, t.Speaker, t.Word)
	}
	return b.String()
}
