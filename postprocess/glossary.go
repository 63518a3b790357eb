package postprocess

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// GlossaryEntry maps a term the model tends to produce to the preferred one
type GlossaryEntry struct {
	Original    string
	Replacement string
}

// Glossary holds replacement entries in file order
type Glossary struct {
	Entries []GlossaryEntry
}

// Len returns the number of entries
func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Entries)
}

// LoadGlossary loads a glossary from a file. A missing file yields an empty glossary.
func LoadGlossary(path string) (*Glossary, error) {
	if path == "" {
		return &Glossary{}, nil
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Glossary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open glossary: %w", err)
	}
	defer file.Close()

	return ParseGlossary(file)
}

// ParseGlossary reads "original -> replacement" lines. Blank lines and
// lines starting with # are skipped.
func ParseGlossary(r io.Reader) (*Glossary, error) {
	var entries []GlossaryEntry
	scanner := bufio.NewScanner(r)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		original, replacement, ok := strings.Cut(text, "->")
		original = strings.TrimSpace(original)
		if !ok || original == "" {
			return nil, fmt.Errorf("glossary line %d: expected \"original -> replacement\"", line)
		}
		entries = append(entries, GlossaryEntry{
			Original:    original,
			Replacement: strings.TrimSpace(replacement),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read glossary: %w", err)
	}

	return &Glossary{Entries: entries}, nil
}

// SaveGlossary writes the glossary to a file
func SaveGlossary(path string, g *Glossary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create glossary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	writer.WriteString("# TokenSpark glossary (original -> replacement)\n")
	for _, entry := range g.Entries {
		writer.WriteString(entry.Original + " -> " + entry.Replacement + "\n")
	}

	return writer.Flush()
}

// GlossaryProcessor applies every entry, matching case-insensitively and
// inserting the replacement as written
func GlossaryProcessor(g *Glossary) Processor {
	return func(ctx context.Context, text string) (string, error) {
		if g == nil {
			return text, nil
		}

		result := text
		for _, entry := range g.Entries {
			result = replaceFold(result, entry.Original, entry.Replacement)
		}
		return result, nil
	}
}

func replaceFold(s, old, repl string) string {
	if old == "" {
		return s
	}
	var sb strings.Builder
	start := 0
	for i := 0; i+len(old) <= len(s); {
		if strings.EqualFold(s[i:i+len(old)], old) {
			sb.WriteString(s[start:i])
			sb.WriteString(repl)
			i += len(old)
			start = i
			continue
		}
		i++
	}
	if start == 0 {
		return s
	}
	sb.WriteString(s[start:])
	return sb.String()
}
