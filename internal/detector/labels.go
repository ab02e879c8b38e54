package detector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Labels maps class ids to human-readable names.
type Labels map[int]string

// Name returns the label for id, or its decimal form when unknown.
func (l Labels) Name(id int) string {
	if name, ok := l[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}

// LoadLabels reads a label file. Lines are either "<index> <name>" or bare
// names numbered from zero; the format is decided by the first line.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLabelsNotFound, path)
		}
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	return ParseLabels(f)
}

// ParseLabels parses label lines from r.
func ParseLabels(r io.Reader) (Labels, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}

	labels := make(Labels, len(lines))
	if len(lines) == 0 {
		return labels, nil
	}

	if !indexed(lines[0]) {
		for i, line := range lines {
			labels[i] = strings.TrimSpace(line)
		}
		return labels, nil
	}

	for n, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		index, name, _ := strings.Cut(line, " ")
		id, err := strconv.Atoi(index)
		if err != nil {
			return nil, fmt.Errorf("labels line %d: bad index %q", n+1, index)
		}
		labels[id] = strings.TrimSpace(name)
	}
	return labels, nil
}

// indexed reports whether the first space-separated field of line is all digits.
func indexed(line string) bool {
	field, _, _ := strings.Cut(line, " ")
	if field == "" {
		return false
	}
	for _, r := range field {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
