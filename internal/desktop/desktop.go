package desktop

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Entry holds the launchable fields parsed from one .desktop file.
type Entry struct {
	Name     string // Display name
	Exec     string // Exec command, field codes stripped, leading ~ expanded
	Icon     string // Icon path or theme name, may be empty
	Terminal bool   // Whether to run in a terminal
}

// Skip decisions. Files hitting one of these are common and must not abort
// a scan; callers classify them with IsSkip.
var (
	ErrMissingName    = errors.New("desktop entry has no name")
	ErrMissingExec    = errors.New("desktop entry has no exec command")
	ErrHiddenEntry    = errors.New("desktop entry is hidden")
	ErrNotApplication = errors.New("desktop entry is not an application")
	ErrNoEntryGroup   = errors.New("no [Desktop Entry] group")
)

// IsSkip reports whether err marks a file that should be silently skipped
// rather than treated as a scan failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrMissingName) ||
		errors.Is(err, ErrMissingExec) ||
		errors.Is(err, ErrHiddenEntry) ||
		errors.Is(err, ErrNotApplication) ||
		errors.Is(err, ErrNoEntryGroup)
}

// Parse parses the raw bytes of one .desktop file. It returns a skip error
// for entries that are hidden, not applications, or missing required
// fields. Malformed lines are ignored rather than failing the file.
func Parse(data []byte) (Entry, error) {
	var (
		entry        Entry
		sawGroup     bool
		inEntryGroup bool
		entryType    string
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			group := strings.Trim(line, "[]")
			inEntryGroup = group == "Desktop Entry"
			if inEntryGroup {
				sawGroup = true
			}
			continue
		}

		if !inEntryGroup {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Type":
			entryType = value
		case "Name":
			entry.Name = value
		case "Exec":
			entry.Exec = value
		case "Icon":
			entry.Icon = value
		case "Terminal":
			entry.Terminal = strings.EqualFold(value, "true")
		case "Hidden", "NoDisplay":
			if strings.EqualFold(value, "true") {
				return Entry{}, ErrHiddenEntry
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Entry{}, err
	}

	if !sawGroup {
		return Entry{}, ErrNoEntryGroup
	}
	if entryType != "" && entryType != "Application" {
		return Entry{}, ErrNotApplication
	}
	if entry.Name == "" {
		return Entry{}, ErrMissingName
	}
	if entry.Exec == "" {
		return Entry{}, ErrMissingExec
	}

	entry.Exec = CleanExec(entry.Exec)
	if entry.Exec == "" {
		return Entry{}, ErrMissingExec
	}
	return entry, nil
}

// ParseFile reads and parses one .desktop file.
func ParseFile(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	return Parse(data)
}

// CleanExec strips %-field codes from an Exec command, expands a leading ~
// to the user home directory and collapses whitespace.
func CleanExec(exec string) string {
	exec = removeFieldCodes(exec)

	fields := strings.Fields(exec)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "~") {
		if home, err := os.UserHomeDir(); err == nil {
			fields[0] = filepath.Join(home, strings.TrimPrefix(fields[0], "~"))
		}
	}
	return strings.Join(fields, " ")
}

// removeFieldCodes drops %X placeholders. %% is an escaped percent sign.
func removeFieldCodes(s string) string {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '%' && i+1 < len(s) {
			next := s[i+1]
			if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') || next == '%' {
				if next == '%' {
					result.WriteByte('%')
				}
				i += 2
				continue
			}
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}
