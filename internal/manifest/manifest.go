// Package manifest reads and reconciles the project dependency
// manifest, a line-oriented sectioned key=value file. Reconciliation
// preserves every unrelated line verbatim.
package manifest

import "strings"

// File is the manifest filename looked up in the working directory.
const File = "nebula.pkg"

const depsSection = "[dependencies]"

// SetDependency returns content with name pinned to version in the
// [dependencies] section. An existing entry for name is rewritten in
// place; otherwise the entry is appended at the end of the section,
// before the next section header. A missing section is created after a
// blank line.
func SetDependency(content []byte, name, version string) []byte {
	entry := name + "=" + version
	lines := splitLines(content)

	inDeps := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == depsSection:
			inDeps = true
		case strings.HasPrefix(trimmed, "["):
			inDeps = false
		case inDeps && !strings.HasPrefix(trimmed, "#") && strings.HasPrefix(trimmed, name+"="):
			lines[i] = entry
			return joinLines(lines)
		}
	}

	sectionAt := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == depsSection {
			sectionAt = i
			break
		}
	}
	if sectionAt == -1 {
		lines = append(lines, "", depsSection, entry)
		return joinLines(lines)
	}

	insertAt := len(lines)
	for i := sectionAt + 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "[") {
			insertAt = i
			break
		}
	}
	lines = append(lines[:insertAt], append([]string{entry}, lines[insertAt:]...)...)
	return joinLines(lines)
}

// Dependencies parses the [dependencies] section into a name->version
// map. Comment lines and lines outside the section are ignored.
func Dependencies(content []byte) map[string]string {
	deps := make(map[string]string)
	inDeps := false
	for _, line := range splitLines(content) {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == depsSection:
			inDeps = true
		case strings.HasPrefix(trimmed, "["):
			inDeps = false
		case inDeps && trimmed != "" && !strings.HasPrefix(trimmed, "#"):
			if name, version, ok := strings.Cut(trimmed, "="); ok {
				deps[strings.TrimSpace(name)] = strings.TrimSpace(version)
			}
		}
	}
	return deps
}

func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}
