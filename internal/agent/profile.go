package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Profile is the on-disk description of a character under <dir>/<name>/.
//
//	SOUL.md      voice and temperament
//	RULES.md     hard constraints on what the character says
//	GOALS.md     what the character wants
//	MEMORIES.md  one starting memory per non-empty line
type Profile struct {
	Soul     string
	Rules    string
	Goals    string
	Memories []string
}

// LoadProfile reads a character profile. Missing files and a missing
// directory yield an empty Profile; other read errors are returned.
func LoadProfile(dir, name string) (Profile, error) {
	var p Profile
	if dir == "" {
		return p, nil
	}
	base := filepath.Join(dir, name)
	for file, dst := range map[string]*string{
		"SOUL.md":  &p.Soul,
		"RULES.md": &p.Rules,
		"GOALS.md": &p.Goals,
	} {
		text, err := readProfileFile(filepath.Join(base, file))
		if err != nil {
			return Profile{}, err
		}
		*dst = text
	}
	mem, err := readProfileFile(filepath.Join(base, "MEMORIES.md"))
	if err != nil {
		return Profile{}, err
	}
	for _, line := range strings.Split(mem, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*"))
		if line != "" && !strings.HasPrefix(line, "#") {
			p.Memories = append(p.Memories, line)
		}
	}
	return p, nil
}

func readProfileFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read profile %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Prompt renders the profile sections for a system prompt, in a fixed order.
func (p Profile) Prompt() string {
	var parts []string
	for _, s := range []string{p.Soul, p.Rules, p.Goals} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}
