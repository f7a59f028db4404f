// Package sshconfig parses and rewrites the ssh-config blocks printed by
// "vagrant ssh-config" and writes them out as per-host config files.
package sshconfig

import (
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Required directives; a block missing any of them cannot be used to connect.
var requiredKeys = []string{"Host", "HostName", "User", "Port"}

// ParseError reports an ssh-config block that lacks required directives.
type ParseError struct {
	Missing []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ssh-config is missing required directives: %s", strings.Join(e.Missing, ", "))
}

type line struct {
	raw       string
	directive bool
	indent    string
	key       string
	sep       string
	value     string
}

func (l line) String() string {
	if !l.directive {
		return l.raw
	}
	return l.indent + l.key + l.sep + l.value
}

// Config is an ordered ssh-config document. Every line, including its
// indentation, survives a Parse/String round trip.
type Config struct {
	lines []line
}

// Parse reads an ssh-config document.
func Parse(text string) (*Config, error) {
	cfg := &Config{}
	for _, raw := range strings.Split(text, "\n") {
		cfg.lines = append(cfg.lines, parseLine(raw))
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := cfg.Get(key); !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{Missing: missing}
	}
	return cfg, nil
}

// ParseFile reads and parses the ssh-config file at path.
func ParseFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh-config %s: %w", path, err)
	}
	return Parse(string(content))
}

func parseLine(raw string) line {
	trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return line{raw: raw}
	}

	indent := raw[:len(raw)-len(trimmed)]
	keyEnd := strings.IndexFunc(trimmed, func(r rune) bool {
		return unicode.IsSpace(r) || r == '='
	})
	if keyEnd < 0 {
		return line{directive: true, indent: indent, key: trimmed}
	}

	rest := trimmed[keyEnd:]
	value := strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || r == '='
	})
	return line{
		directive: true,
		indent:    indent,
		key:       trimmed[:keyEnd],
		sep:       rest[:len(rest)-len(value)],
		value:     value,
	}
}

// Get returns the value of the first directive named key.
func (c *Config) Get(key string) (string, bool) {
	for _, l := range c.lines {
		if l.directive && strings.EqualFold(l.key, key) {
			return strings.TrimRightFunc(l.value, unicode.IsSpace), true
		}
	}
	return "", false
}

// All returns the unquoted values of every directive named key.
func (c *Config) All(key string) []string {
	var values []string
	for _, l := range c.lines {
		if l.directive && strings.EqualFold(l.key, key) {
			values = append(values, unquote(strings.TrimSpace(l.value)))
		}
	}
	return values
}

// Set rewrites the value of every directive named key and reports how many
// were changed. Absent directives are not added.
func (c *Config) Set(key, value string) int {
	n := 0
	for i, l := range c.lines {
		if l.directive && strings.EqualFold(l.key, key) {
			c.lines[i].value = value
			n++
		}
	}
	return n
}

func (c *Config) String() string {
	out := make([]string, len(c.lines))
	for i, l := range c.lines {
		out[i] = l.String()
	}
	return strings.Join(out, "\n")
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}
