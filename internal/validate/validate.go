// Package validate holds the field checks applied to inventory input. The
// checks never fail loudly; callers decide whether to re-prompt.
package validate

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Address reports whether s is a dotted-quad IPv4 address with every octet in
// [0,255]. Host names and IPv6 are rejected.
func Address(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if len(p) == 0 || len(p) > 3 {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// KeyPath reports whether path, after home expansion, is a regular file the
// current process can open for reading.
func KeyPath(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	p := ExpandHome(path)
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// HostName reports whether name can be used as an inventory key.
func HostName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t\r\n:#")
}

// Required reports whether s has non-blank content.
func Required(s string) bool {
	return strings.TrimSpace(s) != ""
}

// ExpandHome replaces a leading ~ with the home directory taken from $HOME.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
