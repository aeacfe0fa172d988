// Package ssh launches interactive commands on remote hosts over SSH.
package ssh

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ConnectionOptions configures how an SSH connection is established.
type ConnectionOptions struct {
	// Host is the target host name, IP or ~/.ssh/config alias.
	Host string

	// Port is the SSH port (defaults to 22 when unset).
	Port int

	// User is the SSH username.
	User string

	// KeyPath is an optional path to the private key.
	KeyPath string

	// KnownHostsPath overrides ~/.ssh/known_hosts.
	KnownHostsPath string

	// Insecure skips host key verification.
	Insecure bool

	// ProxyJump lists bastion hosts to reach the target (user@host:port,...).
	ProxyJump string

	// Timeout controls how long to wait when establishing connections.
	Timeout time.Duration
}

// ApplySSHConfig applies settings from ~/.ssh/config to the connection options.
// It looks up the host alias and updates Host, Port, User, KeyPath and ProxyJump
// based on matching Host directives. Explicit values win.
func ApplySSHConfig(opts ConnectionOptions) (ConnectionOptions, error) {
	if strings.TrimSpace(opts.Host) == "" {
		return opts, nil
	}

	configPath, err := defaultSSHConfigPath()
	if err != nil {
		return opts, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return opts, nil
		}
		return opts, err
	}

	host := strings.TrimSpace(opts.Host)
	currentMatch := true

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		key := strings.ToLower(fields[0])
		value := strings.Join(fields[1:], " ")

		switch key {
		case "host":
			currentMatch = matchesHostPatterns(host, fields[1:])
			continue
		case "match":
			// Match blocks need a full criteria evaluator; skip them.
			currentMatch = false
			continue
		}

		if !currentMatch {
			continue
		}

		switch key {
		case "hostname":
			if v := strings.TrimSpace(value); v != "" {
				opts.Host = v
			}
		case "user":
			if opts.User == "" {
				opts.User = strings.TrimSpace(value)
			}
		case "port":
			if opts.Port == 0 {
				if port, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
					opts.Port = port
				}
			}
		case "identityfile":
			if opts.KeyPath == "" {
				if expanded := expandSSHPath(value); expanded != "" {
					opts.KeyPath = expanded
				}
			}
		case "userknownhostsfile":
			if opts.KnownHostsPath == "" {
				if expanded := expandSSHPath(strings.Fields(value)[0]); expanded != "" {
					opts.KnownHostsPath = expanded
				}
			}
		case "stricthostkeychecking":
			if strings.EqualFold(strings.TrimSpace(value), "no") {
				opts.Insecure = true
			}
		case "proxyjump":
			if opts.ProxyJump == "" {
				opts.ProxyJump = normalizeProxyJump(value)
			}
		}
	}

	return opts, nil
}

func defaultSSHConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ssh", "config"), nil
}

func matchesHostPatterns(host string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	lowerHost := strings.ToLower(host)
	matched := false
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		negated := strings.HasPrefix(pattern, "!")
		pattern = strings.TrimPrefix(pattern, "!")
		if pattern == "" {
			continue
		}

		if matchHostPattern(lowerHost, pattern) {
			if negated {
				return false
			}
			matched = true
		}
	}

	return matched
}

func matchHostPattern(host, pattern string) bool {
	lowerPattern := strings.ToLower(pattern)
	if lowerPattern == host {
		return true
	}
	matched, err := path.Match(lowerPattern, host)
	if err != nil {
		return false
	}
	return matched
}

func expandSSHPath(value string) string {
	trimmed := strings.Trim(strings.TrimSpace(value), "\"'")
	if trimmed == "" {
		return ""
	}

	expanded := os.ExpandEnv(trimmed)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	return expanded
}

func normalizeProxyJump(value string) string {
	return strings.Join(parseProxyJumpList(value), ",")
}

func parseProxyJumpList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return nil
	}

	parts := strings.Split(trimmed, ",")
	jumps := make([]string, 0, len(parts))
	for _, part := range parts {
		jump := strings.TrimSpace(part)
		if jump == "" {
			continue
		}
		if strings.EqualFold(jump, "none") {
			return nil
		}
		jumps = append(jumps, jump)
	}
	return jumps
}

// splitTarget parses [user@]host[:port], falling back to defaultUser and port 22.
func splitTarget(target, defaultUser string) (user, host string, port int) {
	user = defaultUser
	host = strings.TrimSpace(target)
	if at := strings.LastIndex(host, "@"); at >= 0 {
		user = host[:at]
		host = host[at+1:]
	}
	port = 22
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end > 0 {
			rest := host[end+1:]
			host = host[1:end]
			if p, err := strconv.Atoi(strings.TrimPrefix(rest, ":")); err == nil {
				port = p
			}
			return user, host, port
		}
	}
	if colon := strings.LastIndex(host, ":"); colon >= 0 && strings.Count(host, ":") == 1 {
		if p, err := strconv.Atoi(host[colon+1:]); err == nil {
			port = p
			host = host[:colon]
		}
	}
	return user, host, port
}
