package ssh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrHostKeyRejected is returned when an unknown host key is not accepted.
var ErrHostKeyRejected = errors.New("host key rejected")

// HostKeyPrompt decides whether to trust a host key not yet in known_hosts.
type HostKeyPrompt func(hostname string, remote net.Addr, key xssh.PublicKey) (bool, error)

// TerminalPrompt asks on out and reads a yes/no answer from in.
func TerminalPrompt(in io.Reader, out io.Writer) HostKeyPrompt {
	reader := bufio.NewReader(in)
	return func(hostname string, remote net.Addr, key xssh.PublicKey) (bool, error) {
		fmt.Fprintf(out, "The authenticity of host '%s (%s)' can't be established.\n", hostname, remote)
		fmt.Fprintf(out, "%s key fingerprint is %s.\n", key.Type(), xssh.FingerprintSHA256(key))
		fmt.Fprint(out, "Are you sure you want to continue connecting (yes/no)? ")
		answer, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "yes" || answer == "y", nil
	}
}

// buildKnownHostsCallback verifies host keys against the given files. Keys
// for unknown hosts are offered to prompt and, if accepted, appended to
// writePath. A key that conflicts with a recorded one is always rejected.
func buildKnownHostsCallback(paths []string, writePath string, prompt HostKeyPrompt, logger zerolog.Logger) (xssh.HostKeyCallback, error) {
	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat known_hosts %s: %w", path, err)
		}
		existing = append(existing, path)
	}

	var verify xssh.HostKeyCallback
	if len(existing) > 0 {
		callback, err := knownhosts.New(existing...)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		verify = callback
	}

	var mu sync.Mutex
	return func(hostname string, remote net.Addr, key xssh.PublicKey) error {
		if verify != nil {
			err := verify(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if !errors.As(err, &keyErr) {
				return err
			}
			if len(keyErr.Want) > 0 {
				return fmt.Errorf("host key for %s does not match known_hosts: %w", hostname, err)
			}
		}

		if prompt == nil {
			return fmt.Errorf("%w: %s is not in known_hosts", ErrHostKeyRejected, hostname)
		}
		accepted, err := prompt(hostname, remote, key)
		if err != nil {
			return err
		}
		if !accepted {
			return fmt.Errorf("%w: %s", ErrHostKeyRejected, hostname)
		}

		if writePath != "" {
			mu.Lock()
			defer mu.Unlock()
			if err := appendKnownHost(writePath, hostname, key); err != nil {
				logger.Warn().Err(err).Str("host", hostname).Msg("failed to record host key")
			} else {
				logger.Info().Str("host", hostname).Str("path", writePath).Msg("added host key to known_hosts")
			}
		}
		return nil
	}, nil
}

func appendKnownHost(path, hostname string, key xssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	_, err = fmt.Fprintln(file, line)
	return err
}

func defaultKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}
