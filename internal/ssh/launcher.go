package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opencode-ai/e2ecore/internal/driver"
	"github.com/opencode-ai/e2ecore/internal/logging"
	"github.com/rs/zerolog"
	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	defaultPort    = 22
	defaultTimeout = 10 * time.Second
	defaultRows    = 40
	defaultCols    = 120
	terminalType   = "xterm"
)

// Launcher starts commands on a remote host inside an SSH pseudo-terminal.
type Launcher struct {
	Options ConnectionOptions
	// Prompt is asked about unknown host keys; nil rejects them.
	Prompt     HostKeyPrompt
	Rows, Cols int
	// ApplyConfig reads ~/.ssh/config for the host before dialing.
	ApplyConfig bool
}

// NewLauncher returns a launcher for opts that honours ~/.ssh/config.
func NewLauncher(opts ConnectionOptions, prompt HostKeyPrompt) *Launcher {
	return &Launcher{Options: opts, Prompt: prompt, ApplyConfig: true}
}

// Launch dials the host, requests a pty and starts cmd in it.
func (l *Launcher) Launch(ctx context.Context, cmd driver.Command) (driver.Process, error) {
	logger := logging.Component("ssh")

	opts := l.Options
	if l.ApplyConfig {
		resolved, err := ApplySSHConfig(opts)
		if err != nil {
			return nil, fmt.Errorf("read ssh config: %w", err)
		}
		opts = resolved
	}
	if strings.TrimSpace(opts.Host) == "" {
		return nil, errors.New("ssh host is required")
	}
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.User == "" {
		opts.User = currentUser()
	}

	client, jumps, err := l.dial(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	proc := &remoteProcess{client: client, jumps: jumps}

	session, err := client.NewSession()
	if err != nil {
		proc.closeClients()
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	proc.session = session

	rows, cols := l.Rows, l.Cols
	if rows <= 0 {
		rows = defaultRows
	}
	if cols <= 0 {
		cols = defaultCols
	}
	modes := xssh.TerminalModes{
		xssh.ECHO:          1,
		xssh.TTY_OP_ISPEED: 14400,
		xssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(terminalType, rows, cols, modes); err != nil {
		session.Close()
		proc.closeClients()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	proc.stdin, err = session.StdinPipe()
	if err != nil {
		session.Close()
		proc.closeClients()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	proc.stdout, err = session.StdoutPipe()
	if err != nil {
		session.Close()
		proc.closeClients()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	remote := RemoteCommand(cmd)
	if err := session.Start(remote); err != nil {
		session.Close()
		proc.closeClients()
		return nil, fmt.Errorf("start %q: %w", remote, err)
	}

	logger.Debug().Str("host", opts.Host).Int("port", opts.Port).Str("command", remote).Msg("remote command started")
	return proc, nil
}

// dial connects to the target through any jump hosts. The jump clients are
// returned in dial order and must outlive the target client.
func (l *Launcher) dial(ctx context.Context, opts ConnectionOptions, logger zerolog.Logger) (*xssh.Client, []*xssh.Client, error) {
	hostKeyCallback, err := l.hostKeyCallback(opts, logger)
	if err != nil {
		return nil, nil, err
	}
	auth, closeAgent, err := authMethods(opts.KeyPath)
	if err != nil {
		return nil, nil, err
	}
	defer closeAgent()

	config := func(user string) *xssh.ClientConfig {
		return &xssh.ClientConfig{
			User:            user,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         opts.Timeout,
		}
	}

	var jumps []*xssh.Client
	var via *xssh.Client
	for _, jump := range parseProxyJumpList(opts.ProxyJump) {
		user, host, port := splitTarget(jump, opts.User)
		next, err := dialVia(ctx, via, net.JoinHostPort(host, strconv.Itoa(port)), config(user), opts.Timeout)
		if err != nil {
			closeReverse(jumps)
			return nil, nil, fmt.Errorf("dial jump host %s: %w", jump, err)
		}
		logger.Debug().Str("jump", jump).Msg("connected to jump host")
		jumps = append(jumps, next)
		via = next
	}

	target := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	final, err := dialVia(ctx, via, target, config(opts.User), opts.Timeout)
	if err != nil {
		closeReverse(jumps)
		return nil, nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return final, jumps, nil
}

// closeReverse closes clients innermost first.
func closeReverse(clients []*xssh.Client) error {
	var first error
	for i := len(clients) - 1; i >= 0; i-- {
		if err := clients[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// dialVia opens an SSH client to addr, tunnelled through via when it is set.
func dialVia(ctx context.Context, via *xssh.Client, addr string, config *xssh.ClientConfig, timeout time.Duration) (*xssh.Client, error) {
	var conn net.Conn
	var err error
	if via == nil {
		dialer := net.Dialer{Timeout: timeout}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = via.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	clientConn, chans, reqs, err := xssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return xssh.NewClient(clientConn, chans, reqs), nil
}

func (l *Launcher) hostKeyCallback(opts ConnectionOptions, logger zerolog.Logger) (xssh.HostKeyCallback, error) {
	if opts.Insecure {
		logger.Warn().Str("host", opts.Host).Msg("host key verification disabled")
		return xssh.InsecureIgnoreHostKey(), nil
	}
	path := opts.KnownHostsPath
	if path == "" {
		path = defaultKnownHostsPath()
	}
	return buildKnownHostsCallback([]string{path}, path, l.Prompt, logger)
}

// authMethods offers the ssh-agent when available and then the key file, or
// the default identities when no key is configured. The returned func closes
// the agent connection and is safe to call once the handshakes are done.
func authMethods(keyPath string) ([]xssh.AuthMethod, func(), error) {
	methods := make([]xssh.AuthMethod, 0, 2)
	closeAgent := func() {}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, xssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			closeAgent = func() { _ = conn.Close() }
		}
	}

	var signers []xssh.Signer
	if keyPath != "" {
		signer, err := loadSigner(keyPath)
		if err != nil {
			closeAgent()
			return nil, nil, err
		}
		signers = append(signers, signer)
	} else {
		for _, path := range defaultIdentityFiles() {
			if signer, err := loadSigner(path); err == nil {
				signers = append(signers, signer)
			}
		}
	}
	if len(signers) > 0 {
		methods = append(methods, xssh.PublicKeys(signers...))
	}
	return methods, closeAgent, nil
}

func loadSigner(path string) (xssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	signer, err := xssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", path, err)
	}
	return signer, nil
}

func defaultIdentityFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	names := []string{"id_ed25519", "id_ecdsa", "id_rsa"}
	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, filepath.Join(home, ".ssh", name))
	}
	return paths
}

func currentUser() string {
	for _, key := range []string{"USER", "LOGNAME"} {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return "root"
}

var safeShellWord = regexp.MustCompile(`^[A-Za-z0-9_./:=@%+,-]+$`)

// RemoteCommand renders cmd as a single POSIX shell command line.
func RemoteCommand(cmd driver.Command) string {
	var b strings.Builder
	if cmd.Dir != "" {
		b.WriteString("cd ")
		b.WriteString(shellQuote(cmd.Dir))
		b.WriteString(" && ")
	}
	if len(cmd.Env) > 0 {
		b.WriteString("env")
		for _, kv := range cmd.Env {
			b.WriteString(" ")
			b.WriteString(shellQuote(kv))
		}
		b.WriteString(" ")
	} else {
		b.WriteString("exec ")
	}
	b.WriteString(shellQuote(cmd.Path))
	for _, arg := range cmd.Args {
		b.WriteString(" ")
		b.WriteString(shellQuote(arg))
	}
	return b.String()
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	if safeShellWord.MatchString(value) {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// remoteProcess adapts an SSH session to driver.Process.
type remoteProcess struct {
	client  *xssh.Client
	jumps   []*xssh.Client
	session *xssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	closeOnce sync.Once
	closeErr  error
}

func (p *remoteProcess) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *remoteProcess) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Wait returns the remote exit status. A session that ends without one,
// such as after a kill, reports -1.
func (p *remoteProcess) Wait() (int, error) {
	err := p.session.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *xssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	var missing *xssh.ExitMissingError
	if errors.As(err, &missing) {
		return -1, nil
	}
	return -1, err
}

// Kill signals the remote process and tears the connection down.
func (p *remoteProcess) Kill() error {
	_ = p.session.Signal(xssh.SIGKILL)
	return p.Close()
}

func (p *remoteProcess) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		_ = p.session.Close()
		p.closeErr = p.closeClients()
	})
	return p.closeErr
}

// closeClients closes the target client and then the jump chain.
func (p *remoteProcess) closeClients() error {
	err := p.client.Close()
	if jumpErr := closeReverse(p.jumps); err == nil {
		err = jumpErr
	}
	return err
}
