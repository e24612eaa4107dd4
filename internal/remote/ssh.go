// Package remote runs the etcd status inspection on the management node over SSH.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/balaji-balu/etcdcheck/internal/config"
	"github.com/balaji-balu/etcdcheck/internal/logger"
)

// ConnectTimeout bounds the TCP dial and SSH handshake. Command execution is not bounded.
const ConnectTimeout = 5 * time.Second

var defaultKeyFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// FetchError is returned when the remote status cannot be obtained.
type FetchError struct {
	Host string
	Op   string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch from %s failed (%s): %v", e.Host, e.Op, e.Err)
	}
	return fmt.Sprintf("fetch from %s failed (%s)", e.Host, e.Op)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrEmptyOutput is wrapped in a FetchError when the command printed nothing.
var ErrEmptyOutput = errors.New("remote command returned empty output")

// Runner executes a single command on a host and returns its stdout.
type Runner interface {
	Run(ctx context.Context, cmd string) ([]byte, error)
}

// Fetcher retrieves the raw `etcdctl endpoint status` JSON.
type Fetcher struct {
	host      string
	container string
	runner    Runner
	log       *logger.Logger
}

// NewFetcher builds a Fetcher for cfg that runs commands through runner.
func NewFetcher(cfg config.Config, runner Runner, log *logger.Logger) *Fetcher {
	return &Fetcher{
		host:      cfg.SSH.Host,
		container: cfg.Container,
		runner:    runner,
		log:       log,
	}
}

// StatusCommand is the fixed inspection command for a container name filter.
// The filter is validated by config and single-quoted here; nothing else is interpolated.
func StatusCommand(container string) string {
	return fmt.Sprintf(
		"docker exec $(docker ps -q --filter name=%s | head -n 1) etcdctl endpoint status --cluster --write-out=json",
		shellQuote(container),
	)
}

// Fetch runs the inspection command once. There is no retry.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	cmd := StatusCommand(f.container)
	f.log.Debug("running remote status command", zap.String("host", f.host), zap.String("command", cmd))

	start := time.Now()
	out, err := f.runner.Run(ctx, cmd)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &FetchError{Host: f.host, Op: "exec", Err: err}
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, &FetchError{Host: f.host, Op: "exec", Err: ErrEmptyOutput}
	}

	f.log.Info("remote status fetched",
		zap.String("host", f.host),
		zap.Int("bytes", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// SSHRunner is a Runner backed by golang.org/x/crypto/ssh.
type SSHRunner struct {
	cfg config.SSHConfig
	log *logger.Logger
}

func NewSSHRunner(cfg config.SSHConfig, log *logger.Logger) *SSHRunner {
	return &SSHRunner{cfg: cfg, log: log}
}

func (r *SSHRunner) Run(ctx context.Context, cmd string) ([]byte, error) {
	auth, closeAuth, err := r.authMethods()
	if err != nil {
		return nil, &FetchError{Host: r.cfg.Host, Op: "auth", Err: err}
	}
	defer closeAuth()

	clientCfg := &ssh.ClientConfig{
		User: r.cfg.User,
		Auth: auth,
		// Host keys are not verified: the check targets ephemeral management
		// nodes whose keys are rotated with the host.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         ConnectTimeout,
	}

	client, err := dial(ctx, r.cfg.Addr(), clientCfg)
	if err != nil {
		return nil, &FetchError{Host: r.cfg.Host, Op: "connect", Err: err}
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, &FetchError{Host: r.cfg.Host, Op: "session", Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Close()
		case <-done:
		}
	}()

	if err := session.Run(cmd); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, &FetchError{Host: r.cfg.Host, Op: "exec", Err: err}
	}
	return stdout.Bytes(), nil
}

func dial(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(ConnectTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// authMethods collects ssh-agent signers and private key files. Keys that need
// a passphrase are skipped since the check never prompts.
func (r *SSHRunner) authMethods() ([]ssh.AuthMethod, func(), error) {
	var (
		methods []ssh.AuthMethod
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.DialTimeout("unix", sock, ConnectTimeout)
		if err != nil {
			r.log.Warn("ssh-agent unavailable", zap.String("socket", sock), zap.Error(err))
		} else {
			closers = append(closers, func() { conn.Close() })
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	var signers []ssh.Signer
	for _, path := range r.keyFiles() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			r.log.Warn("skipping ssh key", zap.String("path", path), zap.Error(err))
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if len(methods) == 0 {
		closeAll()
		return nil, func() {}, errors.New("no ssh-agent and no usable private key")
	}
	return methods, closeAll, nil
}

func (r *SSHRunner) keyFiles() []string {
	if r.cfg.KeyPath != "" {
		return []string{r.cfg.KeyPath}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	paths := make([]string, 0, len(defaultKeyFiles))
	for _, name := range defaultKeyFiles {
		paths = append(paths, filepath.Join(home, ".ssh", name))
	}
	return paths
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
