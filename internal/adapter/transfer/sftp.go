package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig describes the remote drop directory.
type SFTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	KeyPath    string // preferred over Password when set
	RemotePath string
	// KnownHostsPath enables host key verification. When empty any host key
	// is accepted.
	KnownHostsPath string
	Timeout        time.Duration
}

// SFTP downloads every regular file in the remote directory.
type SFTP struct {
	cfg    SFTPConfig
	logger *slog.Logger
}

func NewSFTP(cfg SFTPConfig, logger *slog.Logger) *SFTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SFTP{cfg: cfg, logger: logger.With("component", "sftp_transfer", "host", cfg.Host)}
}

// Fetch implements domain.Fetcher.
func (s *SFTP) Fetch(ctx context.Context, stagingDir string) ([]string, error) {
	clientCfg, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("open sftp session: %w", err)
	}
	defer client.Close()

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	fetched, err := loadManifest(stagingDir)
	if err != nil {
		return nil, err
	}

	entries, err := client.ReadDir(s.cfg.RemotePath)
	if err != nil {
		return nil, fmt.Errorf("list remote path %s: %w", s.cfg.RemotePath, err)
	}

	var staged []string
	for _, info := range entries {
		if !info.Mode().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return staged, err
		}

		if fetched.seen(info.Name(), info.Size(), info.ModTime()) {
			continue
		}

		remote := path.Join(s.cfg.RemotePath, info.Name())
		f, err := client.Open(remote)
		if err != nil {
			return staged, fmt.Errorf("open remote %s: %w", remote, err)
		}
		dst, err := stage(stagingDir, info.Name(), f)
		f.Close()
		if err != nil {
			return staged, err
		}
		if err := fetched.record(info.Name(), info.Size(), info.ModTime()); err != nil {
			return staged, err
		}
		s.logger.Info("Downloaded staged file", "remote", remote, "local", dst, "bytes", info.Size())
		staged = append(staged, dst)
	}
	return staged, nil
}

func (s *SFTP) clientConfig() (*ssh.ClientConfig, error) {
	var auth ssh.AuthMethod
	if s.cfg.KeyPath != "" {
		pem, err := os.ReadFile(s.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = ssh.PublicKeys(signer)
		s.logger.Info("Connecting with private key", "key_path", s.cfg.KeyPath)
	} else {
		auth = ssh.Password(s.cfg.Password)
		s.logger.Info("Connecting with password")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if s.cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(s.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	}

	return &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKey,
		Timeout:         s.cfg.Timeout,
	}, nil
}
