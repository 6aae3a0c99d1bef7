package device

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Compile-time interface check.
var _ Channel = (*SFTPChannel)(nil)

// SFTPOpts configures the SSH connection to a device.
type SFTPOpts struct {
	Host     string
	User     string // empty = current user
	Port     int    // 0 = default (22)
	KeyFile  string // override key file path; empty = try defaults
	Password string // for non-interactive; empty = skip password auth
}

// SFTPChannel is a Channel over an SSH/SFTP session, for devices that
// expose their filesystem through an SSH server instead of a native file
// service. Metadata is synthesized from stat results using the same
// key/value vocabulary the native protocol reports.
type SFTPChannel struct {
	client *sftp.Client
	ssh    *ssh.Client
}

// DialSFTP establishes the SSH session and opens an SFTP subsystem on it.
//
// Auth methods are tried in order:
//  1. SSH agent (if SSH_AUTH_SOCK is set)
//  2. Key files (~/.ssh/id_ed25519, id_ecdsa, id_rsa) or SFTPOpts.KeyFile
//  3. Password (if SFTPOpts.Password is set)
func DialSFTP(opts SFTPOpts) (*SFTPChannel, error) {
	userName := opts.User
	if userName == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("determine current user: %w", err)
		}
		userName = u.Username
	}

	port := opts.Port
	if port == 0 {
		port = 22
	}

	authMethods := buildAuthMethods(opts)
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no SSH auth methods available (set SSH_AUTH_SOCK, provide a key, or password)")
	}

	hostKeyCallback, err := defaultHostKeyCallback()
	if err != nil {
		// Fall back to insecure if known_hosts can't be loaded.
		// This matches the behavior of most CLI tools on first connection.
		//nolint:gosec // fallback for systems without known_hosts
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User:            userName,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(port))
	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("sftp client: %w", err)
	}

	return &SFTPChannel{client: sftpClient, ssh: sshClient}, nil
}

// ReadProperty always reports absence: lockdown properties live behind the
// device's pairing session, which an SSH login does not carry.
func (c *SFTPChannel) ReadProperty(_, _ string) (string, bool) {
	return "", false
}

func (c *SFTPChannel) ListDirectory(path string) ([]string, error) {
	infos, err := c.client.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("sftp readdir %s: %w", path, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (c *SFTPChannel) GetMetadata(path, key string) (string, bool) {
	info, err := c.client.Lstat(path)
	if err != nil {
		return "", false
	}
	switch key {
	case MetaFormat:
		return formatToken(info.Mode()), true
	case MetaSize:
		return strconv.FormatInt(info.Size(), 10), true
	case MetaModTime:
		return strconv.FormatInt(info.ModTime().Unix(), 10), true
	default:
		return "", false
	}
}

func (c *SFTPChannel) Exists(path string) bool {
	_, err := c.client.Lstat(path)
	return err == nil
}

func (c *SFTPChannel) OpenRead(path string) (io.ReadCloser, error) {
	return c.client.Open(path)
}

func (c *SFTPChannel) OpenWrite(path string) (io.WriteCloser, error) {
	return c.client.Create(path)
}

func (c *SFTPChannel) Close() error {
	err := c.client.Close()
	if sshErr := c.ssh.Close(); sshErr != nil && err == nil {
		err = sshErr
	}
	return err
}

func formatToken(mode os.FileMode) string {
	switch {
	case mode.IsDir():
		return FormatDirectory
	case mode&os.ModeSymlink != 0:
		return FormatSymlink
	case mode.IsRegular():
		return FormatRegular
	default:
		return ""
	}
}

func buildAuthMethods(opts SFTPOpts) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	// 1. SSH agent.
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentClient := agent.NewClient(conn)
			methods = append(methods, ssh.PublicKeysCallback(agentClient.Signers))
		}
	}

	// 2. Key files.
	if opts.KeyFile != "" {
		if m := keyFileAuth(opts.KeyFile); m != nil {
			methods = append(methods, m)
		}
	} else {
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			home, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			keyPath := filepath.Join(home, ".ssh", name)
			if m := keyFileAuth(keyPath); m != nil {
				methods = append(methods, m)
			}
		}
	}

	// 3. Password.
	if opts.Password != "" {
		methods = append(methods, ssh.Password(opts.Password))
	}

	return methods
}

func keyFileAuth(path string) ssh.AuthMethod {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil
	}
	return ssh.PublicKeys(signer)
}

func defaultHostKeyCallback() (ssh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
}
