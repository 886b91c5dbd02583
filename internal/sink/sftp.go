package sink

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"

	"github.com/yourusername/safety-backup-engine/internal/config"
)

// SFTPSink uploads artifacts to a remote host over SFTP. It dials per
// delivery so a dead connection cannot go stale between scheduled runs.
type SFTPSink struct {
	cfg config.SinkConfig
}

// NewSFTPSink creates an SFTP sink.
func NewSFTPSink(cfg config.SinkConfig) *SFTPSink {
	return &SFTPSink{cfg: cfg}
}

func (fs *SFTPSink) ID() string    { return fs.cfg.ID }
func (fs *SFTPSink) Type() string  { return "ftp" }
func (fs *SFTPSink) Priority() int { return fs.cfg.Priority }

func (fs *SFTPSink) connect() (*xssh.Client, *sftp.Client, error) {
	hostKey, err := hostKeyCallback(fs.cfg.KnownHostsPath, fs.cfg.TrustOnFirstUse)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &xssh.ClientConfig{
		User:            fs.cfg.Username,
		HostKeyCallback: hostKey,
		Timeout:         30 * time.Second,
	}

	if fs.cfg.KeyPath != "" {
		keyData, err := os.ReadFile(fs.cfg.KeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read SSH key: %w", err)
		}

		signer, err := xssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}

		sshConfig.Auth = []xssh.AuthMethod{xssh.PublicKeys(signer)}
	} else if fs.cfg.Password != "" {
		sshConfig.Auth = []xssh.AuthMethod{xssh.Password(fs.cfg.Password)}
	} else {
		return nil, nil, fmt.Errorf("no authentication method provided for sink %s", fs.cfg.ID)
	}

	port := fs.cfg.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", fs.cfg.Host, port)
	sshClient, err := xssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
		sftp.MaxConcurrentRequestsPerFile(64),
	)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	return sshClient, sftpClient, nil
}

// Deliver uploads the artifact file to the remote directory.
func (fs *SFTPSink) Deliver(ctx context.Context, sourcePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sshClient, sftpClient, err := fs.connect()
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(fs.cfg.Path); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}

	filename := filepath.Base(sourcePath)
	destPath := path.Join(fs.cfg.Path, filename)
	log.Printf("[SFTPSink] Uploading %s to %s (%d bytes)", filename, destPath, info.Size())

	dest, err := sftpClient.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer dest.Close()

	written, err := io.Copy(dest, src)
	if err != nil {
		sftpClient.Remove(destPath) // Cleanup on error
		return fmt.Errorf("failed to write remote file: %w", err)
	}

	if written != info.Size() {
		sftpClient.Remove(destPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", info.Size(), written)
	}

	return nil
}

// Delete removes an artifact from the remote directory, tolerating
// absence.
func (fs *SFTPSink) Delete(ctx context.Context, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sshClient, sftpClient, err := fs.connect()
	if err != nil {
		return err
	}
	defer sshClient.Close()
	defer sftpClient.Close()

	destPath := path.Join(fs.cfg.Path, filename)
	if err := sftpClient.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete remote file: %w", err)
	}

	return nil
}
