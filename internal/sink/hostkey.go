package sink

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// hostKeyCallback builds the host key verification used by the SFTP
// sink. An empty known_hosts path disables verification entirely; with
// a path set, known hosts are checked against the file, unknown hosts
// are appended when trust-on-first-use is enabled, and a changed key is
// always rejected.
func hostKeyCallback(knownHostsPath string, trustOnFirstUse bool) (xssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsPath) == "" {
		return xssh.InsecureIgnoreHostKey(), nil
	}

	if err := ensureKnownHostsFile(knownHostsPath); err != nil {
		return nil, err
	}

	baseCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read known_hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key xssh.PublicKey) error {
		err := baseCallback(hostname, remote, key)
		if err == nil {
			return nil
		}

		keyErr, ok := err.(*knownhosts.KeyError)
		if !ok {
			return err
		}

		// keyErr.Want is empty for a host with no recorded key at all.
		if len(keyErr.Want) == 0 {
			if !trustOnFirstUse {
				return fmt.Errorf("unknown SSH host key for %s", hostname)
			}

			if err := appendKnownHost(knownHostsPath, hostname, remote, key); err != nil {
				return err
			}

			log.Printf("[SFTPSink] Trusted new host key for %s (%s)",
				hostname, xssh.FingerprintSHA256(key))
			return nil
		}

		log.Printf("[SFTPSink] Rejected changed host key for %s (%s)",
			hostname, xssh.FingerprintSHA256(key))
		return fmt.Errorf("SSH host key changed for %s", hostname)
	}, nil
}

func ensureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create known_hosts file: %w", err)
	}
	return file.Close()
}

func appendKnownHost(path, hostname string, remote net.Addr, key xssh.PublicKey) error {
	addresses := []string{hostname}
	if remote != nil && remote.String() != hostname {
		addresses = append(addresses, remote.String())
	}

	line := knownhosts.Line(addresses, key)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write known_hosts entry: %w", err)
	}
	return nil
}
