package git

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"mercator-hq/compass/pkg/config"
)

// tokenUser is the basic-auth user sent with an access token. Git hosts
// ignore it but reject an empty one.
const tokenUser = "git"

// checkAuth rejects an auth configuration that can never produce
// credentials. Key files are only read by authMethod, so a key that is
// rotated after startup is picked up by the next pull.
func checkAuth(cfg config.GitAuthConfig) error {
	switch cfg.Type {
	case "", "none":
	case "token":
		if cfg.Token == "" {
			return errors.New("token auth requires a token")
		}
	case "ssh":
		if cfg.SSHKeyPath == "" {
			return errors.New("ssh auth requires ssh_key_path")
		}
	default:
		return fmt.Errorf("unknown auth type %q", cfg.Type)
	}
	return nil
}

// authMethod returns the go-git credentials for cfg, or nil for anonymous
// access.
func authMethod(cfg config.GitAuthConfig) (transport.AuthMethod, error) {
	if err := checkAuth(cfg); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "token":
		return &http.BasicAuth{Username: tokenUser, Password: cfg.Token}, nil
	case "ssh":
		info, err := os.Stat(cfg.SSHKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to access SSH key file: %w", err)
		}
		// Same rule as OpenSSH: private keys must not be group or world readable.
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return nil, fmt.Errorf("SSH key file permissions too open (%o), should be 0600", perm)
		}
		keys, err := ssh.NewPublicKeysFromFile("git", cfg.SSHKeyPath, cfg.SSHKeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key: %w", err)
		}
		return keys, nil
	default:
		return nil, nil
	}
}
