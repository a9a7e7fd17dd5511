package lume

import (
	"fmt"
	"os"
	"os/user"
	"strings"
)

// defaultSocketPath returns the daemon socket location: the LUME_SOCK
// environment variable when set, otherwise the per-user default.
func defaultSocketPath() (string, error) {
	socketPath := os.Getenv("LUME_SOCK")
	if socketPath != "" {
		if strings.HasPrefix(socketPath, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolving home directory: %w", err)
			}
			socketPath = strings.Replace(socketPath, "~", home, 1)
		}
		return socketPath, nil
	}

	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolving current user: %w", err)
	}
	return fmt.Sprintf("/tmp/lume-%s/lumed.sock", currentUser.Uid), nil
}
