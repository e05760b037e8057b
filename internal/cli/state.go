package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hiremind/authsync/internal/identity"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// defaultStatePath returns ~/.config/hiremind/session-<mode>.json.
func defaultStatePath(mode string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "hiremind", fmt.Sprintf("session-%s.json", mode)), nil
}

// loadProviderState restores the provider's signed-in session. A missing
// file means nobody is signed in.
func loadProviderState(provider identity.Provider, path string) error {
	p, ok := provider.(identity.Persistable)
	if !ok {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read session: %w", err)
	}
	if err := p.ImportState(data); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("ignoring unreadable session file")
	}
	return nil
}

func saveProviderState(provider identity.Provider, path string) error {
	p, ok := provider.(identity.Persistable)
	if !ok || path == "" {
		return nil
	}
	data, err := p.ExportState()
	if err != nil {
		return fmt.Errorf("failed to export session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// Write with restricted permissions (read/write for owner only)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func promptLine(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo from a terminal and falls back to a
// plain line otherwise.
func promptPassword(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(in, out, label)
	}
	fmt.Fprint(out, label)
	passwordBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(out) // newline after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(passwordBytes), nil
}
