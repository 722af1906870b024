package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS: ~/Library/Application Support/wordfill/
//   - Linux: $XDG_CONFIG_HOME/wordfill/ or ~/.config/wordfill/
func PlatformConfigDir() string {
	if runtime.GOOS == "darwin" {
		return filepath.Join(homeDir(), "Library", "Application Support", "wordfill")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wordfill")
	}
	return filepath.Join(homeDir(), ".config", "wordfill")
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS: ~/Library/Logs/wordfill/
//   - Linux: $XDG_STATE_HOME/wordfill/ or ~/.local/state/wordfill/
func PlatformLogDir() string {
	if runtime.GOOS == "darwin" {
		return filepath.Join(homeDir(), "Library", "Logs", "wordfill")
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "wordfill")
	}
	return filepath.Join(homeDir(), ".local", "state", "wordfill")
}

// PlatformRuntimeDir returns the directory for the control socket.
//
// Platform paths:
//   - macOS: /tmp/wordfill-$UID/
//   - Linux: $XDG_RUNTIME_DIR/wordfill/ or /tmp/wordfill-$UID/
func PlatformRuntimeDir() string {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
			return filepath.Join(xdg, "wordfill")
		}
	}
	return filepath.Join(os.TempDir(), "wordfill-"+strconv.Itoa(os.Getuid()))
}

// DefaultSocketPath returns the default control socket path.
func DefaultSocketPath() string {
	return filepath.Join(PlatformRuntimeDir(), "wordfill.sock")
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// defaultProviders prefers the platform spell checker where one exists.
func defaultProviders() []string {
	if runtime.GOOS == "darwin" {
		return []string{"system", "lexicon"}
	}
	return []string{"lexicon"}
}

// DefaultWordLists are probed when suggest.word_list is empty.
func DefaultWordLists() []string {
	return []string{
		"/usr/share/dict/words",
		"/usr/share/dict/web2",
		"/usr/dict/words",
	}
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the working directory, then the config
// directory, for config.{toml,json,yaml,yml}.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
