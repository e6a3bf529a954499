// Package setup registers the MCP server with desktop MCP clients that read
// an "mcpServers" JSON configuration file.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/tox-signal-mcp-server/internal/config"
)

const (
	// ServerKey is the entry name written into the client configuration.
	ServerKey = "tox-signal"

	dataDirEnv   = "TOXSIG_DATA_DIR"
	studyURLEnv  = "TOXSIG_STUDY_DATA_URL"
	serversField = "mcpServers"
)

// ServerEntry is one server in the client configuration.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ClientConfig is the client configuration file. Top-level keys other than
// mcpServers are preserved untouched.
type ClientConfig struct {
	MCPServers map[string]ServerEntry
	other      map[string]json.RawMessage
}

// Options controls Register.
type Options struct {
	ServerType   string // "lite" or "full"
	BinaryPath   string
	DataDir      string
	StudyDataURL string
}

// DefaultClientConfigPath returns the per-OS location of the desktop client
// configuration.
func DefaultClientConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClientConfig reads the configuration at path. A missing file yields an
// empty configuration.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{
		MCPServers: make(map[string]ServerEntry),
		other:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.other); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.other[serversField]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", serversField, err)
		}
		delete(cfg.other, serversField)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ServerEntry)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating its directory.
func (c *ClientConfig) Save(path string) error {
	out := make(map[string]interface{}, len(c.other)+1)
	for k, v := range c.other {
		out[k] = v
	}
	out[serversField] = c.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the server entry in the configuration at path.
func Register(path string, opts Options) (ServerEntry, error) {
	cfg, err := LoadClientConfig(path)
	if err != nil {
		return ServerEntry{}, err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		binaryPath, err = findBinary(opts.ServerType)
		if err != nil {
			return ServerEntry{}, fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := ServerEntry{Command: binaryPath, Env: make(map[string]string)}
	if opts.DataDir != "" {
		entry.Env[dataDirEnv] = opts.DataDir
	}
	if opts.StudyDataURL != "" {
		entry.Env[studyURLEnv] = opts.StudyDataURL
	}
	cfg.MCPServers[ServerKey] = entry

	if err := cfg.Save(path); err != nil {
		return ServerEntry{}, err
	}
	return entry, nil
}

func findBinary(serverType string) (string, error) {
	binaryName := "mcp-server-lite"
	if serverType == "full" {
		binaryName = "mcp-server"
	}

	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./" + binaryName,
		"./build/" + binaryName,
		filepath.Join(home, ".local", "bin", binaryName),
		"/usr/local/bin/" + binaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary '%s' not found in common locations", binaryName)
}

// Status describes the registration found in a client configuration.
type Status struct {
	ConfigPath   string   `json:"config_path"`
	Registered   bool     `json:"registered"`
	BinaryPath   string   `json:"binary_path,omitempty"`
	BinaryFound  bool     `json:"binary_found"`
	DataDir      string   `json:"data_dir"`
	DataDirFound bool     `json:"data_dir_found"`
	OverridesDB  bool     `json:"overrides_db"`
	Issues       []string `json:"issues,omitempty"`
}

// GetStatus inspects the configuration at path and the directories it names.
func GetStatus(path string) (*Status, error) {
	status := &Status{ConfigPath: path}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		return nil, err
	}

	if entry, ok := cfg.MCPServers[ServerKey]; ok {
		status.Registered = true
		status.BinaryPath = entry.Command
		status.DataDir = entry.Env[dataDirEnv]
		if info, err := os.Stat(entry.Command); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
		} else if info.Mode()&0111 == 0 {
			status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
		} else {
			status.BinaryFound = true
		}
	} else {
		status.Issues = append(status.Issues, fmt.Sprintf("%s is not registered", ServerKey))
	}

	if status.DataDir == "" {
		status.DataDir = config.DefaultLiteConfig().DataDir
	}
	if _, err := os.Stat(status.DataDir); err == nil {
		status.DataDirFound = true
		lite := config.LiteConfig{DataDir: status.DataDir}
		if _, err := os.Stat(lite.OverridesDBPath()); err == nil {
			status.OverridesDB = true
		}
	}

	return status, nil
}

// Ready reports whether the registration is usable. A missing data
// directory is created on first run and does not count.
func (s *Status) Ready() bool {
	return s.Registered && s.BinaryFound
}
