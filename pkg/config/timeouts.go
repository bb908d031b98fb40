package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// TimeoutEnvPrefix is the prefix for per-command timeout overrides. The
// command token is uppercased with dots replaced by underscores, e.g.
// UNITY_BRIDGE_TIMEOUT_PLAY_ENTER=45 (integer seconds).
const TimeoutEnvPrefix = "UNITY_BRIDGE_TIMEOUT_"

// defaultTimeoutSeconds mirrors the built-in completion policy table. The
// "default" key applies to commands without an explicit entry.
func defaultTimeoutSeconds() map[string]int {
	return map[string]int{
		"default":           30,
		"play.enter":        30,
		"play.exit":         30,
		"compile.scripts":   30,
		"asset.import":      30,
		"asset.reimportAll": 30,
		"asset.refresh":     60,
		"test.run":          300,
	}
}

// bridgeYAML is the optional <project>/.unityctl/bridge.yaml structure.
type bridgeYAML struct {
	// Timeouts maps command token to integer seconds.
	Timeouts map[string]int `yaml:"timeouts"`
}

// LoadTimeouts resolves the effective per-command timeouts for a project.
// Resolution order, later wins: built-in defaults, bridge.yaml `timeouts`,
// UNITY_BRIDGE_TIMEOUT_* environment variables. Non-positive or unparseable
// values are ignored with a warning.
func LoadTimeouts(projectPath string) map[string]time.Duration {
	seconds := defaultTimeoutSeconds()

	if fromFile := loadTimeoutsFile(projectPath); fromFile != nil {
		if err := mergo.Merge(&seconds, fromFile, mergo.WithOverride); err != nil {
			slog.Warn("Failed to merge bridge.yaml timeouts", "error", err)
		}
	}

	for command, secs := range seconds {
		if override, ok := envTimeout(command); ok {
			seconds[command] = override
		} else if secs <= 0 {
			slog.Warn("Ignoring non-positive timeout", "command", command, "seconds", secs)
			delete(seconds, command)
		}
	}

	resolved := make(map[string]time.Duration, len(seconds))
	for command, secs := range seconds {
		if secs > 0 {
			resolved[command] = time.Duration(secs) * time.Second
		}
	}
	return resolved
}

// loadTimeoutsFile reads the optional bridge.yaml. A missing file is fine;
// a malformed one is reported and skipped.
func loadTimeoutsFile(projectPath string) map[string]int {
	path := filepath.Join(ConfigDir(projectPath), "bridge.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Could not read bridge.yaml", "path", path, "error", err)
		}
		return nil
	}
	var cfg bridgeYAML
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		slog.Warn("Malformed bridge.yaml, using defaults", "path", path, "error", err)
		return nil
	}
	return cfg.Timeouts
}

// envTimeout looks up the environment override for a command token.
func envTimeout(command string) (int, bool) {
	key := TimeoutEnvPrefix + EnvToken(command)
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		slog.Warn("Ignoring invalid timeout override", "env", key, "value", raw)
		return 0, false
	}
	return secs, true
}

// EnvToken converts a command token to its environment variable form:
// uppercased with dots replaced by underscores.
func EnvToken(command string) string {
	return strings.ToUpper(strings.ReplaceAll(command, ".", "_"))
}
