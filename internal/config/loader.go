package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read by LoadEnv.
const EnvPrefix = "TYPEBUS_"

// envMapping maps environment variables to setting paths.
var envMapping = map[string]string{
	"TYPEBUS_LOG_LEVEL":            "log.level",
	"TYPEBUS_LOG_FORMAT":           "log.format",
	"TYPEBUS_POOL_WORKERS":         "pool.workers",
	"TYPEBUS_POOL_QUEUE_SIZE":      "pool.queue_size",
	"TYPEBUS_BUS_DEFAULT_STRATEGY": "bus.default_strategy",
	"TYPEBUS_METRICS_ENABLED":      "metrics.enabled",
	"TYPEBUS_METRICS_ADDR":         "metrics.addr",
	"TYPEBUS_METRICS_PATH":         "metrics.path",
	"TYPEBUS_SCRIPT_PATH":          "script.path",
}

// Load returns the defaults overlaid with the file at path and then with
// the process environment. An empty path or a missing file skips the file
// layer. The result is validated.
func Load(path string) (Config, error) {
	data := make(map[string]any)

	if path != "" {
		fileData, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		data = DeepMerge(data, fileData)
	}
	data = DeepMerge(data, LoadEnv(os.Environ()))

	cfg, err := Decode(data)
	if err != nil {
		if path == "" {
			path = "<env>"
		}
		return Config{}, &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile reads a TOML or YAML file into a settings map. A missing file
// returns nil and no error.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse parses data in the format implied by the extension of name.
func Parse(name string, data []byte) (map[string]any, error) {
	var out map[string]any
	var err error

	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		err = toml.Unmarshal(data, &out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, &ParseError{Path: name, Message: err.Error(), Err: err}
	}
	return out, nil
}

// Decode applies a settings map on top of Default. Unknown settings are an
// error.
func Decode(data map[string]any) (Config, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}

	raw, err := toml.Marshal(data)
	if err != nil {
		return cfg, fmt.Errorf("encoding settings: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// LoadEnv returns the settings set by environ, a list of KEY=value pairs as
// returned by os.Environ. Variables outside the known mapping are ignored.
func LoadEnv(environ []string) map[string]any {
	out := make(map[string]any)
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		path, known := envMapping[name]
		if !known {
			continue
		}
		setByPath(out, path, parseValue(value))
	}
	return out
}

// parseValue converts an environment string to a bool or int where it
// looks like one.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// DeepMerge recursively merges src into dst.
// Values in src override values in dst; maps are merged recursively.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}

	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}
