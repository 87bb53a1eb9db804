package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/castnode/castnode/internal/logging"
)

// envPrefix namespaces every environment override.
const envPrefix = "CASTNODE_"

// LoadConfig fills an options struct from its `toml` and `env` tags.
// Precedence: CLI flags > environment > config file. A flag the user set
// explicitly on the command line is never overwritten by the other sources.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()

	pinned := cliPinnedFields(cmd)

	if path := configFilePath(v); path != "" {
		if err := applyFileValues(v, path, pinned); err != nil {
			return err
		}
	}
	applyEnvValues(v, pinned)
	return nil
}

// cliPinnedFields returns the flag names the user changed on the command line.
func cliPinnedFields(cmd *cobra.Command) map[string]bool {
	pinned := make(map[string]bool)
	if cmd == nil {
		return pinned
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			pinned[f.Name] = true
		}
	})
	return pinned
}

// configFilePath reads the conventional Config field off the options struct.
func configFilePath(v reflect.Value) string {
	if field := v.FieldByName("Config"); field.IsValid() && field.Kind() == reflect.String {
		return field.String()
	}
	return ""
}

// applyFileValues overlays a TOML file onto the options struct. A missing
// file is not an error; a malformed one is.
func applyFileValues(v reflect.Value, path string, pinned map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to parse TOML config: %w", err)
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		if pinned[fieldNameToFlag(fieldType.Name)] {
			continue
		}

		tomlPath := fieldType.Tag.Get("toml")
		if tomlPath == "" {
			continue
		}
		if value := getNestedValue(tree, tomlPath); value != nil {
			setFieldValue(v.Field(i), value)
		}
	}
	return nil
}

// applyEnvValues overlays prefixed environment variables onto the options
// struct.
func applyEnvValues(v reflect.Value, pinned map[string]bool) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		if pinned[fieldNameToFlag(fieldType.Name)] {
			continue
		}

		envKey := fieldType.Tag.Get("env")
		if envKey == "" {
			continue
		}
		if envValue := os.Getenv(envPrefix + envKey); envValue != "" {
			setFieldValueFromString(v.Field(i), envValue)
		}
	}
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingScreencast" -> "logging-screencast", "Port" -> "port".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue walks a parsed TOML tree along a dotted path.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue assigns a decoded TOML value to a struct field.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		arr, ok := value.([]any)
		if !ok {
			return
		}
		slice := make([]string, len(arr))
		for i, v := range arr {
			if s, strOk := v.(string); strOk {
				slice[i] = s
			}
		}
		field.Set(reflect.ValueOf(slice))
	}
}

// setFieldValueFromString assigns an environment variable string to a
// struct field, splitting on commas for string slices.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(value, ",")
		slice := make([]string, len(parts))
		for i, part := range parts {
			slice[i] = strings.TrimSpace(part)
		}
		field.Set(reflect.ValueOf(slice))
	}
}

// LoadLoggingConfig reads the [logging] table of a config file into a
// logging.Config. Any key other than level and format names a module whose
// level it sets. Missing or unreadable files yield the defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}

	return cfg
}
