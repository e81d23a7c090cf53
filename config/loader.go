package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "VED_"
	// EnvNestingSeparator separates nested keys in environment variable
	// names: VED_AUTH__SECRET_KEY sets auth.secret_key.
	EnvNestingSeparator = "__"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// DefaultSearchPaths are tried in order when Load is given no path.
var DefaultSearchPaths = []string{
	"ved.yaml",
	"config.yaml",
	"config.yml",
	"config.json",
	"configs/config.yaml",
	"/etc/ved/config.yaml",
}

// layer is one configuration source. Later layers win.
type layer struct {
	name string
	load func(k *koanf.Koanf) error
}

// Loader assembles a Config from defaults, a file, the environment and
// explicit overrides. It holds no state between calls.
type Loader struct {
	searchPaths []string
}

// NewLoader creates a loader that searches DefaultSearchPaths.
func NewLoader() *Loader {
	return &Loader{searchPaths: DefaultSearchPaths}
}

// Load builds and validates a Config. Precedence, lowest first: defaults,
// file, legacy env vars, VED_ env vars, overrides.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(Delimiter)

	layers := []layer{
		{"defaults", loadDefaults},
		{"config file", func(k *koanf.Koanf) error { return l.loadConfigFile(k, configPath) }},
		{"legacy env vars", loadLegacyEnv},
		{"env vars", loadEnv},
		{"overrides", func(k *koanf.Koanf) error {
			if len(overrides) == 0 {
				return nil
			}
			return k.Load(confmap.Provider(overrides, Delimiter), nil)
		}},
	}
	for _, ly := range layers {
		if err := ly.load(k); err != nil {
			return nil, fmt.Errorf("config: %s: %w", ly.name, err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDefaults loads DefaultConfig as flat keys so that later layers merge
// into nested sections instead of replacing them.
func loadDefaults(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(flatten(DefaultConfig(), ""), Delimiter), nil)
}

func (l *Loader) loadConfigFile(k *koanf.Koanf, path string) error {
	if path != "" {
		return loadFile(k, path)
	}
	for _, candidate := range l.searchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return loadFile(k, candidate)
		}
	}
	return nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported format %q", ext)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return k.Load(file.Provider(path), parser)
}

func loadEnv(k *koanf.Koanf) error {
	return k.Load(env.Provider(EnvPrefix, Delimiter, envKey), nil)
}

// envKey maps VED_CACHE__REDIS__KEY_PREFIX to cache.redis.key_prefix.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, EnvNestingSeparator, Delimiter)
}

// loadLegacyEnv maps the unprefixed variables older deployments set
// (DATABASE_URL, SECRET_KEY, ALGORITHM, ACCESS_TOKEN_EXPIRE_MINUTES).
func loadLegacyEnv(k *koanf.Koanf) error {
	values := make(map[string]interface{})

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		switch {
		case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
			values["storage.type"] = "postgres"
			values["storage.postgres.dsn"] = dsn
		case strings.HasPrefix(dsn, "sqlite://"):
			values["storage.type"] = "sqlite"
			values["storage.sqlite.path"] = strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite://"), "/")
		}
	}
	if secret := os.Getenv("SECRET_KEY"); secret != "" {
		values["auth.secret_key"] = secret
	}
	if alg := os.Getenv("ALGORITHM"); alg != "" {
		values["auth.algorithm"] = alg
	}
	if minutes := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); minutes != "" {
		n, err := strconv.Atoi(minutes)
		if err != nil {
			return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
		}
		values["auth.access_token_ttl"] = time.Duration(n) * time.Minute
	}

	if len(values) == 0 {
		return nil
	}
	return k.Load(confmap.Provider(values, Delimiter), nil)
}

// flatten walks a struct by its mapstructure tags and returns dot-keyed
// leaf values. Nil pointers and nil maps are skipped.
func flatten(v interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{})
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return out
	}

	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		f := rt.Field(i)
		tag := f.Tag.Get("mapstructure")
		if !f.IsExported() || tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + Delimiter + tag
		}

		fv := rv.Field(i)
		switch fv.Kind() {
		case reflect.Ptr:
			if fv.IsNil() {
				continue
			}
			for k, v := range flatten(fv.Interface(), key) {
				out[k] = v
			}
		case reflect.Struct:
			for k, v := range flatten(fv.Interface(), key) {
				out[k] = v
			}
		case reflect.Map:
			if !fv.IsNil() {
				out[key] = fv.Interface()
			}
		case reflect.Slice:
			items := make([]interface{}, fv.Len())
			for j := range items {
				items[j] = fv.Index(j).Interface()
			}
			out[key] = items
		default:
			out[key] = fv.Interface()
		}
	}
	return out
}

// Load is shorthand for NewLoader().Load.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}
