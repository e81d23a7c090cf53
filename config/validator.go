package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their mapstructure key so errors read
// like the YAML a user wrote: "server.port", not "Config.Server.Port".
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ConfigError is one invalid setting.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found in one pass.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, "configuration validation failed:")
	for _, ce := range e {
		lines = append(lines, "  - "+ce.Error())
	}
	return strings.Join(lines, "\n")
}

// ValidateWithDetails checks struct tags, then the rules that span
// sections. It returns ValidationErrors or nil.
func ValidateWithDetails(cfg *Config) error {
	var out ValidationErrors

	if err := validate.Struct(cfg); err != nil {
		var fes validator.ValidationErrors
		if !errors.As(err, &fes) {
			return err
		}
		for _, fe := range fes {
			out = append(out, ConfigError{
				Field:   strings.TrimPrefix(fe.Namespace(), "Config."),
				Message: describe(fe),
				Value:   fe.Value(),
			})
		}
	}

	out = append(out, crossFieldErrors(cfg)...)
	if len(out) == 0 {
		return nil
	}
	return out
}

type rule struct {
	broken bool
	field  string
	msg    string
	value  interface{}
}

func crossFieldErrors(cfg *Config) ValidationErrors {
	s := cfg.Storage
	rules := []rule{
		{cfg.App.Environment != "development" && cfg.Auth.SecretKey == "",
			"auth.secret_key", "required outside development", ""},
		{s.Type == "badger" && s.Badger.Path == "",
			"storage.badger.path", "required for the badger backend", ""},
		{s.Type == "sqlite" && s.SQLite.Path == "",
			"storage.sqlite.path", "required for the sqlite backend", ""},
		{s.Type == "postgres" && s.Postgres.DSN == "",
			"storage.postgres.dsn", "required for the postgres backend", ""},
		{cfg.Cache.Enabled && cfg.Cache.Type == "redis" && cfg.Cache.Redis.Address == "",
			"cache.redis.address", "required for the redis cache", ""},
		{cfg.Summarizer.Enabled && cfg.Summarizer.APIKey == "",
			"summarizer.api_key", "required when the summarizer is enabled", ""},
		{cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port,
			"metrics.port", "must differ from server.port", cfg.Metrics.Port},
	}

	var errs ValidationErrors
	for _, r := range rules {
		if r.broken {
			errs = append(errs, ConfigError{Field: r.field, Message: r.msg, Value: r.value})
		}
	}
	return errs
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	}
	return "failed validation: " + fe.Tag()
}
