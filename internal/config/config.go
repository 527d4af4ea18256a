// Package config loads the process configuration from etc/main.toml and the environment.
package config

import (
	"bytes"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const redacted = "*****"

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{ //nolint:gochecknoglobals
	"auth0.clientid":             "AUTH0_CLIENT_ID",
	"auth0.clientsecret":         "AUTH0_CLIENT_SECRET",
	"auth0.apibaseurl":           "AUTH0_API_BASE_URL",
	"auth0.accesstokenurl":       "AUTH0_ACCESS_TOKEN_URL",
	"auth0.authorizeurl":         "AUTH0_AUTHORIZE_URL",
	"webserver.secretkey":        "SECRET_KEY",
	"webserver.session.storeurl": "SESSION_STORE_URL",
	"db.url":                     "DATABASE_URL",
	"webserver.port":             "PORT",
	"webserver.url":              "BASE_URL",
	"log.loglevel":               "LOG_LEVEL",
	"devmode":                    "DEV_MODE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("title", "monolith-auth")
	v.SetDefault("webserver.port", 8080)
	v.SetDefault("webserver.shutdowntime", 5)
	v.SetDefault("webserver.metrics", true)
	v.SetDefault("webserver.session.expirytime", 24*time.Hour)
	v.SetDefault("webserver.session.table", "sessions")
	v.SetDefault("auth0.scopes", []string{"openid", "profile", "email"})
	v.SetDefault("auth0.timeout", 10*time.Second)
	v.SetDefault("auth0.breaker.maxrequests", 1)
	v.SetDefault("auth0.breaker.opentimeout", 30*time.Second)
	v.SetDefault("auth0.breaker.consecutivefailures", 5)
	v.SetDefault("db.maxopenconns", 10)
	v.SetDefault("db.maxidleconns", 2)
	v.SetDefault("log.loglevel", "info")
	v.SetDefault("log.appname", "monolith-auth")
	v.SetDefault("log.servicename", "web")
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("log.enableaccesslogtoconsole", true)
}

// ReadConfig reads <path>main.toml if present and applies environment overrides.
// The returned error wraps ErrConfiguration.
func ReadConfig(path string) (Config, error) {
	var c Config

	if path == "" {
		path = "./etc/"
	}

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, errors.Wrap(ErrConfiguration, err.Error())
		}
	}

	v.SetConfigFile(filepath.Join(path, "main.toml"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(ErrConfiguration, "failed to read main config file: %v", err)
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrapf(ErrConfiguration, "failed to decode config: %v", err)
	}

	return c, validate(&c)
}

// validate checks required settings and fills derived defaults.
func validate(c *Config) error {
	if c.Webserver.URL == "" && c.Webserver.Port != 0 {
		c.Webserver.URL = fmt.Sprintf("http://localhost:%d", c.Webserver.Port)
	}

	c.Webserver.URL = strings.TrimSuffix(c.Webserver.URL, "/")

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5 // set default of 5 seconds
	}

	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(ErrConfiguration, err.Error())
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}

	return errors.Wrap(ErrConfiguration, strings.Join(problems, "; "))
}

// describe names a failed field by its environment variable when it has one.
func describe(fe validator.FieldError) string {
	key := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))

	name := key
	if env, ok := envBindings[key]; ok {
		name = env
	}

	if fe.Tag() == "required" {
		return name + " is required"
	}

	return fmt.Sprintf("%s failed %q check", name, fe.Tag())
}

// Redacted returns a copy with secrets masked, safe for printing.
func (c Config) Redacted() Config {
	if c.Auth0.ClientSecret != "" {
		c.Auth0.ClientSecret = redacted
	}

	if c.Webserver.SecretKey != "" {
		c.Webserver.SecretKey = redacted
	}

	return c
}

// DumpConfig config as TOML String.
func DumpConfig(c *Config) (string, error) {
	var buffer bytes.Buffer
	t := toml.NewEncoder(&buffer)

	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer
	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}
