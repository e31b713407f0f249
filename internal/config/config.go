// Package config holds the shell's settings: the options read from a YAML
// file, on top of embedded defaults, and the invocation details the
// command line adds.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"

	"github.com/cryptexctl/gosh/v2/internal/expand"
)

//go:embed default/config.yaml
var defaultConfigData []byte

// FileName is the name Load looks for inside a directory.
const FileName = "config.yaml"

type Config struct {
	// Invocation, filled in from the command line.
	Command     string   `json:"-"`
	ScriptFile  string   `json:"-"`
	ScriptArgs  []string `json:"-"`
	ReadStdin   bool     `json:"-"`
	Interactive bool     `json:"-"`
	Debug       bool     `json:"-"`

	PS1 string `json:"ps1"`
	PS2 string `json:"ps2"`
	PS4 string `json:"ps4"`

	NoMatch     string `json:"nomatch" validate:"oneof=literal fail null"`
	IFS         string `json:"ifs"`
	DefaultPath string `json:"default_path" validate:"required"`

	Colors      bool `json:"colors"`
	HistorySize int  `json:"history_size" validate:"gte=0"`
	ErrExit     bool `json:"errexit"`
	XTrace      bool `json:"xtrace"`
	JobNotify   bool `json:"job_notify"`
}

// New returns the embedded defaults.
func New() *Config {
	var c Config
	if err := yaml.UnmarshalStrict(defaultConfigData, &c); err != nil {
		panic(err)
	}
	return &c
}

// Validate the configuration for basic semantic errors.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return validate.Struct(c)
}

// NoMatchPolicy is the parsed nomatch setting.
func (c *Config) NoMatchPolicy() expand.NoMatch {
	n, err := expand.ParseNoMatch(c.NoMatch)
	if err != nil {
		return expand.NoMatchLiteral
	}
	return n
}

// Load reads the configuration at path over the defaults. path may name
// the file or the directory holding config.yaml.
func Load(fs afero.Fs, path string) (*Config, error) {
	if info, err := fs.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, FileName)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	c := New()
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadDefault loads the user's configuration when there is one and falls
// back to the defaults when there is not. An explicit path must exist.
func LoadDefault(fs afero.Fs, path string) (*Config, error) {
	if path != "" {
		return Load(fs, path)
	}
	for _, candidate := range searchPaths() {
		c, err := Load(fs, candidate)
		if err == nil {
			return c, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return New(), nil
}

func searchPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "gosh", FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".gosh.yaml"))
	}
	return paths
}
