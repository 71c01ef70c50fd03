// Package config resolves deployment parameters from the process environment
// (or any other lookup), an optional YAML file and built-in defaults.
//
// Precedence is environment > file > defaults. Empty values are treated as
// unset so that an exported-but-blank variable falls back to its default.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/fanapp/fanapp-personalization/internal/naming"
)

// ConfigPathVar names the optional YAML settings file.
const ConfigPathVar = "P13N_CONFIG"

// Lookup returns the value of a named variable and whether it is set.
// os.LookupEnv satisfies it.
type Lookup func(name string) (string, bool)

// Env is the resolved deployment configuration shared by every stack.
type Env struct {
	Account          string `yaml:"account"`
	Region           string `yaml:"region"`
	EnvironmentName  string `yaml:"environmentName"`
	Stage            string `yaml:"stage"`
	P13N             string `yaml:"p13n"`
	CMSEnv           string `yaml:"cmsEnv"`
	ThronEnv         string `yaml:"thronEnv"`
	CMSAPIKey        string `yaml:"cmsApiKey"`
	PinpointKey      string `yaml:"pinpointKey"`
	ProfileStreamArn string `yaml:"profileStreamArn"`

	CMS   CMSEndpoint   `yaml:"cms"`
	Thron ThronEndpoint `yaml:"thron"`

	AssetRoot string       `yaml:"assetRoot"`
	Canary    CanaryConfig `yaml:"canary"`
}

// CanaryConfig controls the post-deploy canaries.
type CanaryConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file,omitempty"`
}

// Trunk reports whether the stage has a CI/CD pipeline.
func (e *Env) Trunk() bool { return naming.IsTrunk(e.Stage) }

// Namer returns the physical-name builder for this environment.
func (e *Env) Namer() naming.Namer { return naming.Namer{Prefix: e.P13N, Stage: e.Stage} }

// Redacted returns a copy safe to print.
func (e *Env) Redacted() Env {
	c := *e
	if c.CMSAPIKey != "" && !strings.HasPrefix(c.CMSAPIKey, SSMPrefix) {
		c.CMSAPIKey = "****"
	}
	return c
}

// settings mirrors the recognized variables. The koanf tag is the variable name.
type settings struct {
	DeployAccount  string `koanf:"CDK_DEPLOY_ACCOUNT"`
	DefaultAccount string `koanf:"CDK_DEFAULT_ACCOUNT"`
	DeployRegion   string `koanf:"CDK_DEPLOY_REGION"`
	DefaultRegion  string `koanf:"CDK_DEFAULT_REGION"`

	EnvironmentName  string `koanf:"ENVIRONMENT_NAME" validate:"required"`
	Stage            string `koanf:"STAGE" validate:"required,max=16"`
	P13N             string `koanf:"P13N" validate:"required"`
	CMSEnv           string `koanf:"CMS_ENV" validate:"required"`
	ThronEnv         string `koanf:"THRON_ENV" validate:"required"`
	CMSAPIKey        string `koanf:"CMS_API_KEY" validate:"required"`
	PinpointKey      string `koanf:"PINPOINT_KEY" validate:"required,startswith=arn:"`
	ProfileStreamArn string `koanf:"DDB_PROF_STR" validate:"required,startswith=arn:"`

	AssetRoot  string `koanf:"P13N_ASSET_ROOT" validate:"required"`
	Canaries   bool   `koanf:"P13N_CANARIES"`
	CanaryFile string `koanf:"P13N_CANARY_FILE"`
}

func defaults() settings {
	return settings{
		EnvironmentName: "dev",
		Stage:           "dev",
		P13N:            "fan-app-p13n",
		CMSEnv:          "test",
		ThronEnv:        "test",
		AssetRoot:       "lib",
	}
}

// Variables lists every recognized variable name.
var Variables = []string{
	"CDK_DEPLOY_ACCOUNT", "CDK_DEFAULT_ACCOUNT", "CDK_DEPLOY_REGION", "CDK_DEFAULT_REGION",
	"ENVIRONMENT_NAME", "STAGE", "P13N", "CMS_ENV", "THRON_ENV",
	"CMS_API_KEY", "PINPOINT_KEY", "DDB_PROF_STR",
	"P13N_ASSET_ROOT", "P13N_CANARIES", "P13N_CANARY_FILE",
}

func recognized(name string) bool {
	for _, v := range Variables {
		if v == name {
			return true
		}
	}
	return false
}

// Load resolves the configuration from the process environment.
func Load() (*Env, error) {
	envProvider := env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if !recognized(key) || strings.TrimSpace(value) == "" {
			return "", nil
		}
		return key, value
	})
	return load(os.Getenv(ConfigPathVar), envProvider)
}

// Resolve resolves the configuration from lookup instead of the process
// environment.
func Resolve(lookup Lookup) (*Env, error) {
	path, _ := lookup(ConfigPathVar)
	return load(path, lookupProvider{lookup: lookup})
}

// Overlay returns a Lookup that consults values first and falls back to base.
func Overlay(values map[string]string, base Lookup) Lookup {
	return func(name string) (string, bool) {
		if v, ok := values[name]; ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		if base == nil {
			return "", false
		}
		return base(name)
	}
}

func load(configPath string, source koanf.Provider) (*Env, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if configPath = strings.TrimSpace(configPath); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}
	if err := k.Load(source, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var s settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return s.resolve()
}

func (s settings) resolve() (*Env, error) {
	var errs []error

	account := firstNonEmpty(s.DeployAccount, s.DefaultAccount)
	if account == "" {
		errs = append(errs, errors.New("unable to determine deployment account"))
	}
	region := firstNonEmpty(s.DeployRegion, s.DefaultRegion)
	if region == "" {
		errs = append(errs, errors.New("unable to determine deployment region"))
	}
	errs = append(errs, validate(s)...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	dir, err := LoadDirectory()
	if err != nil {
		return nil, err
	}
	cms, err := dir.CMSFor(s.CMSEnv)
	if err != nil {
		errs = append(errs, err)
	}
	thron, err := dir.ThronFor(s.ThronEnv)
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Env{
		Account:          account,
		Region:           region,
		EnvironmentName:  s.EnvironmentName,
		Stage:            s.Stage,
		P13N:             s.P13N,
		CMSEnv:           s.CMSEnv,
		ThronEnv:         s.ThronEnv,
		CMSAPIKey:        s.CMSAPIKey,
		PinpointKey:      s.PinpointKey,
		ProfileStreamArn: s.ProfileStreamArn,
		CMS:              cms,
		Thron:            thron,
		AssetRoot:        s.AssetRoot,
		Canary:           CanaryConfig{Enabled: s.Canaries, File: s.CanaryFile},
	}, nil
}

var validate = newValidator()

func newValidator() func(settings) []error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
	})
	return func(s settings) []error {
		err := v.Struct(s)
		if err == nil {
			return nil
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []error{err}
		}
		out := make([]error, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			switch fe.Tag() {
			case "required":
				out = append(out, fmt.Errorf("environment variable %s must be set", fe.Field()))
			case "max":
				out = append(out, fmt.Errorf("environment variable %s must be at most %s characters, got %q", fe.Field(), fe.Param(), fe.Value()))
			case "startswith":
				out = append(out, fmt.Errorf("environment variable %s must be an ARN, got %q", fe.Field(), fe.Value()))
			default:
				out = append(out, fmt.Errorf("environment variable %s is invalid (%s)", fe.Field(), fe.Tag()))
			}
		}
		return out
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// lookupProvider adapts a Lookup to koanf. Only recognized, non-empty
// variables are read.
type lookupProvider struct {
	lookup Lookup
}

func (p lookupProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("lookup provider does not support ReadBytes")
}

func (p lookupProvider) Read() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, name := range Variables {
		if v, ok := p.lookup(name); ok && strings.TrimSpace(v) != "" {
			out[name] = v
		}
	}
	return out, nil
}
