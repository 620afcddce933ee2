// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// AuthOptions is the credential bag read from the "auth" section of a
// cloud configuration. Which fields are required depends on the
// authentication type in use.
type AuthOptions struct {
	AuthURL                     string `yaml:"auth_url" mapstructure:"auth_url"`
	Username                    string `yaml:"username" mapstructure:"username"`
	Password                    string `yaml:"password" mapstructure:"password"`
	ProjectName                 string `yaml:"project_name" mapstructure:"project_name"`
	UserDomainName              string `yaml:"user_domain_name" mapstructure:"user_domain_name"`
	ProjectDomainName           string `yaml:"project_domain_name" mapstructure:"project_domain_name"`
	Token                       string `yaml:"token" mapstructure:"token"`
	ApplicationCredentialID     string `yaml:"application_credential_id" mapstructure:"application_credential_id"`
	ApplicationCredentialSecret string `yaml:"application_credential_secret" mapstructure:"application_credential_secret"`
}

// CloudConfig is the externally supplied configuration for one cloud,
// matching the structure of one entry in a clouds.yaml file.
type CloudConfig struct {
	// AuthType selects the authentication method: "password", "token",
	// "v3applicationcredential" or "none". When empty the type is
	// inferred from which credential fields are set.
	AuthType string `yaml:"auth_type" mapstructure:"auth_type"`

	Auth AuthOptions `yaml:"auth" mapstructure:"auth"`

	RegionName string `yaml:"region_name" mapstructure:"region_name"`

	// Interface is the endpoint visibility preference, "public" when
	// empty.
	Interface string `yaml:"interface" mapstructure:"interface"`
}

// authTypeOf returns the effective authentication type, inferring one
// from the populated credential fields when none is set explicitly.
func (c CloudConfig) authTypeOf() (string, error) {
	if c.AuthType != "" {
		return c.AuthType, nil
	}

	var implied []string
	if c.Auth.Token != "" {
		implied = append(implied, "token")
	}
	if c.Auth.ApplicationCredentialID != "" || c.Auth.ApplicationCredentialSecret != "" {
		implied = append(implied, "v3applicationcredential")
	}
	if c.Auth.Username != "" || c.Auth.Password != "" {
		implied = append(implied, "password")
	}

	switch len(implied) {
	case 0:
		return "none", nil
	case 1:
		return implied[0], nil
	default:
		return "", NewError(ErrorConfig, "contradictory credentials: configuration implies %v; set auth_type to disambiguate", implied)
	}
}

// FromConfig selects and constructs the authentication method matching
// the given configuration. Missing or contradictory fields for the
// selected method produce a configuration error.
func FromConfig(cfg CloudConfig) (AuthMethod, error) {
	authType, err := cfg.authTypeOf()
	if err != nil {
		return nil, err
	}

	log.Printf("[DEBUG] constructing %q authentication from configuration", authType)

	switch authType {
	case "none", "noauth":
		if cfg.Auth.AuthURL != "" {
			method, err := NewNoAuthWithEndpoint(cfg.Auth.AuthURL)
			if err != nil {
				return nil, err
			}
			return method, nil
		}
		return NewNoAuth(), nil

	case "password", "v3password":
		var errs *multierror.Error
		if cfg.Auth.AuthURL == "" {
			errs = multierror.Append(errs, fmt.Errorf("auth_url is required"))
		}
		if cfg.Auth.Username == "" {
			errs = multierror.Append(errs, fmt.Errorf("username is required"))
		}
		if cfg.Auth.Password == "" {
			errs = multierror.Append(errs, fmt.Errorf("password is required"))
		}
		if cfg.Auth.Token != "" {
			errs = multierror.Append(errs, fmt.Errorf("token cannot be combined with password authentication"))
		}
		if err := errs.ErrorOrNil(); err != nil {
			return nil, WrapError(ErrorConfig, err, "invalid %q configuration", authType)
		}
		method, err := NewPasswordAuth(PasswordOpts{
			AuthURL:           cfg.Auth.AuthURL,
			Username:          cfg.Auth.Username,
			Password:          cfg.Auth.Password,
			UserDomainName:    cfg.Auth.UserDomainName,
			ProjectName:       cfg.Auth.ProjectName,
			ProjectDomainName: cfg.Auth.ProjectDomainName,
			Region:            cfg.RegionName,
			Interface:         cfg.Interface,
		})
		if err != nil {
			return nil, err
		}
		return method, nil

	case "token", "v3token":
		if cfg.Auth.AuthURL == "" {
			return nil, NewError(ErrorConfig, "invalid %q configuration: auth_url is required", authType)
		}
		if cfg.Auth.Token == "" {
			return nil, NewError(ErrorConfig, "invalid %q configuration: token is required", authType)
		}
		b := NewIdentity(cfg.Auth.AuthURL).
			WithToken(cfg.Auth.Token).
			WithRegion(cfg.RegionName).
			WithEndpointInterface(cfg.Interface)
		if cfg.Auth.ProjectName != "" {
			b = b.WithProjectScope(cfg.Auth.ProjectName, cfg.Auth.ProjectDomainName)
		}
		method, err := b.Create()
		if err != nil {
			return nil, err
		}
		return method, nil

	case "v3applicationcredential", "applicationcredential":
		var errs *multierror.Error
		if cfg.Auth.AuthURL == "" {
			errs = multierror.Append(errs, fmt.Errorf("auth_url is required"))
		}
		if cfg.Auth.ApplicationCredentialID == "" {
			errs = multierror.Append(errs, fmt.Errorf("application_credential_id is required"))
		}
		if cfg.Auth.ApplicationCredentialSecret == "" {
			errs = multierror.Append(errs, fmt.Errorf("application_credential_secret is required"))
		}
		if err := errs.ErrorOrNil(); err != nil {
			return nil, WrapError(ErrorConfig, err, "invalid %q configuration", authType)
		}
		method, err := NewIdentity(cfg.Auth.AuthURL).
			WithApplicationCredential(cfg.Auth.ApplicationCredentialID, cfg.Auth.ApplicationCredentialSecret).
			WithRegion(cfg.RegionName).
			WithEndpointInterface(cfg.Interface).
			Create()
		if err != nil {
			return nil, err
		}
		return method, nil

	default:
		return nil, NewError(ErrorConfig, "unsupported auth_type %q", authType)
	}
}

// cloudsFile mirrors the top-level structure of clouds.yaml. The auth
// section is kept as a raw map so that unknown keys are tolerated and
// decoding into AuthOptions goes through one code path.
type cloudsFile struct {
	Clouds map[string]rawCloud `yaml:"clouds"`
}

type rawCloud struct {
	AuthType   string         `yaml:"auth_type"`
	Auth       map[string]any `yaml:"auth"`
	RegionName string         `yaml:"region_name"`
	Interface  string         `yaml:"interface"`
}

const configPathEnvVar = "OS_CLIENT_CONFIG_FILE"

// configFileLocations returns the candidate clouds.yaml locations in
// lookup order.
func configFileLocations() []string {
	locations := make([]string, 0, 4)
	if p := os.Getenv(configPathEnvVar); p != "" {
		locations = append(locations, p)
	}
	locations = append(locations, "clouds.yaml")
	locations = append(locations, filepath.Join(xdg.ConfigHome, "openstack", "clouds.yaml"))
	locations = append(locations, filepath.Join("/etc", "openstack", "clouds.yaml"))
	return locations
}

func findConfigFile() (string, error) {
	locations := configFileLocations()
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			log.Printf("[DEBUG] using cloud configuration file %s", loc)
			return loc, nil
		}
	}
	return "", NewError(ErrorConfig, "no clouds.yaml found in any of %v", locations)
}

// FromConfigFile reads a clouds.yaml-style file and constructs the
// authentication method for the named cloud. An empty path triggers the
// conventional lookup order (OS_CLIENT_CONFIG_FILE, the current
// directory, the user and system configuration directories). An empty
// cloud name falls back to the OS_CLOUD environment variable, or to the
// only cloud in the file if it defines exactly one.
func FromConfigFile(path, cloud string) (AuthMethod, error) {
	if path == "" {
		var err error
		path, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapError(ErrorConfig, err, "cannot read cloud configuration from %s", path)
	}

	var file cloudsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, WrapError(ErrorConfig, err, "cannot parse cloud configuration from %s", path)
	}

	if cloud == "" {
		cloud = os.Getenv("OS_CLOUD")
	}
	if cloud == "" {
		if len(file.Clouds) != 1 {
			return nil, NewError(ErrorConfig, "%s defines %d clouds; select one by name or via OS_CLOUD", path, len(file.Clouds))
		}
		for name := range file.Clouds {
			cloud = name
		}
	}

	entry, ok := file.Clouds[cloud]
	if !ok {
		return nil, NewError(ErrorConfig, "cloud %q is not defined in %s", cloud, path)
	}

	cfg := CloudConfig{
		AuthType:   entry.AuthType,
		RegionName: entry.RegionName,
		Interface:  entry.Interface,
	}
	if err := mapstructure.Decode(entry.Auth, &cfg.Auth); err != nil {
		return nil, WrapError(ErrorConfig, err, "invalid auth section for cloud %q in %s", cloud, path)
	}

	return FromConfig(cfg)
}
