// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"fmt"
	"log"
	"os"

	"github.com/hashicorp/go-multierror"
)

// The conventional OS_* environment variables recognized by FromEnv.
const (
	envAuthURL       = "OS_AUTH_URL"
	envAuthType      = "OS_AUTH_TYPE"
	envUsername      = "OS_USERNAME"
	envPassword      = "OS_PASSWORD"
	envProjectName   = "OS_PROJECT_NAME"
	envUserDomain    = "OS_USER_DOMAIN_NAME"
	envProjectDomain = "OS_PROJECT_DOMAIN_NAME"
	envToken         = "OS_TOKEN"
	envAppCredID     = "OS_APPLICATION_CREDENTIAL_ID"
	envAppCredSecret = "OS_APPLICATION_CREDENTIAL_SECRET"
	envRegionName    = "OS_REGION_NAME"
	envInterface     = "OS_INTERFACE"
	envCloudName     = "OS_CLOUD"
)

// FromEnv constructs an authentication method from the process
// environment.
//
// When OS_CLOUD is set, the named cloud is loaded from clouds.yaml
// using the conventional lookup order. Otherwise the method is chosen
// from the variables present: OS_TOKEN selects token authentication,
// OS_APPLICATION_CREDENTIAL_ID and ..._SECRET select application
// credentials, and OS_USERNAME/OS_PASSWORD select the password
// exchange. OS_AUTH_TYPE=none selects NoAuth. A required variable that
// is absent for the implied method is reported with kind MissingEnv.
func FromEnv() (AuthMethod, error) {
	if cloud := os.Getenv(envCloudName); cloud != "" {
		log.Printf("[DEBUG] %s is set, authenticating as cloud %q from clouds.yaml", envCloudName, cloud)
		return FromConfigFile("", cloud)
	}

	cfg := CloudConfig{
		AuthType:   os.Getenv(envAuthType),
		RegionName: os.Getenv(envRegionName),
		Interface:  os.Getenv(envInterface),
		Auth: AuthOptions{
			AuthURL:                     os.Getenv(envAuthURL),
			Username:                    os.Getenv(envUsername),
			Password:                    os.Getenv(envPassword),
			ProjectName:                 os.Getenv(envProjectName),
			UserDomainName:              os.Getenv(envUserDomain),
			ProjectDomainName:           os.Getenv(envProjectDomain),
			Token:                       os.Getenv(envToken),
			ApplicationCredentialID:     os.Getenv(envAppCredID),
			ApplicationCredentialSecret: os.Getenv(envAppCredSecret),
		},
	}

	if err := checkRequiredEnv(cfg); err != nil {
		return nil, err
	}

	return FromConfig(cfg)
}

// checkRequiredEnv reports, by variable name, everything that is absent
// but required for the authentication method the environment implies.
// The later FromConfig validation would catch the same problems, but at
// construction time the caller should be told which variable to set,
// not which config field is empty.
func checkRequiredEnv(cfg CloudConfig) error {
	authType, err := cfg.authTypeOf()
	if err != nil {
		return err
	}

	var required []struct{ name, value string }
	switch authType {
	case "none", "noauth":
		if cfg.AuthType == "" {
			// Nothing at all was set; an empty environment is a missing
			// configuration, not a request for unauthenticated access.
			return NewError(ErrorMissingEnv, "%s is not set; set the OS_* credentials or %s=none for unauthenticated access",
				envAuthURL, envAuthType)
		}
		return nil
	case "password", "v3password":
		required = []struct{ name, value string }{
			{envAuthURL, cfg.Auth.AuthURL},
			{envUsername, cfg.Auth.Username},
			{envPassword, cfg.Auth.Password},
		}
	case "token", "v3token":
		required = []struct{ name, value string }{
			{envAuthURL, cfg.Auth.AuthURL},
			{envToken, cfg.Auth.Token},
		}
	case "v3applicationcredential", "applicationcredential":
		required = []struct{ name, value string }{
			{envAuthURL, cfg.Auth.AuthURL},
			{envAppCredID, cfg.Auth.ApplicationCredentialID},
			{envAppCredSecret, cfg.Auth.ApplicationCredentialSecret},
		}
	default:
		// An explicit but unsupported OS_AUTH_TYPE is a configuration
		// problem, not a missing variable; let FromConfig report it.
		return nil
	}

	var errs *multierror.Error
	for _, v := range required {
		if v.value == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s is not set", v.name))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return WrapError(ErrorMissingEnv, err, "incomplete environment for %q authentication", authType)
	}
	return nil
}
