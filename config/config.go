package config

import (
	"fmt"
	"net"
	"os"

	"github.com/creasty/defaults"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"

	"github.com/domainsale/forsale/log"
)

// Lookup holds the default lookup options applied when a caller does not
// override them. The schema, scheme whitelist and size caps are fixed policy
// and deliberately have no configuration surface.
type Lookup struct {
	EnableRDAPCheck bool `yaml:"enableRdapCheck" default:"false"`
	// RDAPOnlyConfirms allows an RDAP "for-sale" status tag to mark a domain
	// as for sale even without a validated DNS payload
	RDAPOnlyConfirms bool     `yaml:"rdapOnlyConfirms" default:"false"`
	CacheTTL         Duration `yaml:"cacheTTL" default:"300s"`
	Timeout          Duration `yaml:"timeout" default:"5s"`
}

// Config is the application configuration
type Config struct {
	// Upstream is the address (host:port) of the DNSSEC-aware recursive
	// resolver used for all queries
	Upstream string `yaml:"upstream" default:"1.1.1.1:53"`
	// TrustAnchors overrides the built-in IANA root KSKs (DNSKEY zone file
	// format). Empty means use the defaults.
	TrustAnchors []string   `yaml:"trustAnchors"`
	HTTPPort     uint16     `yaml:"httpPort" default:"4000"`
	Log          log.Config `yaml:"log"`
	Lookup       Lookup     `yaml:"lookup"`
}

// NewConfig creates a Config with all defaults applied
func NewConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		log.Log().Fatalf("can't apply config defaults: %v", err)
	}

	return cfg
}

// LoadConfig reads the configuration from the passed file. A missing file is
// not an error if mandatory is false; defaults apply.
func LoadConfig(path string, mandatory bool) (Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mandatory {
			return cfg, nil
		}

		return cfg, fmt.Errorf("can't read config file '%s': %w", path, err)
	}

	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("wrong file structure: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var result *multierror.Error

	if _, _, err := net.SplitHostPort(c.Upstream); err != nil {
		result = multierror.Append(result,
			fmt.Errorf("upstream must be host:port, got '%s': %w", c.Upstream, err))
	}

	if !c.Lookup.Timeout.IsAboveZero() {
		result = multierror.Append(result, fmt.Errorf("lookup timeout must be above zero"))
	}

	if c.Lookup.CacheTTL.ToDuration() < 0 {
		result = multierror.Append(result, fmt.Errorf("cacheTTL must not be negative"))
	}

	return result.ErrorOrNil()
}
