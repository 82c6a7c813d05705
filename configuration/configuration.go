package configuration

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/vnetops/nsx-control-plane/ncp"
)

const (
	// EnvConfigPath overrides the config file location.
	EnvConfigPath     = "NSXCP_CONFIGURATION_PATH"
	defaultConfigName = "nsxcp_config.json"
	envPrefix         = "NSXCP"
)

// Config is the process configuration. Defaults cover a single-manager
// deployment with one overlay and one VLAN transport zone.
type Config struct {
	// Backend manager endpoint, e.g. https://nsx-mgr:443.
	ManagerEndpoint string
	ManagerUsername string
	ManagerPassword string
	Insecure        bool

	DefaultOverlayTransportZone string
	DefaultVlanTransportZone    string
	DefaultTier0Router          string

	// NetworkVlanRanges entries follow the "<physical network>:<min>:<max>"
	// form; a bare "<physical network>" opens the full legal range.
	NetworkVlanRanges []string

	EnsSupport      bool
	EnsPortSecurity bool
	VlanTransparent bool
	NativeDhcpVlan  bool
	DhcpProfileID  string
	DNSDomain      string
	DNSNameservers []string

	ListenAddress string
	LogLevel      string
}

// Read loads configuration from path, or from the default location with an
// env override when path is empty. Env vars prefixed NSXCP_ override file
// values.
func Read(path string) (Config, error) {
	if path == "" {
		if p, found := os.LookupEnv(EnvConfigPath); found {
			path = p
		} else {
			path = defaultConfigName
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, defaults plus env carry the config
		if _, ok := err.(*os.PathError); !ok {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, errors.Wrapf(err, "reading config %q", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshaling config")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("ListenAddress", ":10090")
	v.SetDefault("EnsSupport", false)
	v.SetDefault("EnsPortSecurity", false)
	v.SetDefault("NativeDhcpVlan", true)
	v.SetDefault("DNSDomain", "openstacklocal")
}

// ParseVlanRanges expands the configured range strings into per-physical
// network [min,max] pairs. A physical network named with no range gets the
// full legal VLAN span.
func ParseVlanRanges(ranges []string) (map[string][][2]int, error) {
	out := make(map[string][][2]int, len(ranges))
	for _, entry := range ranges {
		parts := strings.Split(entry, ":")
		switch len(parts) {
		case 1:
			if parts[0] == "" {
				return nil, errors.Errorf("invalid vlan range entry %q", entry)
			}
			out[parts[0]] = append(out[parts[0]], [2]int{ncp.MinVlanTag, ncp.MaxVlanTag})
		case 3:
			lo, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, errors.Wrapf(err, "invalid vlan range entry %q", entry)
			}
			hi, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, errors.Wrapf(err, "invalid vlan range entry %q", entry)
			}
			if lo < ncp.MinVlanTag || hi > ncp.MaxVlanTag || lo > hi {
				return nil, errors.Errorf("vlan range %q out of bounds [%d,%d]",
					entry, ncp.MinVlanTag, ncp.MaxVlanTag)
			}
			out[parts[0]] = append(out[parts[0]], [2]int{lo, hi})
		default:
			return nil, errors.Errorf("invalid vlan range entry %q", entry)
		}
	}
	return out, nil
}
