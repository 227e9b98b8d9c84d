package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration: listen ports for the proxy and
// the M3 API, filesystem paths handed to the proxy backend, and optional
// observability ports. All fields have working defaults so the server runs
// without a configuration file.
type Config struct {
	LogLevel string `mapstructure:"logLevel"`
	LogJSON  bool   `mapstructure:"logJson"`

	M3ListenAddress string `mapstructure:"m3ListenAddress"`

	HTTPPort  int `mapstructure:"httpPort"`
	HTTPSPort int `mapstructure:"httpsPort"`

	MetricsPort int `mapstructure:"metricsPort"`
	PprofPort   int `mapstructure:"pprofPort"`

	CertificateDirectory string `mapstructure:"certificateDirectory"`

	Nginx NginxConfig `mapstructure:"nginx"`
}

// NginxConfig carries the nginx-specific filesystem paths interpolated into
// the generated configuration.
type NginxConfig struct {
	ConfigPath         string `mapstructure:"configPath"`
	PidPath            string `mapstructure:"pidPath"`
	ErrorLogPath       string `mapstructure:"errorLogPath"`
	AccessLogPath      string `mapstructure:"accessLogPath"`
	ClientBodyTempPath string `mapstructure:"clientBodyTempPath"`
	ProxyCachePath     string `mapstructure:"proxyCachePath"`
	ProxyTempPath      string `mapstructure:"proxyTempPath"`
	FastCGITempPath    string `mapstructure:"fastcgiTempPath"`
	UwsgiTempPath      string `mapstructure:"uwsgiTempPath"`
	ScgiTempPath       string `mapstructure:"scgiTempPath"`
}

// Default returns the built-in configuration, mirroring the paths the
// reference setup uses under /tmp.
func Default() *Config {
	return &Config{
		LogLevel:             "info",
		M3ListenAddress:      "localhost:7777",
		HTTPPort:             80,
		HTTPSPort:            443,
		CertificateDirectory: "/tmp/rt_5gms_as.certificates",
		Nginx: NginxConfig{
			ConfigPath:         "/tmp/rt_5gms_as.conf",
			PidPath:            "/tmp/rt_5gms_as.pid",
			ErrorLogPath:       "/tmp/rt_5gms_as.error.log",
			AccessLogPath:      "/tmp/rt_5gms_as.access.log",
			ClientBodyTempPath: "/tmp/rt_5gms_as.client_body",
			ProxyCachePath:     "/tmp/rt_5gms_as.proxy_cache",
			ProxyTempPath:      "/tmp/rt_5gms_as.proxy_temp",
			FastCGITempPath:    "/tmp/rt_5gms_as.fastcgi_temp",
			UwsgiTempPath:      "/tmp/rt_5gms_as.uwsgi_temp",
			ScgiTempPath:       "/tmp/rt_5gms_as.scgi_temp",
		},
	}
}

// Load reads a YAML configuration file and merges it over the defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing configuration file: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid configuration file: %w", err)
	}
	return cfg, nil
}
