package nginx

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fivegmag/rt-5gms-application-server/internal/config"
	"github.com/fivegmag/rt-5gms-application-server/internal/core"
	"github.com/fivegmag/rt-5gms-application-server/internal/store"
)

const cacheZoneName = "cacheone"

// LocationConfig is one generated location block: the M4d path prefix it
// serves, the ingest origin it proxies to, and the normalized rewrite rules
// applied on the way.
type LocationConfig struct {
	PathPrefix          string
	DownstreamPrefixURL string
	ProvisioningSession string
	RewriteRules        []RewriteRule
}

// ServerConfig is one generated server block.
type ServerConfig struct {
	Hostnames       []string
	Port            int
	TLS             bool
	CertificateFile string
	UseCache        bool
	Locations       []LocationConfig
}

// buildServerConfigs translates the control store contents into a list of
// server blocks, merged so that servers with identical ports, TLS bindings
// and location sets share one block with the hostname sets united.
func buildServerConfigs(cfg *config.Config, controlStore *store.Store) ([]*ServerConfig, error) {
	type serverKey struct {
		domain   string
		certFile string
	}

	servers := make(map[serverKey]*ServerConfig)
	order := []serverKey{}

	upsert := func(domain, certFile string, loc LocationConfig) {
		key := serverKey{domain: domain, certFile: certFile}
		server, found := servers[key]
		if !found {
			port := cfg.HTTPPort
			if certFile != "" {
				port = cfg.HTTPSPort
			}
			server = &ServerConfig{
				Hostnames:       []string{domain},
				Port:            port,
				TLS:             certFile != "",
				CertificateFile: certFile,
				UseCache:        cfg.Nginx.ProxyCachePath != "",
			}
			servers[key] = server
			order = append(order, key)
		}
		server.Locations = append(server.Locations, loc)
	}

	for _, psid := range controlStore.ListPsids() {
		chc := controlStore.GetCHC(psid)
		if chc == nil {
			continue
		}

		ingest := chc.IngestConfiguration
		if !ingest.Pull || ingest.Protocol != core.PullIngestProtocol {
			return nil, fmt.Errorf("provisioning session %q: only http-pull-ingest sources can be handled", psid)
		}
		downstreamOrigin := strings.TrimSuffix(ingest.BaseURL, "/")

		for _, dc := range chc.DistributionConfigurations {
			prefix, err := m4dPathPrefix(dc.BaseURL)
			if err != nil {
				return nil, fmt.Errorf("provisioning session %q: %w", psid, err)
			}

			certFile := ""
			if dc.CertificateID != "" {
				certFile, err = controlStore.GetCertPath(dc.CertificateID)
				if err != nil {
					return nil, fmt.Errorf("provisioning session %q: certificate %q: %w", psid, dc.CertificateID, err)
				}
			}

			loc := LocationConfig{
				PathPrefix:          prefix,
				DownstreamPrefixURL: downstreamOrigin,
				ProvisioningSession: psid,
			}
			for _, rule := range dc.PathRewriteRules {
				rewritten, err := NormalizeRewriteRule(rule.RequestPathPattern, rule.MappedPath)
				if err != nil {
					return nil, fmt.Errorf("provisioning session %q: %w", psid, err)
				}
				loc.RewriteRules = append(loc.RewriteRules, rewritten)
			}

			upsert(dc.CanonicalDomainName, certFile, loc)
			if dc.DomainNameAlias != "" {
				upsert(dc.DomainNameAlias, certFile, loc)
			}
		}
	}

	ordered := make([]*ServerConfig, 0, len(order))
	for _, key := range order {
		ordered = append(ordered, servers[key])
	}
	return mergeServerConfigs(ordered), nil
}

// m4dPathPrefix extracts the path component of a distribution base URL,
// forced to start and end with a slash.
func m4dPathPrefix(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing distribution base URL: %w", err)
	}
	prefix := parsed.Path
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix, nil
}

// mergeServerConfigs repeatedly pairwise-merges compatible server blocks
// until a pass makes no change. Two servers merge iff they agree on TLS
// status, certificate file, port, cache flag and location sets; the hostname
// sets unite.
func mergeServerConfigs(servers []*ServerConfig) []*ServerConfig {
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(servers) && !changed; i++ {
			for j := i + 1; j < len(servers); j++ {
				if !mergeable(servers[i], servers[j]) {
					continue
				}
				servers[i].Hostnames = unionHostnames(servers[i].Hostnames, servers[j].Hostnames)
				servers = append(servers[:j], servers[j+1:]...)
				changed = true
				break
			}
		}
	}
	return servers
}

func mergeable(a, b *ServerConfig) bool {
	if a.TLS != b.TLS || a.CertificateFile != b.CertificateFile ||
		a.Port != b.Port || a.UseCache != b.UseCache {
		return false
	}
	return locationSetKey(a.Locations) == locationSetKey(b.Locations)
}

// locationSetKey canonicalizes a location list into an order-insensitive
// comparison key. A location's identity is its path prefix plus the multiset
// of its rewrite rules.
func locationSetKey(locations []LocationConfig) string {
	keys := make([]string, 0, len(locations))
	for _, loc := range locations {
		rules := make([]string, 0, len(loc.RewriteRules))
		for _, rule := range loc.RewriteRules {
			rules = append(rules, rule.Regex+"\x00"+rule.Replacement)
		}
		sort.Strings(rules)
		keys = append(keys, loc.PathPrefix+"\x01"+strings.Join(rules, "\x01"))
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x02")
}

func unionHostnames(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	union := make([]string, 0, len(a)+len(b))
	for _, hostname := range append(append([]string{}, a...), b...) {
		if _, found := seen[hostname]; found {
			continue
		}
		seen[hostname] = struct{}{}
		union = append(union, hostname)
	}
	return union
}

// renderConfig produces the complete nginx configuration text.
func renderConfig(cfg *config.Config, servers []*ServerConfig) string {
	var b strings.Builder

	b.WriteString("# Generated by rt-5gms-as, any changes will be overwritten\n")
	b.WriteString("worker_processes auto;\n")
	fmt.Fprintf(&b, "error_log %s error;\n", cfg.Nginx.ErrorLogPath)
	fmt.Fprintf(&b, "pid %s;\n", cfg.Nginx.PidPath)
	b.WriteString("\nevents {\n  worker_connections 1024;\n}\n\n")

	b.WriteString("http {\n")
	b.WriteString("  default_type application/octet-stream;\n")
	fmt.Fprintf(&b, "  access_log %s;\n", cfg.Nginx.AccessLogPath)
	fmt.Fprintf(&b, "  client_body_temp_path %s;\n", cfg.Nginx.ClientBodyTempPath)
	fmt.Fprintf(&b, "  proxy_temp_path %s;\n", cfg.Nginx.ProxyTempPath)
	fmt.Fprintf(&b, "  fastcgi_temp_path %s;\n", cfg.Nginx.FastCGITempPath)
	fmt.Fprintf(&b, "  uwsgi_temp_path %s;\n", cfg.Nginx.UwsgiTempPath)
	fmt.Fprintf(&b, "  scgi_temp_path %s;\n", cfg.Nginx.ScgiTempPath)
	if cfg.Nginx.ProxyCachePath != "" {
		fmt.Fprintf(&b, "  proxy_cache_path %s levels=1:2 use_temp_path=on keys_zone=%s:10m;\n",
			cfg.Nginx.ProxyCachePath, cacheZoneName)
	}

	for _, server := range servers {
		b.WriteString("\n")
		renderServer(&b, server)
	}

	b.WriteString("}\n")
	return b.String()
}

func renderServer(b *strings.Builder, server *ServerConfig) {
	b.WriteString("  server {\n")

	ssl := ""
	if server.TLS {
		ssl = " ssl"
	}
	fmt.Fprintf(b, "    listen %d%s;\n", server.Port, ssl)
	fmt.Fprintf(b, "    listen [::]:%d%s;\n", server.Port, ssl)
	fmt.Fprintf(b, "    server_name %s;\n", strings.Join(server.Hostnames, " "))

	if server.TLS {
		// nginx accepts combined certificate and key PEM in both directives
		fmt.Fprintf(b, "    ssl_certificate %s;\n", server.CertificateFile)
		fmt.Fprintf(b, "    ssl_certificate_key %s;\n", server.CertificateFile)
	}
	if server.UseCache {
		fmt.Fprintf(b, "    proxy_cache %s;\n", cacheZoneName)
	}

	b.WriteString("\n    location / {\n      return 404;\n    }\n")

	for _, loc := range server.Locations {
		fmt.Fprintf(b, "\n    location ~ ^%s {\n", loc.PathPrefix)
		for _, rule := range loc.RewriteRules {
			fmt.Fprintf(b, "      rewrite \"%s\" \"%s\" break;\n", rule.Regex, rule.Replacement)
		}
		fmt.Fprintf(b, "      proxy_cache_key \"%s:u=$uri\";\n", loc.ProvisioningSession)
		fmt.Fprintf(b, "      proxy_pass %s;\n", loc.DownstreamPrefixURL)
		b.WriteString("    }\n")
	}

	b.WriteString("\n    error_page 404 /404.html;\n")
	b.WriteString("    error_page 500 502 503 504 /50x.html;\n")
	b.WriteString("  }\n")
}

// writeConfigFile writes the rendered configuration atomically: generation
// is all-or-nothing, an existing file is never left half replaced.
func writeConfigFile(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temporary configuration file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing configuration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing configuration: %w", err)
	}
	return nil
}
