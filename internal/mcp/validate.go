package mcp

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// shellMetaChars matches any character that would let a malicious command or
// arg escape direct-exec semantics into shell interpretation (§4.7).
var shellMetaChars = regexp.MustCompile("[|&;$`\\\\><\n\r]")

// commandAllowlist is the fixed set of program basenames an MCP server may
// be launched as.
var commandAllowlist = map[string]bool{
	"npx": true, "uvx": true, "python": true, "python3": true,
	"node": true, "deno": true, "cargo": true, "docker": true, "java": true,
}

// validateStdioCommand rejects a command/args combination containing shell
// metacharacters or whose program basename isn't allowlisted (§4.7).
func validateStdioCommand(command string, args []string) error {
	if shellMetaChars.MatchString(command) {
		return fmt.Errorf("command contains disallowed shell metacharacter: %q", command)
	}
	for _, a := range args {
		if shellMetaChars.MatchString(a) {
			return fmt.Errorf("argument contains disallowed shell metacharacter: %q", a)
		}
	}
	base := filepath.Base(command)
	if !commandAllowlist[base] {
		return fmt.Errorf("program %q is not in the allowlist", base)
	}
	return nil
}

// sensitiveEnvPattern flags variable names that look like they carry secrets,
// so overlaying caller-provided env onto a spawned MCP server can warn.
var sensitiveEnvPattern = regexp.MustCompile(`(?i)key|token|secret|password|cred|session|cookie|openai|anthropic|google|azure`)

// baseEnvVars is the minimal safe environment every stdio MCP server
// inherits before caller-provided variables are overlaid (§4.7).
var baseEnvVars = []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TERM"}

// buildFilteredEnv starts from the host's base env subset and overlays
// caller-provided variables, returning the final slice and the names that
// look sensitive (for a caller to log a warning about).
func buildFilteredEnv(hostEnv func(string) string, overlay map[string]string) (env []string, sensitive []string) {
	seen := make(map[string]bool)
	for _, name := range baseEnvVars {
		if v := hostEnv(name); v != "" {
			env = append(env, name+"="+v)
			seen[name] = true
		}
	}
	for name, v := range overlay {
		if sensitiveEnvPattern.MatchString(name) {
			sensitive = append(sensitive, name)
		}
		if seen[name] {
			// replace existing entry
			for i, e := range env {
				if strings.HasPrefix(e, name+"=") {
					env[i] = name + "=" + v
				}
			}
			continue
		}
		env = append(env, name+"="+v)
		seen[name] = true
	}
	return env, sensitive
}

// cloudMetadataIPs are specifically blocked regardless of the private/reserved
// check below (§4.7).
var cloudMetadataIPs = map[string]bool{
	"169.254.169.254": true,
	"100.100.100.200": true,
}

// validateSSEURL implements the SSRF defense described in §4.7: scheme must
// be http/https/ws/wss, localhost forms are allowed, other private/reserved/
// link-local IPs are rejected, cloud metadata IPs are always rejected, and a
// resolution failure is tolerated (permits mDNS/.local names).
func validateSSEURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}

	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return nil
	}
	if cloudMetadataIPs[host] {
		return fmt.Errorf("host %q is a blocked cloud metadata address", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := checkIPNotPrivate(ip); err != nil {
			return err
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil // resolution failure tolerated — permits mDNS/.local
	}
	for _, ip := range ips {
		if cloudMetadataIPs[ip.String()] {
			return fmt.Errorf("host %q resolves to a blocked cloud metadata address", host)
		}
		if err := checkIPNotPrivate(ip); err != nil {
			return fmt.Errorf("host %q resolves to a disallowed address: %w", host, err)
		}
	}
	return nil
}

func checkIPNotPrivate(ip net.IP) error {
	if ip.IsLoopback() {
		return nil
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("address %s is private/reserved/link-local", ip)
	}
	return nil
}
