package mcp

import "testing"

func TestValidateStdioCommandRejectsShellMetacharacters(t *testing.T) {
	cases := []struct {
		command string
		args    []string
	}{
		{"python3", []string{"-c", "print(1) && rm -rf /"}},
		{"node; rm -rf /", nil},
		{"npx", []string{"$(whoami)"}},
		{"npx", []string{"`whoami`"}},
	}
	for _, c := range cases {
		if err := validateStdioCommand(c.command, c.args); err == nil {
			t.Errorf("expected command %q args %v to be rejected", c.command, c.args)
		}
	}
}

func TestValidateStdioCommandRejectsNonAllowlistedProgram(t *testing.T) {
	if err := validateStdioCommand("perl", []string{"-e", "1"}); err == nil {
		t.Fatal("expected perl to be rejected (not in allowlist)")
	}
}

func TestValidateStdioCommandAllowsKnownProgram(t *testing.T) {
	if err := validateStdioCommand("npx", []string{"-y", "some-mcp-server"}); err != nil {
		t.Fatalf("expected npx to be allowed, got %v", err)
	}
}

func TestValidateStdioCommandAllowsBasenameOfAbsolutePath(t *testing.T) {
	if err := validateStdioCommand("/usr/bin/python3", nil); err != nil {
		t.Fatalf("expected absolute path to an allowlisted basename to pass, got %v", err)
	}
}

func TestBuildFilteredEnvStartsFromBaseThenOverlays(t *testing.T) {
	host := func(name string) string {
		switch name {
		case "PATH":
			return "/usr/bin"
		case "HOME":
			return "/root"
		default:
			return ""
		}
	}
	env, sensitive := buildFilteredEnv(host, map[string]string{
		"CUSTOM_VAR": "value",
		"API_KEY":    "shh",
	})

	has := func(kv string) bool {
		for _, e := range env {
			if e == kv {
				return true
			}
		}
		return false
	}
	if !has("PATH=/usr/bin") || !has("HOME=/root") {
		t.Fatalf("expected base env vars present, got %v", env)
	}
	if !has("CUSTOM_VAR=value") {
		t.Fatalf("expected overlay var present, got %v", env)
	}
	if len(sensitive) != 1 || sensitive[0] != "API_KEY" {
		t.Fatalf("expected API_KEY flagged as sensitive, got %v", sensitive)
	}
}

func TestBuildFilteredEnvOverlayReplacesBaseValue(t *testing.T) {
	host := func(name string) string {
		if name == "LANG" {
			return "en_US.UTF-8"
		}
		return ""
	}
	env, _ := buildFilteredEnv(host, map[string]string{"LANG": "fr_FR.UTF-8"})

	count := 0
	for _, e := range env {
		if e == "LANG=fr_FR.UTF-8" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one LANG entry with the overlay value, got env=%v", env)
	}
}

func TestValidateSSEURLRejectsBadScheme(t *testing.T) {
	if err := validateSSEURL("file:///etc/passwd"); err == nil {
		t.Fatal("expected file:// scheme to be rejected")
	}
}

func TestValidateSSEURLAllowsLocalhost(t *testing.T) {
	for _, u := range []string{"http://localhost:8080/mcp", "http://127.0.0.1:8080", "http://[::1]:8080"} {
		if err := validateSSEURL(u); err != nil {
			t.Errorf("expected %q to be allowed, got %v", u, err)
		}
	}
}

func TestValidateSSEURLBlocksCloudMetadataAddress(t *testing.T) {
	if err := validateSSEURL("http://169.254.169.254/latest/meta-data"); err == nil {
		t.Fatal("expected cloud metadata address to be blocked")
	}
}

func TestValidateSSEURLBlocksPrivateIP(t *testing.T) {
	if err := validateSSEURL("http://10.0.0.5/mcp"); err == nil {
		t.Fatal("expected private IP to be rejected")
	}
}

func TestValidateSSEURLTreatsResolutionFailureAsPermitted(t *testing.T) {
	if err := validateSSEURL("http://this-host-does-not-exist.invalid.local/mcp"); err != nil {
		t.Fatalf("expected resolution failure to be tolerated (mDNS/.local), got %v", err)
	}
}
