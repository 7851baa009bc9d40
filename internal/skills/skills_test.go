package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkillFile(t *testing.T, root, dirName, content string) {
	t.Helper()
	dir := filepath.Join(root, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
}

func TestListWorkspaceOverridesBuiltinOfSameName(t *testing.T) {
	workspaceRoot := t.TempDir()
	builtinRoot := t.TempDir()

	writeSkillFile(t, filepath.Join(workspaceRoot, "skills"), "greet", "---\nname: greet\ndescription: workspace version\n---\nworkspace body\n")
	writeSkillFile(t, builtinRoot, "greet", "---\nname: greet\ndescription: builtin version\n---\nbuiltin body\n")
	writeSkillFile(t, builtinRoot, "only-builtin", "---\nname: only-builtin\ndescription: only in builtin\n---\nbody\n")

	l := NewLoader(workspaceRoot, builtinRoot)
	all := l.List()
	if len(all) != 2 {
		t.Fatalf("expected 2 deduplicated skills, got %d: %+v", len(all), all)
	}

	var greet *Skill
	for _, s := range all {
		if s.Name == "greet" {
			greet = s
		}
	}
	if greet == nil {
		t.Fatal("expected greet skill present")
	}
	if greet.Source != "workspace" || greet.Description != "workspace version" {
		t.Fatalf("expected workspace skill to win over builtin, got %+v", greet)
	}
}

func TestParseSkillFallsBackToDirNameWhenFrontmatterNameMissing(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "my-skill", "---\ndescription: no name field\n---\nbody text\n")

	l := NewLoader(t.TempDir(), root)
	all := l.List()
	if len(all) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(all))
	}
	if all[0].Name != "my-skill" {
		t.Fatalf("expected directory name fallback, got %q", all[0].Name)
	}
}

func TestParseSkillHandlesMissingFrontmatterGracefully(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "plain", "just a body, no frontmatter at all\n")

	l := NewLoader(t.TempDir(), root)
	all := l.List()
	if len(all) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(all))
	}
	if all[0].Name != "plain" {
		t.Fatalf("expected dir name as fallback, got %q", all[0].Name)
	}
	if all[0].body != "just a body, no frontmatter at all" {
		t.Fatalf("expected raw content to become the body, got %q", all[0].body)
	}
}

func TestNormalizeTypeDefaultsToInstruction(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "a", "---\nname: a\ntype: bogus\n---\nbody\n")
	writeSkillFile(t, root, "b", "---\nname: b\ntype: mcp\n---\nbody\n")

	l := NewLoader(t.TempDir(), root)
	byName := map[string]*Skill{}
	for _, s := range l.List() {
		byName[s.Name] = s
	}
	if byName["a"].Type != TypeInstruction {
		t.Fatalf("expected unrecognized type to normalize to instruction, got %q", byName["a"].Type)
	}
	if byName["b"].Type != TypeMCP {
		t.Fatalf("expected mcp type preserved, got %q", byName["b"].Type)
	}
}

func TestAvailableFailsOnMissingBinaryOrEnv(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "needs-bin", "---\nname: needs-bin\nrequires:\n  bins: [\"definitely-not-a-real-binary-xyz\"]\n---\nbody\n")
	writeSkillFile(t, root, "needs-env", "---\nname: needs-env\nrequires:\n  env: [\"DEFINITELY_NOT_SET_XYZ\"]\n---\nbody\n")

	l := NewLoader(t.TempDir(), root)
	byName := map[string]*Skill{}
	for _, s := range l.List() {
		byName[s.Name] = s
	}
	if byName["needs-bin"].Available(nil) {
		t.Fatal("expected skill requiring a nonexistent binary to be unavailable")
	}
	if byName["needs-env"].Available(nil) {
		t.Fatal("expected skill requiring an unset env var to be unavailable")
	}
}

func TestAvailableChecksMCPConnectivity(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "needs-mcp", "---\nname: needs-mcp\nmcp_servers: [\"github\"]\n---\nbody\n")

	l := NewLoader(t.TempDir(), root)
	s := l.List()[0]

	if s.Available(func(string) bool { return false }) {
		t.Fatal("expected unavailable when the MCP server isn't connected")
	}
	if !s.Available(func(string) bool { return true }) {
		t.Fatal("expected available when the MCP server is connected")
	}
}

func TestAlwaysActiveContentOnlyIncludesAvailableAlwaysSkills(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "always-on", "---\nname: always-on\nalways: true\n---\nalways body\n")
	writeSkillFile(t, root, "not-always", "---\nname: not-always\nalways: false\n---\nshould not appear\n")
	writeSkillFile(t, root, "always-but-unmet", "---\nname: always-but-unmet\nalways: true\nrequires:\n  bins: [\"no-such-binary-xyz\"]\n---\nshould not appear either\n")

	l := NewLoader(t.TempDir(), root)
	got := l.AlwaysActiveContent(nil)
	if !strings.Contains(got, "always body") {
		t.Fatalf("expected the always+available skill body present, got %q", got)
	}
	if strings.Contains(got, "should not appear") {
		t.Fatalf("expected non-always or unavailable skills excluded, got %q", got)
	}
}

func TestCatalogueMarksAvailabilityAndMissingRequirements(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "ok", "---\nname: ok\ndescription: fine\n---\nbody\n")
	writeSkillFile(t, root, "blocked", "---\nname: blocked\ndescription: needs stuff\nrequires:\n  env: [\"DEFINITELY_NOT_SET_XYZ\"]\n---\nbody\n")

	l := NewLoader(t.TempDir(), root)
	xml := l.Catalogue(nil)
	if !strings.Contains(xml, `<skill available="true">`) {
		t.Fatalf("expected an available=true entry, got %s", xml)
	}
	if !strings.Contains(xml, `<skill available="false">`) {
		t.Fatalf("expected an available=false entry, got %s", xml)
	}
	if !strings.Contains(xml, "ENV: DEFINITELY_NOT_SET_XYZ") {
		t.Fatalf("expected missing requirement listed, got %s", xml)
	}
}

func TestCatalogueEmptyWhenNoSkills(t *testing.T) {
	l := NewLoader(t.TempDir(), "")
	if got := l.Catalogue(nil); got != "" {
		t.Fatalf("expected empty catalogue with no skills, got %q", got)
	}
}

func TestCatalogueEscapesXMLSpecialCharacters(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "xmlish", "---\nname: xmlish\ndescription: \"uses <tags> & ampersands\"\n---\nbody\n")

	l := NewLoader(t.TempDir(), root)
	xml := l.Catalogue(nil)
	if strings.Contains(xml, "<tags>") {
		t.Fatalf("expected raw angle brackets to be escaped, got %s", xml)
	}
	if !strings.Contains(xml, "&lt;tags&gt;") || !strings.Contains(xml, "&amp;") {
		t.Fatalf("expected escaped entities present, got %s", xml)
	}
}

func TestLoadByNameReturnsBodyAndFoundFlag(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "findme", "---\nname: findme\n---\nthe body content\n")

	l := NewLoader(t.TempDir(), root)
	body, ok := l.LoadByName("findme")
	if !ok || body != "the body content" {
		t.Fatalf("expected to find the skill body, got ok=%v body=%q", ok, body)
	}

	if _, ok := l.LoadByName("nonexistent"); ok {
		t.Fatal("expected ok=false for a skill name that doesn't exist")
	}
}
