// Package skills loads the workspace's "skill" library: markdown files
// teaching the agent how to perform a task, discovered as <dir>/SKILL.md
// under a workspace skills/ subtree and a built-in skills/ subtree, with
// workspace skills taking priority over built-ins of the same name (§4.3,
// §6).
package skills

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Type is a skill's declared interaction mode.
type Type string

const (
	TypeInstruction Type = "instruction"
	TypeMCP         Type = "mcp"
	TypeHybrid      Type = "hybrid"
)

// Requirements gates a skill's availability on local binaries and env vars.
type Requirements struct {
	Bins []string `yaml:"bins"`
	Env  []string `yaml:"env"`
}

// frontmatter is a SKILL.md's YAML header (§6: "name, description, always?,
// type, mcp_servers?, requires?:{bins:[], env:[]}").
type frontmatter struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Always      bool         `yaml:"always"`
	Type        Type         `yaml:"type"`
	MCPServers  []string     `yaml:"mcp_servers"`
	Requires    Requirements `yaml:"requires"`
}

// Skill is one loaded skill, combining its frontmatter with where it was
// found on disk.
type Skill struct {
	Name        string
	Description string
	Always      bool
	Type        Type
	MCPServers  []string
	Requires    Requirements
	Path        string
	Source      string // "workspace" | "builtin"
	body        string // content with frontmatter stripped
}

// Loader discovers and loads skills from a workspace, falling back to a
// built-in skills directory for names the workspace doesn't override.
type Loader struct {
	workspaceSkills string
	builtinSkills   string
}

func NewLoader(workspaceRoot, builtinSkillsDir string) *Loader {
	return &Loader{
		workspaceSkills: filepath.Join(workspaceRoot, "skills"),
		builtinSkills:   builtinSkillsDir,
	}
}

var frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)

// List returns every discoverable skill, workspace first, deduplicated by
// name, parsed in full.
func (l *Loader) List() []*Skill {
	seen := make(map[string]bool)
	var out []*Skill

	for _, dir := range []struct {
		root   string
		source string
	}{
		{l.workspaceSkills, "workspace"},
		{l.builtinSkills, "builtin"},
	} {
		if dir.root == "" {
			continue
		}
		entries, err := os.ReadDir(dir.root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || seen[e.Name()] {
				continue
			}
			path := filepath.Join(dir.root, e.Name(), "SKILL.md")
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			skill := parseSkill(e.Name(), path, dir.source, string(data))
			out = append(out, skill)
			seen[e.Name()] = true
		}
	}
	return out
}

func parseSkill(dirName, path, source, content string) *Skill {
	fm, body := splitFrontmatter(content)
	name := fm.Name
	if name == "" {
		name = dirName
	}
	return &Skill{
		Name:        name,
		Description: fm.Description,
		Always:      fm.Always,
		Type:        normalizeType(fm.Type),
		MCPServers:  fm.MCPServers,
		Requires:    fm.Requires,
		Path:        path,
		Source:      source,
		body:        body,
	}
}

func splitFrontmatter(content string) (frontmatter, string) {
	match := frontmatterPattern.FindStringSubmatchIndex(content)
	if match == nil {
		return frontmatter{}, strings.TrimSpace(content)
	}
	header := content[match[2]:match[3]]
	body := strings.TrimSpace(content[match[1]:])
	var fm frontmatter
	_ = yaml.Unmarshal([]byte(header), &fm)
	return fm, body
}

func normalizeType(t Type) Type {
	switch t {
	case TypeMCP, TypeHybrid:
		return t
	default:
		return TypeInstruction
	}
}

// Available reports whether a skill's declared bin/env requirements, and (if
// mcpConnected is non-nil) its declared MCP servers, are all satisfied.
func (s *Skill) Available(mcpConnected func(server string) bool) bool {
	for _, b := range s.Requires.Bins {
		if _, err := exec.LookPath(b); err != nil {
			return false
		}
	}
	for _, e := range s.Requires.Env {
		if os.Getenv(e) == "" {
			return false
		}
	}
	if len(s.MCPServers) > 0 && mcpConnected != nil {
		for _, server := range s.MCPServers {
			if !mcpConnected(server) {
				return false
			}
		}
	}
	return true
}

func (s *Skill) missingRequirements(mcpConnected func(server string) bool) string {
	var missing []string
	for _, b := range s.Requires.Bins {
		if _, err := exec.LookPath(b); err != nil {
			missing = append(missing, "CLI: "+b)
		}
	}
	for _, e := range s.Requires.Env {
		if os.Getenv(e) == "" {
			missing = append(missing, "ENV: "+e)
		}
	}
	if len(s.MCPServers) > 0 && mcpConnected != nil {
		for _, server := range s.MCPServers {
			if !mcpConnected(server) {
				missing = append(missing, "MCP server: "+server)
			}
		}
	}
	return strings.Join(missing, ", ")
}

// AlwaysActiveContent returns the full (frontmatter-stripped) body of every
// available skill marked always=true, concatenated for the system prompt
// (§4.3 "Active Skills").
func (l *Loader) AlwaysActiveContent(mcpConnected func(server string) bool) string {
	var parts []string
	for _, s := range l.List() {
		if !s.Always || !s.Available(mcpConnected) {
			continue
		}
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", s.Name, s.body))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Catalogue renders every skill (available or not) as the XML dialect the
// system prompt embeds (§4.3).
func (l *Loader) Catalogue(mcpConnected func(server string) bool) string {
	all := l.List()
	if len(all) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<skills>\n")
	for _, s := range all {
		available := s.Available(mcpConnected)
		fmt.Fprintf(&b, "  <skill available=\"%t\">\n", available)
		fmt.Fprintf(&b, "    <name>%s</name>\n", escapeXML(s.Name))
		fmt.Fprintf(&b, "    <description>%s</description>\n", escapeXML(s.Description))
		fmt.Fprintf(&b, "    <location>%s</location>\n", escapeXML(s.Path))
		if s.Type != TypeInstruction {
			fmt.Fprintf(&b, "    <type>%s</type>\n", s.Type)
		}
		if len(s.MCPServers) > 0 {
			fmt.Fprintf(&b, "    <mcp_servers>%s</mcp_servers>\n", escapeXML(strings.Join(s.MCPServers, ", ")))
		}
		if !available {
			if missing := s.missingRequirements(mcpConnected); missing != "" {
				fmt.Fprintf(&b, "    <requires>%s</requires>\n", escapeXML(missing))
			}
		}
		b.WriteString("  </skill>\n")
	}
	b.WriteString("</skills>")
	return b.String()
}

// LoadByName returns a skill's frontmatter-stripped body for on-demand
// reading (used by a skill-reading tool, rather than the always-on set).
func (l *Loader) LoadByName(name string) (string, bool) {
	for _, s := range l.List() {
		if s.Name == name {
			return s.body, true
		}
	}
	return "", false
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
