package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mvdan.cc/sh/v3/shell"
)

// Dangerous command patterns to deny by default.
// Sources: OWASP Agentic AI Top 10, MITRE ATT&CK, PayloadsAllTheThings.
var defaultDenyPatterns = []*regexp.Regexp{
	// ── Destructive file operations ──
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\brm\s+.*--recursive`),
	regexp.MustCompile(`\brm\s+.*--force`),
	regexp.MustCompile(`\b(mkfs|diskpart)\b|\bformat\s`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb

	// ── Shell metacharacters (command must be a single direct spawn, never a pipeline) ──
	regexp.MustCompile("`"),
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile(`&&|\|\||;`),
	regexp.MustCompile(`\|`),
	regexp.MustCompile(`<`),

	// ── Privilege escalation ──
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\bnsenter\b`),
	regexp.MustCompile(`\bunshare\b`),
	regexp.MustCompile(`\b(mount|umount)\b`),

	// ── Environment variable injection ──
	regexp.MustCompile(`\bLD_PRELOAD\s*=`),
	regexp.MustCompile(`\bLD_LIBRARY_PATH\s*=`),

	// ── Persistence ──
	regexp.MustCompile(`\bcrontab\b`),

	// ── Process manipulation ──
	regexp.MustCompile(`\bkill\s+-9\s`),
	regexp.MustCompile(`\b(killall|pkill)\b`),

	// ── Environment variable dumping (secrets live in the process env) ──
	regexp.MustCompile(`^\s*env\s*$`),
	regexp.MustCompile(`\bprintenv\b`),
}

// programAllowlist is the fixed set of executables exec may spawn directly.
// Anything else is rejected before a subprocess is ever created.
var programAllowlist = map[string]bool{
	"ls": true, "cat": true, "grep": true, "find": true, "echo": true,
	"pwd": true, "head": true, "tail": true, "wc": true, "sort": true,
	"uniq": true, "diff": true, "git": true, "go": true, "python3": true,
	"python": true, "node": true, "npm": true, "npx": true, "cargo": true,
	"make": true, "sed": true, "awk": true, "mkdir": true, "cp": true,
	"mv": true, "touch": true, "tar": true, "gzip": true, "gunzip": true,
	"unzip": true, "date": true, "sleep": true, "true": true, "false": true,
	"which": true, "test": true, "basename": true, "dirname": true,
	"curl": true, "jq": true, "xargs": true,
}

// redirectOK allows output redirection only to /dev/null.
var redirectOK = regexp.MustCompile(`>\s*/dev/null\b`)

const execOutputLimit = 10000 // §4.6: combined stdout+stderr truncated to ~10,000 chars

// ExecTool runs a single command via direct spawn (no shell), per §4.6: the
// command is split with a POSIX-style word splitter, denylisted patterns are
// rejected, and the program name must be in a fixed allowlist.
type ExecTool struct {
	workingDir   string
	timeout      time.Duration
	denyPatterns []*regexp.Regexp
	restrict     bool
}

func NewExecTool(workingDir string, restrict bool) *ExecTool {
	return &ExecTool{
		workingDir:   workingDir,
		timeout:      60 * time.Second,
		denyPatterns: defaultDenyPatterns,
		restrict:     restrict,
	}
}

func (t *ExecTool) Name() string        { return "exec" }
func (t *ExecTool) Description() string { return "Execute a shell command and return its output" }
func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The command to execute",
			},
			"working_dir": map[string]interface{}{
				"type":        "string",
				"description": "Optional working directory for the command",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	for _, pattern := range t.denyPatterns {
		if pattern.MatchString(command) {
			return ErrorResult(fmt.Sprintf("command denied by safety policy: matches pattern %s", pattern.String()))
		}
	}

	// Output redirection is only tolerated to /dev/null; any other ">" is a
	// shell metacharacter the word splitter would otherwise pass through.
	if strings.Contains(command, ">") && !redirectOK.MatchString(command) {
		return ErrorResult("command denied by safety policy: output redirection is restricted to /dev/null")
	}

	fields, err := shell.Fields(command, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to parse command: %v", err))
	}
	if len(fields) == 0 {
		return ErrorResult("command is empty after parsing")
	}

	program := filepath.Base(fields[0])
	if !programAllowlist[program] {
		return ErrorResult(fmt.Sprintf("program %q is not in the allowlist", program))
	}

	cwd := ToolWorkspaceFromCtx(ctx)
	if cwd == "" {
		cwd = t.workingDir
	}
	if wd, _ := args["working_dir"].(string); wd != "" {
		if t.restrict {
			resolved, err := resolvePath(wd, t.workingDir, true)
			if err != nil {
				return ErrorResult(err.Error())
			}
			cwd = resolved
		} else {
			cwd = wd
		}
	}

	if t.restrict {
		for _, arg := range fields[1:] {
			if looksLikePath(arg) {
				if _, err := resolvePath(arg, t.workingDir, true); err != nil {
					return ErrorResult(fmt.Sprintf("argument %q: %v", arg, err))
				}
			}
		}
	}

	return t.spawn(ctx, fields, cwd)
}

// looksLikePath skips flags and bare tokens so path validation only runs
// against arguments that actually reference the filesystem.
func looksLikePath(arg string) bool {
	if arg == "" || strings.HasPrefix(arg, "-") {
		return false
	}
	return strings.Contains(arg, "/") || strings.Contains(arg, "..")
}

func (t *ExecTool) spawn(ctx context.Context, fields []string, cwd string) *Result {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var result string
	if stdout.Len() > 0 {
		result = stdout.String()
	}
	if stderr.Len() > 0 {
		if result != "" {
			result += "\n"
		}
		result += "STDERR:\n" + stderr.String()
	}
	result = truncateOutput(result, execOutputLimit)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ErrorResult(fmt.Sprintf("command timed out after %s", t.timeout))
		}
		if result == "" {
			result = err.Error()
		}
		return ErrorResult(result)
	}

	if result == "" {
		result = "(command completed with no output)"
	}

	return SilentResult(result)
}

func truncateOutput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("\n... (truncated, %d bytes total)", len(s))
}
