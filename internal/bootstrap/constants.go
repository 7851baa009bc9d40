package bootstrap

// Files is the fixed, ordered set of bootstrap documents a workspace may
// carry (§4.3, §6). Each is optional; the Context Builder skips any that
// don't exist.
const (
	AgentsFile   = "AGENTS.md"
	SoulFile     = "SOUL.md"
	UserFile     = "USER.md"
	ToolsFile    = "TOOLS.md"
	IdentityFile = "IDENTITY.md"
)

// Files lists the bootstrap files in prompt order.
var Files = []string{AgentsFile, SoulFile, UserFile, ToolsFile, IdentityFile}
