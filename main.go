// Command goclaw runs the personal agent gateway: it wires the message bus,
// agent loop, context/summarizer, tool registry, MCP client, cron scheduler,
// and git auto-updater together and drives whichever channels are
// configured (§2).
package main

import "github.com/nextlevelbuilder/goclaw/cmd"

func main() {
	cmd.Execute()
}
