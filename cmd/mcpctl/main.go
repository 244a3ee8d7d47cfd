package main

import "github.com/mcp-chatbot/mcp-manager/cmd/mcpctl/root"

func main() {
	root.Execute()
}
