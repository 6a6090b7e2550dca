// Package agents is the root of the Bedrock agent samples. The reusable pieces live in
// subpackages (`llm`, `agent`, `memory`, `mcp`, `a2a`, `tools`, `workflow`, `server`) and
// each sample is a `cmd/` binary built on them:
//
//	portfolio-manager, market-analysis, trade-execution   A2A advisory trading desk
//	pr-review                                             GitHub pull request reviewer
//	weather-agent, weather-mcp                            NWS weather agent and MCP server
//	waf-mcp                                               ClickHouse WAF log MCP server
//	support-agent                                         customer-support RAG agent
//	agentctl                                              CLI for tools, WAF queries and A2A
//	deploy                                                CDK deployment of the Lambda samples
//
// Importers depend on the subpackages directly, for example:
//
//	import (
//	  "github.com/KamdynS/bedrock-agents/llm"
//	  "github.com/KamdynS/bedrock-agents/agent/core"
//	  "github.com/KamdynS/bedrock-agents/memory"
//	)
package agents
