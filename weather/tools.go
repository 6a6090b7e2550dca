package weather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	core "github.com/KamdynS/bedrock-agents/agent/core"
	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/mcp"
	"github.com/KamdynS/bedrock-agents/memory"
	"github.com/KamdynS/bedrock-agents/tools"
)

// forecastPeriods is how many periods get_forecast reports.
const forecastPeriods = 5

type alertArgs struct {
	State string `json:"state"`
}

type forecastArgs struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// FormatAlerts renders alerts for the model.
func FormatAlerts(alerts []Alert) string {
	if len(alerts) == 0 {
		return "No active alerts for this state."
	}
	parts := make([]string, 0, len(alerts))
	for _, a := range alerts {
		instr := a.Instruction
		if instr == "" {
			instr = "No specific instructions provided"
		}
		parts = append(parts, fmt.Sprintf("Event: %s\nArea: %s\nSeverity: %s\nDescription: %s\nInstructions: %s",
			a.Event, a.AreaDesc, a.Severity, strings.TrimSpace(a.Description), strings.TrimSpace(instr)))
	}
	return strings.Join(parts, "\n---\n")
}

// FormatForecast renders the next few periods.
func FormatForecast(periods []Period) string {
	if len(periods) == 0 {
		return "No forecast available for this location."
	}
	if len(periods) > forecastPeriods {
		periods = periods[:forecastPeriods]
	}
	parts := make([]string, 0, len(periods))
	for _, p := range periods {
		parts = append(parts, fmt.Sprintf("%s:\nTemperature: %d°%s\nWind: %s %s\nForecast: %s",
			p.Name, p.Temperature, p.TemperatureUnit, p.WindSpeed, p.WindDirection, p.DetailedForecast))
	}
	return strings.Join(parts, "\n---\n")
}

// Tools returns get_alerts and get_forecast backed by c.
func Tools(c *Client) *tools.DefaultRegistry {
	alerts := tools.NewFunc("get_alerts", "Get active weather alerts for a US state.",
		tools.ObjectSchema(map[string]interface{}{
			"state": map[string]interface{}{"type": "string", "description": "Two-letter US state code, e.g. CA"},
		}, "state"),
		func(ctx context.Context, input string) (string, error) {
			args, err := tools.DecodeArgs[alertArgs](input)
			if err != nil {
				return "", err
			}
			list, err := c.Alerts(ctx, args.State)
			if err != nil {
				return "", err
			}
			return FormatAlerts(list), nil
		})

	forecast := tools.NewFunc("get_forecast", "Get the weather forecast for a location in the US.",
		tools.ObjectSchema(map[string]interface{}{
			"latitude":  map[string]interface{}{"type": "number", "description": "Latitude of the location"},
			"longitude": map[string]interface{}{"type": "number", "description": "Longitude of the location"},
		}, "latitude", "longitude"),
		func(ctx context.Context, input string) (string, error) {
			args, err := tools.DecodeArgs[forecastArgs](input)
			if err != nil {
				return "", err
			}
			periods, err := c.Forecast(ctx, args.Latitude, args.Longitude)
			if err != nil {
				return "", err
			}
			return FormatForecast(periods), nil
		})

	return tools.NewRegistry(alerts, forecast)
}

// NewMCPServer serves Tools over MCP.
func NewMCPServer(c *Client) *mcpserver.MCPServer {
	return mcp.NewServer("weather", "1.0.0", Tools(c))
}

const agentPrompt = `You are a weather assistant for the United States. Use get_forecast with
coordinates you know for the place the user names, and get_alerts with the two-letter state
code for warnings. Answer briefly and mention active alerts first.`

// AgentConfig wires the weather agent.
type AgentConfig struct {
	Model llm.Client
	// Tools is normally Tools(client) or the tools loaded from a weather MCP server.
	Tools  tools.Registry
	Mem    memory.ConversationStore
	Logger *slog.Logger
}

// NewAgent builds the weather chat agent.
func NewAgent(cfg AgentConfig) *core.ChatAgent {
	return core.NewChatAgent(core.ChatConfig{
		Model:  cfg.Model,
		Tools:  cfg.Tools,
		Mem:    cfg.Mem,
		Config: core.AgentConfig{MaxIterations: 6, SystemPrompt: agentPrompt},
		// Forecast tool output is long and stale by the next turn.
		Processors: []core.Processor{core.ToolCallFilter{}, core.TokenLimiter{MaxChars: 16000}},
		Logger:     cfg.Logger,
	})
}
