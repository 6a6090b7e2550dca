package advisory

import "github.com/KamdynS/bedrock-agents/a2a"

// Version is reported in the agent cards.
const Version = "1.0.0"

var bearer = &a2a.Authentication{Schemes: []string{"Bearer"}}

// PortfolioManagerCard describes the entry agent served at url.
func PortfolioManagerCard(url string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:           "Portfolio Manager",
		Description:    "Routes investment questions to market analysis and trade execution and summarises your trades.",
		URL:            url,
		Version:        Version,
		Authentication: bearer,
		Skills: []a2a.AgentSkill{
			{
				ID:          "portfolio_advice",
				Name:        "Portfolio advice",
				Description: "Answers market, trading and portfolio questions by delegating to specialist agents.",
				Tags:        []string{"portfolio", "routing"},
				Examples:    []string{"What is the outlook for AMZN?", "Buy 10 shares of AAPL", "Show my portfolio"},
			},
		},
	}
}

// MarketAnalysisCard describes the market-analysis agent served at url.
func MarketAnalysisCard(url string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:           "Market Analysis",
		Description:    "Analyses stocks and sectors with live quotes when available.",
		URL:            url,
		Version:        Version,
		Authentication: bearer,
		Skills: []a2a.AgentSkill{
			{
				ID:          "market_analysis",
				Name:        "Market analysis",
				Description: "Outlook, risks and key figures for one or more tickers.",
				Tags:        []string{"stocks", "analysis"},
				Examples:    []string{"Analyse NVDA and AMD"},
			},
		},
	}
}

// TradeExecutionCard describes the trade-execution agent served at url.
func TradeExecutionCard(url string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:           "Trade Execution",
		Description:    "Validates buy and sell orders and records them in the trade log.",
		URL:            url,
		Version:        Version,
		Authentication: bearer,
		Skills: []a2a.AgentSkill{
			{
				ID:          "execute_trade",
				Name:        "Execute trade",
				Description: "Parses an order such as \"buy 10 AAPL\" and records it. Asks for missing details.",
				Tags:        []string{"trading"},
				Examples:    []string{"Sell 5 shares of MSFT"},
			},
		},
	}
}
