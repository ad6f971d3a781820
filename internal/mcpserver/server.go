package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all fuelmap tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("fuelmap", "1.0.0")
	client := NewFuelMapClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolFindStations, h.HandleFindStations)
	s.AddTool(ToolNearbyStations, h.HandleNearbyStations)
	s.AddTool(ToolSearchStations, h.HandleSearchStations)
	s.AddTool(ToolSubmitPrice, h.HandleSubmitPrice)
	s.AddTool(ToolReportPrice, h.HandleReportPrice)
	s.AddTool(ToolGetUserReputation, h.HandleGetUserReputation)
	s.AddTool(ToolListBadges, h.HandleListBadges)

	return s
}
