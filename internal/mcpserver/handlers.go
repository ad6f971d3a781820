package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *FuelMapClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *FuelMapClient) *Handlers {
	return &Handlers{client: client}
}

// HandleFindStations lists stations with their latest prices.
func (h *Handlers) HandleFindStations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	fuelType := req.GetString("fuel_type", "")
	maxPrice := req.GetString("max_price", "")
	limit := req.GetInt("limit", 0)

	raw, err := h.client.ListStations(ctx, name, fuelType, maxPrice, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list stations: %v", err)), nil
	}

	text, err := formatStationList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stations: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleNearbyStations finds stations around a point.
func (h *Handlers) HandleNearbyStations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	lat, latOK := floatArg(args, "lat")
	lon, lonOK := floatArg(args, "lon")
	if !latOK || !lonOK {
		return mcp.NewToolResultError("lat and lon are required"), nil
	}
	radius, _ := floatArg(args, "radius")

	raw, err := h.client.NearbyStations(ctx, lat, lon, radius)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to find nearby stations: %v", err)), nil
	}

	text, err := formatStationList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stations: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleSearchStations searches by name or address.
func (h *Handlers) HandleSearchStations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	address := req.GetString("address", "")
	if query == "" && address == "" {
		return mcp.NewToolResultError("query or address is required"), nil
	}

	raw, err := h.client.SearchStations(ctx, query, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}

	text, err := formatSearchResults(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse search results: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleSubmitPrice submits a price observation.
func (h *Handlers) HandleSubmitPrice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}
	fuelType := req.GetString("fuel_type", "")
	if fuelType == "" {
		return mcp.NewToolResultError("fuel_type is required"), nil
	}
	price, ok := floatArg(req.GetArguments(), "price")
	if !ok {
		return mcp.NewToolResultError("price is required"), nil
	}
	queueStatus := req.GetString("queue_status", "")

	raw, err := h.client.SubmitPrice(ctx, name, address, fuelType, price, queueStatus)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit price: %v", err)), nil
	}

	text, err := formatSubmitResult(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse submission result: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleReportPrice downvotes a price entry.
func (h *Handlers) HandleReportPrice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stationID := req.GetString("station_id", "")
	if stationID == "" {
		return mcp.NewToolResultError("station_id is required"), nil
	}
	priceID := req.GetString("price_id", "")
	if priceID == "" {
		return mcp.NewToolResultError("price_id is required"), nil
	}

	_, err := h.client.ReportPrice(ctx, stationID, priceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to report price: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Price %s reported as inaccurate.\n"+
			"If enough users agree, the price will be pulled from the listing "+
			"and sent to admin review.", priceID)), nil
}

// HandleGetUserReputation returns the badge summary for a user.
func (h *Handlers) HandleGetUserReputation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "me")

	raw, err := h.client.GetBadgeSummary(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get reputation: %v", err)), nil
	}

	text, err := formatBadgeSummary(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reputation: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListBadges returns the badge catalog.
func (h *Handlers) HandleListBadges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListBadges(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list badges: %v", err)), nil
	}

	text, err := formatBadgeCatalog(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse badges: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

type priceInfo struct {
	ID          string  `json:"id"`
	FuelType    string  `json:"fuelType"`
	Amount      float64 `json:"price"`
	QueueStatus string  `json:"queueStatus"`
	Status      string  `json:"status"`
}

type stationInfo struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Address string      `json:"address"`
	Lat     float64     `json:"lat"`
	Lon     float64     `json:"lon"`
	Prices  []priceInfo `json:"prices"`
}

func formatStationList(raw json.RawMessage) (string, error) {
	var wrapper struct {
		Stations []stationInfo `json:"stations"`
		Total    int           `json:"total"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return "", fmt.Errorf("unexpected stations response format")
	}
	if len(wrapper.Stations) == 0 {
		return "No stations found matching your criteria.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d station(s):\n\n", len(wrapper.Stations))
	for i, s := range wrapper.Stations {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, s.Name, s.ID)
		fmt.Fprintf(&sb, "   %s\n", s.Address)
		fmt.Fprintf(&sb, "   Location: %.5f, %.5f\n", s.Lat, s.Lon)
		writeLatestPrices(&sb, s.Prices)
		if i < len(wrapper.Stations)-1 {
			sb.WriteString("\n")
		}
	}
	if wrapper.Total > len(wrapper.Stations) {
		fmt.Fprintf(&sb, "\n(%d stations total, narrow the filter or page through to see more)\n", wrapper.Total)
	}
	return sb.String(), nil
}

// writeLatestPrices renders the most recent entry per fuel type. Prices
// arrive oldest first, so the last entry for a fuel wins.
func writeLatestPrices(sb *strings.Builder, prices []priceInfo) {
	latest := map[string]priceInfo{}
	for _, p := range prices {
		latest[p.FuelType] = p
	}
	if len(latest) == 0 {
		sb.WriteString("   No prices reported yet\n")
		return
	}

	fuels := make([]string, 0, len(latest))
	for f := range latest {
		fuels = append(fuels, f)
	}
	sort.Strings(fuels)

	for _, f := range fuels {
		p := latest[f]
		fmt.Fprintf(sb, "   %s: %.2f", f, p.Amount)
		if p.QueueStatus != "" && p.QueueStatus != "no-queue" {
			fmt.Fprintf(sb, " (%s queue)", p.QueueStatus)
		}
		if p.Status != "" && p.Status != "approved" {
			fmt.Fprintf(sb, " [%s]", p.Status)
		}
		fmt.Fprintf(sb, " (price id %s)\n", p.ID)
	}
}

func formatSearchResults(raw json.RawMessage) (string, error) {
	var resp struct {
		Local    []stationInfo `json:"local"`
		External []struct {
			Name    string  `json:"name"`
			Address string  `json:"address"`
			Lat     float64 `json:"lat"`
			Lon     float64 `json:"lon"`
		} `json:"external"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected search response format")
	}
	if len(resp.Local) == 0 && len(resp.External) == 0 {
		return "No stations or places found for that search.", nil
	}

	var sb strings.Builder
	if len(resp.Local) > 0 {
		fmt.Fprintf(&sb, "Known stations (%d):\n", len(resp.Local))
		for i, s := range resp.Local {
			fmt.Fprintf(&sb, "%d. %s (%s)\n   %s\n", i+1, s.Name, s.ID, s.Address)
			writeLatestPrices(&sb, s.Prices)
		}
	}
	if len(resp.External) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Other places matching the search (%d, not yet on fuelmap):\n", len(resp.External))
		for i, e := range resp.External {
			fmt.Fprintf(&sb, "%d. %s\n   %s (%.5f, %.5f)\n", i+1, e.Name, e.Address, e.Lat, e.Lon)
		}
	}
	return sb.String(), nil
}

func formatSubmitResult(raw json.RawMessage) (string, error) {
	var resp struct {
		Station *stationInfo `json:"station"`
		Price   *priceInfo   `json:"price"`
		Created bool         `json:"created"`
		Flagged bool         `json:"flagged"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected submission response format")
	}
	if resp.Station == nil || resp.Price == nil {
		return "", fmt.Errorf("submission response missing station or price")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Price submitted: %s at %.2f for %s (%s)\n",
		resp.Price.FuelType, resp.Price.Amount, resp.Station.Name, resp.Station.ID)
	if resp.Created {
		sb.WriteString("This is a new station, added to the map from your report.\n")
	}
	if resp.Flagged {
		sb.WriteString("The price looks unusual compared to recent reports at this station, " +
			"so it is held for admin review before being published.\n")
	} else {
		sb.WriteString("The price is live on the public listing.\n")
	}
	return sb.String(), nil
}

func formatBadgeSummary(raw json.RawMessage) (string, error) {
	var resp struct {
		TrustLevel string `json:"trustLevel"`
		Reputation int64  `json:"reputation"`
		Badges     []struct {
			Key         string `json:"key"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"badges"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected reputation response format")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Trust level: %s\n", resp.TrustLevel)
	fmt.Fprintf(&sb, "Reputation: %d\n", resp.Reputation)
	if len(resp.Badges) == 0 {
		sb.WriteString("Badges: none yet\n")
		return sb.String(), nil
	}
	fmt.Fprintf(&sb, "Badges (%d):\n", len(resp.Badges))
	for _, b := range resp.Badges {
		fmt.Fprintf(&sb, "  %s: %s\n", b.Name, b.Description)
	}
	return sb.String(), nil
}

func formatBadgeCatalog(raw json.RawMessage) (string, error) {
	var resp struct {
		Badges map[string]struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"badges"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Badges == nil {
		return "", fmt.Errorf("unexpected badges response format")
	}

	keys := make([]string, 0, len(resp.Badges))
	for k := range resp.Badges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Available badges (%d):\n\n", len(keys))
	for _, k := range keys {
		b := resp.Badges[k]
		fmt.Fprintf(&sb, "%s (%s)\n   %s\n", b.Name, k, b.Description)
	}
	return sb.String(), nil
}

// floatArg extracts a numeric argument, accepting JSON numbers only.
func floatArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
