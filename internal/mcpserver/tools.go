package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the fuelmap MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolFindStations = mcp.NewTool("find_stations",
	mcp.WithDescription(
		"Browse fuel stations on fuelmap with their latest crowd-reported prices. "+
			"Returns station names, addresses, coordinates and the most recent approved "+
			"price per fuel type. Use this to answer 'where can I buy fuel' questions."),
	mcp.WithString("name",
		mcp.Description("Filter by station name (case-insensitive substring match)")),
	mcp.WithString("fuel_type",
		mcp.Description("Only return stations with a recent price for this fuel: 'PMS' (petrol), 'AGO' (diesel), or 'LPG' (cooking gas)"),
		mcp.Enum("PMS", "AGO", "LPG")),
	mcp.WithString("max_price",
		mcp.Description("Maximum price per litre (e.g. '650'). Only returns stations at or below this price.")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of stations to return (default 20)")),
)

var ToolNearbyStations = mcp.NewTool("nearby_stations",
	mcp.WithDescription(
		"Find fuel stations near a geographic point, closest first. "+
			"Returns each station with its coordinates and latest prices. "+
			"Use this when the user gives a location or coordinates."),
	mcp.WithNumber("lat",
		mcp.Required(),
		mcp.Description("Latitude of the search point (e.g. 6.45 for Lagos)")),
	mcp.WithNumber("lon",
		mcp.Required(),
		mcp.Description("Longitude of the search point (e.g. 3.40 for Lagos)")),
	mcp.WithNumber("radius",
		mcp.Description("Search radius in meters (default 5000)")),
)

var ToolSearchStations = mcp.NewTool("search_stations",
	mcp.WithDescription(
		"Search for a fuel station by name or street address. "+
			"Combines fuzzy matching against known stations with an external "+
			"address lookup, so it also finds places not yet on fuelmap."),
	mcp.WithString("query",
		mcp.Description("Station name to search for (e.g. 'Mobil Ikeja')")),
	mcp.WithString("address",
		mcp.Description("Street address or area to search around")),
)

var ToolSubmitPrice = mcp.NewTool("submit_price",
	mcp.WithDescription(
		"Report a fuel price you observed at a station. "+
			"The station is matched or created from the name and address, and the "+
			"report goes through community moderation. Obvious outliers are flagged "+
			"for admin review instead of being published immediately."),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("Station name as shown on its signage (e.g. 'Total Energies Lekki')")),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Street address of the station, used to locate it on the map")),
	mcp.WithString("fuel_type",
		mcp.Required(),
		mcp.Description("Fuel being priced: 'PMS' (petrol), 'AGO' (diesel), or 'LPG' (cooking gas)"),
		mcp.Enum("PMS", "AGO", "LPG")),
	mcp.WithNumber("price",
		mcp.Required(),
		mcp.Description("Observed price per litre, between 50 and 2000")),
	mcp.WithString("queue_status",
		mcp.Description("How long the queue at the station was"),
		mcp.Enum("no-queue", "short", "long")),
)

var ToolReportPrice = mcp.NewTool("report_price",
	mcp.WithDescription(
		"Flag a published price as inaccurate. "+
			"Each user can report a price once; after enough reports the price is "+
			"pulled from the public listing and sent to admin review."),
	mcp.WithString("station_id",
		mcp.Required(),
		mcp.Description("The station ID from a previous find_stations or nearby_stations result")),
	mcp.WithString("price_id",
		mcp.Required(),
		mcp.Description("The price entry ID to report")),
)

var ToolGetUserReputation = mcp.NewTool("get_user_reputation",
	mcp.WithDescription(
		"Get the reputation, trust level and badges for a fuelmap user. "+
			"Trust levels (Newbie/Scout/Contributor/Trusted/Guardian) reflect how "+
			"reliable a contributor's price reports have been."),
	mcp.WithString("user_id",
		mcp.Description("The user's ID (e.g. 'usr_...'). Omit to look up your own account.")),
)

var ToolListBadges = mcp.NewTool("list_badges",
	mcp.WithDescription(
		"List every badge that can be earned on fuelmap, with the name and "+
			"description of each. Useful for explaining what a badge on a user's "+
			"profile means."),
)
