// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Pledge market tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pledge/internal/market"
	"github.com/starford/pledge/internal/models"
	"github.com/starford/pledge/internal/store"
)

const rulesURI = "pledge://market-rules"

var limitDescription = fmt.Sprintf("Maximum results (default %d, at most %d)", store.DefaultPageSize, store.MaxPageSize)

// Server wraps the MCP server with Pledge tools.
type Server struct {
	mcp    *server.MCPServer
	engine *market.Engine
}

// New creates a new MCP server with all Pledge tools registered.
func New(engine *market.Engine) *Server {
	s := &Server{engine: engine}

	s.mcp = server.NewMCPServer(
		"Pledge",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_protocol",
		mcp.WithDescription("Read the protocol registry: authority, treasury and lifetime loan counters."),
	), s.getProtocol)

	s.mcp.AddTool(mcp.NewTool("get_loan",
		mcp.WithDescription("Read a single loan by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Loan id")),
	), s.getLoan)

	s.mcp.AddTool(mcp.NewTool("list_loans",
		mcp.WithDescription("List loans, optionally filtered by status, borrower or lender."),
		mcp.WithString("status", mcp.Description("active, repaid, in_auction or liquidated")),
		mcp.WithString("borrower", mcp.Description("Borrower address")),
		mcp.WithString("lender", mcp.Description("Lender address")),
		mcp.WithNumber("limit", mcp.Description(limitDescription)),
	), s.listLoans)

	s.mcp.AddTool(mcp.NewTool("loan_health",
		mcp.WithDescription("Evaluate a loan's collateral ratio, accrued interest and liquidation eligibility. "+
			"Read the market rules via the get_market_rules tool or the "+rulesURI+" resource first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Loan id")),
		mcp.WithNumber("oracle_value", mcp.Description("Collateral value; omit to use the configured oracle")),
	), s.loanHealth)

	s.mcp.AddTool(mcp.NewTool("get_auction",
		mcp.WithDescription("Read a liquidation auction by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Auction id")),
	), s.getAuction)

	s.mcp.AddTool(mcp.NewTool("list_auctions",
		mcp.WithDescription("List liquidation auctions, optionally filtered by status."),
		mcp.WithString("status", mcp.Description("active, settled or cancelled")),
		mcp.WithNumber("limit", mcp.Description(limitDescription)),
	), s.listAuctions)

	s.mcp.AddTool(mcp.NewTool("list_bids",
		mcp.WithDescription("List the bid history of an auction in the order bids were placed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Auction id")),
	), s.listBids)

	s.mcp.AddTool(mcp.NewTool("settle_auction",
		mcp.WithDescription("Settle an ended auction, transferring the collateral to the highest bidder. "+
			"Requires no signature."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Auction id")),
	), s.settleAuction)

	s.mcp.AddTool(mcp.NewTool("get_market_rules",
		mcp.WithDescription("Returns the lending rules and the current market parameters."),
	), s.getMarketRules)

	// Resource: market rules.
	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Market Rules",
			mcp.WithResourceDescription("Loan lifecycle, interest, liquidation and auction rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMarketRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getProtocol(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.engine.Protocol(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(p)
}

func (s *Server) getLoan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, err := s.engine.Loan(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(l)
}

func (s *Server) listLoans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loans, err := s.engine.ListLoans(ctx, store.LoanFilter{
		Status:   models.LoanStatus(req.GetString("status", "")),
		Borrower: req.GetString("borrower", ""),
		Lender:   req.GetString("lender", ""),
		Limit:    req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(loans) == 0 {
		return mcp.NewToolResultText("no loans found"), nil
	}
	return jsonResult(loans)
}

func (s *Server) loanHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var value *uint64
	if _, ok := req.GetArguments()["oracle_value"]; ok {
		f, err := req.RequireFloat("oracle_value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if f < 0 || f >= math.MaxUint64 || f != math.Trunc(f) {
			return mcp.NewToolResultError(fmt.Sprintf("oracle_value must be a non-negative integer, got %v", f)), nil
		}
		v := uint64(f)
		value = &v
	}
	h, err := s.engine.LoanHealth(ctx, id, value)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(h)
}

func (s *Server) getAuction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.engine.Auction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(a)
}

func (s *Server) listAuctions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.AuctionStatus(req.GetString("status", ""))
	auctions, err := s.engine.ListAuctions(ctx, status, req.GetInt("limit", 0), 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(auctions) == 0 {
		return mcp.NewToolResultText("no auctions found"), nil
	}
	return jsonResult(auctions)
}

func (s *Server) listBids(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bids, err := s.engine.Bids(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bids) == 0 {
		return mcp.NewToolResultText("no bids placed"), nil
	}
	return jsonResult(bids)
}

func (s *Server) settleAuction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.SettleAuction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getMarketRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(marketRules(s.engine.Params(), s.engine.Policy())), nil
}

func (s *Server) readMarketRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     marketRules(s.engine.Params(), s.engine.Policy()),
		},
	}, nil
}
