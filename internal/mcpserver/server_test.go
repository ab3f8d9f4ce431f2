package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/pledge/internal/market"
	"github.com/starford/pledge/internal/models"
	"github.com/starford/pledge/internal/store"
	"github.com/starford/pledge/internal/testutil"
)

type testEnv struct {
	srv    *Server
	engine *market.Engine
	clock  *testutil.Clock
}

func testServer(t *testing.T) testEnv {
	t.Helper()

	clock := testutil.NewClock(time.Unix(1_700_000_000, 0))
	engine := market.NewEngine(testutil.TestStore(t), market.WithClock(clock))

	ctx := context.Background()
	admin := market.Signers{"authority"}
	if _, err := engine.Initialize(ctx, admin, "authority", "treasury"); err != nil {
		t.Fatal(err)
	}
	if err := engine.MintAsset(ctx, admin, "nft-1", "alice"); err != nil {
		t.Fatal(err)
	}
	for _, addr := range []string{"alice", "carol"} {
		if _, err := engine.Credit(ctx, admin, addr, 1_000_000); err != nil {
			t.Fatal(err)
		}
	}

	return testEnv{srv: New(engine), engine: engine, clock: clock}
}

// fundedLoan originates alice's loan from bob and deposits the collateral.
func (e testEnv) fundedLoan(t *testing.T) *models.Loan {
	t.Helper()
	ctx := context.Background()
	loan, err := e.engine.CreateLoan(ctx, market.Signers{"alice", "bob"}, market.CreateLoanParams{
		Borrower:        "alice",
		Lender:          "bob",
		CollateralAsset: "nft-1",
		LoanAmount:      1000,
		DurationSeconds: 86400,
		InterestRateBps: 500,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.engine.CreateVault(ctx, market.Signers{"alice"}, loan.ID, "nft-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.engine.DepositCollateral(ctx, market.Signers{"alice"}, loan.ID); err != nil {
		t.Fatal(err)
	}
	return loan
}

// auction liquidates a funded loan and places one bid from carol.
func (e testEnv) auction(t *testing.T) *models.Auction {
	t.Helper()
	ctx := context.Background()
	loan := e.fundedLoan(t)
	value := uint64(500)
	liq, err := e.engine.Liquidate(ctx, market.Signers{"dave"}, loan.ID, &value)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.engine.PlaceBid(ctx, market.Signers{"carol"}, liq.Auction.ID, "carol", 600); err != nil {
		t.Fatal(err)
	}
	return liq.Auction
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so dispatch to the handlers directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_protocol":
		result, err = srv.getProtocol(ctx, req)
	case "get_loan":
		result, err = srv.getLoan(ctx, req)
	case "list_loans":
		result, err = srv.listLoans(ctx, req)
	case "loan_health":
		result, err = srv.loanHealth(ctx, req)
	case "get_auction":
		result, err = srv.getAuction(ctx, req)
	case "list_auctions":
		result, err = srv.listAuctions(ctx, req)
	case "list_bids":
		result, err = srv.listBids(ctx, req)
	case "settle_auction":
		result, err = srv.settleAuction(ctx, req)
	case "get_market_rules":
		result, err = srv.getMarketRules(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decodeResult[T any](t *testing.T, r *mcp.CallToolResult) T {
	t.Helper()
	var v T
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
	if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	return v
}

func TestGetProtocol(t *testing.T) {
	env := testServer(t)
	env.fundedLoan(t)

	p := decodeResult[models.Protocol](t, callTool(t, env.srv, "get_protocol", map[string]interface{}{}))
	if p.Authority != "authority" || p.Treasury != "treasury" {
		t.Errorf("protocol = %+v", p)
	}
	if p.TotalLoans != 1 || p.TotalVolume != 1000 {
		t.Errorf("counters = %d/%d, want 1/1000", p.TotalLoans, p.TotalVolume)
	}
}

func TestGetLoan(t *testing.T) {
	env := testServer(t)
	loan := env.fundedLoan(t)

	got := decodeResult[models.Loan](t, callTool(t, env.srv, "get_loan", map[string]interface{}{"id": loan.ID}))
	if got.ID != loan.ID || got.Status != models.LoanActive {
		t.Errorf("loan = %+v", got)
	}
}

func TestGetLoanMissing(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "get_loan", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing loan")
	}
	r = callTool(t, env.srv, "get_loan", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing id argument")
	}
}

func TestListLoans(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "list_loans", map[string]interface{}{})
	if text := resultText(r); text != "no loans found" {
		t.Errorf("empty list = %q", text)
	}

	env.fundedLoan(t)
	loans := decodeResult[[]models.Loan](t, callTool(t, env.srv, "list_loans", map[string]interface{}{
		"borrower": "alice",
		"status":   "active",
	}))
	if len(loans) != 1 {
		t.Fatalf("loans = %d, want 1", len(loans))
	}

	r = callTool(t, env.srv, "list_loans", map[string]interface{}{"lender": "carol"})
	if text := resultText(r); text != "no loans found" {
		t.Errorf("filtered list = %q", text)
	}
}

func TestListLimitDefaultsToStorePage(t *testing.T) {
	env := testServer(t)
	env.fundedLoan(t)

	want := fmt.Sprintf("default %d", store.DefaultPageSize)
	if !strings.Contains(limitDescription, want) {
		t.Errorf("limit description = %q, want it to mention %q", limitDescription, want)
	}

	loans := decodeResult[[]models.Loan](t, callTool(t, env.srv, "list_loans", map[string]interface{}{}))
	if len(loans) != 1 {
		t.Errorf("loans without limit = %d, want 1", len(loans))
	}
	loans = decodeResult[[]models.Loan](t, callTool(t, env.srv, "list_loans", map[string]interface{}{"limit": float64(1)}))
	if len(loans) != 1 {
		t.Errorf("loans with limit 1 = %d, want 1", len(loans))
	}
}

func TestLoanHealth(t *testing.T) {
	env := testServer(t)
	loan := env.fundedLoan(t)

	h := decodeResult[market.LoanHealth](t, callTool(t, env.srv, "loan_health", map[string]interface{}{
		"id":           loan.ID,
		"oracle_value": float64(500),
	}))
	if h.HealthRatioBps != 5000 {
		t.Errorf("ratio = %d, want 5000", h.HealthRatioBps)
	}
	if h.Healthy || !h.Liquidatable {
		t.Errorf("health = %+v, want unhealthy and liquidatable", h)
	}

	h = decodeResult[market.LoanHealth](t, callTool(t, env.srv, "loan_health", map[string]interface{}{
		"id":           loan.ID,
		"oracle_value": float64(2000),
	}))
	if !h.Healthy || h.Liquidatable {
		t.Errorf("health = %+v, want healthy", h)
	}
}

func TestLoanHealthRejectsBadValue(t *testing.T) {
	env := testServer(t)
	loan := env.fundedLoan(t)

	for _, v := range []interface{}{-1.0, 1.5, "lots"} {
		r := callTool(t, env.srv, "loan_health", map[string]interface{}{"id": loan.ID, "oracle_value": v})
		if !r.IsError {
			t.Errorf("oracle_value %v: expected error", v)
		}
	}
}

func TestLoanHealthWithoutOracle(t *testing.T) {
	env := testServer(t)
	loan := env.fundedLoan(t)

	r := callTool(t, env.srv, "loan_health", map[string]interface{}{"id": loan.ID})
	if !r.IsError {
		t.Fatal("expected error when no appraiser is configured")
	}
	if !strings.Contains(resultText(r), "oracle") {
		t.Errorf("error = %q", resultText(r))
	}
}

func TestAuctionTools(t *testing.T) {
	env := testServer(t)
	a := env.auction(t)

	got := decodeResult[models.Auction](t, callTool(t, env.srv, "get_auction", map[string]interface{}{"id": a.ID}))
	if got.CurrentBid != 600 || got.CurrentBidder != "carol" {
		t.Errorf("auction = %+v", got)
	}

	auctions := decodeResult[[]models.Auction](t, callTool(t, env.srv, "list_auctions", map[string]interface{}{"status": "active"}))
	if len(auctions) != 1 {
		t.Errorf("active auctions = %d, want 1", len(auctions))
	}

	bids := decodeResult[[]models.Bid](t, callTool(t, env.srv, "list_bids", map[string]interface{}{"id": a.ID}))
	if len(bids) != 1 || bids[0].Amount != 600 {
		t.Errorf("bids = %+v", bids)
	}
}

func TestSettleAuction(t *testing.T) {
	env := testServer(t)
	a := env.auction(t)

	r := callTool(t, env.srv, "settle_auction", map[string]interface{}{"id": a.ID})
	if !r.IsError {
		t.Fatal("expected error settling an auction before its end")
	}

	env.clock.Advance(env.engine.Params().AuctionDuration)
	res := decodeResult[market.Settlement](t, callTool(t, env.srv, "settle_auction", map[string]interface{}{"id": a.ID}))
	if res.Auction.Status != models.AuctionSettled || res.Loan.Status != models.LoanLiquidated {
		t.Errorf("settlement = %+v / %+v", res.Auction, res.Loan)
	}

	owner, err := env.engine.AssetOwner(context.Background(), "nft-1")
	if err != nil {
		t.Fatal(err)
	}
	if owner != "carol" {
		t.Errorf("owner = %q, want carol", owner)
	}
}

func TestMarketRules(t *testing.T) {
	env := testServer(t)

	text := resultText(callTool(t, env.srv, "get_market_rules", map[string]interface{}{}))
	for _, want := range []string{"liquidation_threshold_bps: 8000", "auction_duration: 24h0m0s", "max_loan_amount: unbounded"} {
		if !strings.Contains(text, want) {
			t.Errorf("rules missing %q", want)
		}
	}

	contents, err := env.srv.readMarketRulesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.Text != text {
		t.Error("resource text differs from tool output")
	}
}
