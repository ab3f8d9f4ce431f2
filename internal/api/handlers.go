package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pledge/internal/market"
	"github.com/starford/pledge/internal/models"
	"github.com/starford/pledge/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	engine *market.Engine
}

// NewHandler creates a new Handler.
func NewHandler(engine *market.Engine) *Handler {
	return &Handler{engine: engine}
}

type validatable interface {
	Validate() error
}

// bind decodes and validates a JSON body, writing the 400 itself on failure.
func bind(w http.ResponseWriter, r *http.Request, v validatable) bool {
	if !decodeJSON(w, r, v) {
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error(), Code: "invalid_input"})
		return false
	}
	return true
}

func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}

// Initialize handles POST /api/protocol.
//
//	@Summary		Initialize the protocol registry
//	@Tags			protocol
//	@Accept			json
//	@Produce		json
//	@Param			X-Signer	header		string				true	"Authority signature"
//	@Param			body		body		InitializeRequest	true	"Registry parties"
//	@Success		201			{object}	models.Protocol
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/protocol [post]
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if !bind(w, r, &req) {
		return
	}
	p, err := h.engine.Initialize(r.Context(), signers(r), req.Authority, req.Treasury)
	if err != nil {
		writeError(w, "initialize", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProtocol handles GET /api/protocol.
//
//	@Summary		Get the protocol registry
//	@Tags			protocol
//	@Produce		json
//	@Success		200	{object}	models.Protocol
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/protocol [get]
func (h *Handler) GetProtocol(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Protocol(r.Context())
	if err != nil {
		writeError(w, "get protocol", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateLoan handles POST /api/loans.
//
//	@Summary		Originate a loan
//	@Tags			loans
//	@Accept			json
//	@Produce		json
//	@Param			X-Signer	header		string				true	"Borrower and lender signatures"
//	@Param			body		body		CreateLoanRequest	true	"Loan terms"
//	@Success		201			{object}	models.Loan
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/loans [post]
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if !bind(w, r, &req) {
		return
	}
	loan, err := h.engine.CreateLoan(r.Context(), signers(r), req.params())
	if err != nil {
		writeError(w, "create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// ListLoans handles GET /api/loans.
//
//	@Summary		List loans
//	@Tags			loans
//	@Produce		json
//	@Param			status		query		string	false	"Filter by status"	Enums(active, repaid, in_auction, liquidated)
//	@Param			borrower	query		string	false	"Filter by borrower"
//	@Param			lender		query		string	false	"Filter by lender"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	LoanListResponse
//	@Security		BearerAuth
//	@Router			/loans [get]
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(r)
	loans, err := h.engine.ListLoans(r.Context(), store.LoanFilter{
		Status:   models.LoanStatus(q.Get("status")),
		Borrower: q.Get("borrower"),
		Lender:   q.Get("lender"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, "list loans", err)
		return
	}
	writeJSON(w, http.StatusOK, LoanListResponse{Loans: loans})
}

// GetLoan handles GET /api/loans/{id}.
//
//	@Summary		Get a loan
//	@Tags			loans
//	@Produce		json
//	@Param			id	path		string	true	"Loan ID"
//	@Success		200	{object}	models.Loan
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/loans/{id} [get]
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.engine.Loan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// LoanHealth handles GET /api/loans/{id}/health.
//
//	@Summary		Value a loan at the current time
//	@Tags			loans
//	@Produce		json
//	@Param			id				path		string	true	"Loan ID"
//	@Param			oracle_value	query		int		false	"Collateral valuation; appraised when omitted"
//	@Success		200				{object}	LoanHealth
//	@Failure		400				{object}	errResponse
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/loans/{id}/health [get]
func (h *Handler) LoanHealth(w http.ResponseWriter, r *http.Request) {
	var value *uint64
	if raw := r.URL.Query().Get("oracle_value"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "oracle_value must be an unsigned integer", Code: "invalid_input"})
			return
		}
		value = &v
	}
	health, err := h.engine.LoanHealth(r.Context(), chi.URLParam(r, "id"), value)
	if err != nil {
		writeError(w, "loan health", err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// CreateVault handles POST /api/loans/{id}/vault.
//
//	@Summary		Open the custody vault of a loan
//	@Tags			loans
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Loan ID"
//	@Param			X-Signer	header		string				true	"Borrower signature"
//	@Param			body		body		CreateVaultRequest	true	"Collateral asset"
//	@Success		201			{object}	models.Vault
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/loans/{id}/vault [post]
func (h *Handler) CreateVault(w http.ResponseWriter, r *http.Request) {
	var req CreateVaultRequest
	if !bind(w, r, &req) {
		return
	}
	v, err := h.engine.CreateVault(r.Context(), signers(r), chi.URLParam(r, "id"), req.CollateralAsset)
	if err != nil {
		writeError(w, "create vault", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// DepositCollateral handles POST /api/loans/{id}/collateral.
//
//	@Summary		Deposit the collateral into the loan's vault
//	@Tags			loans
//	@Produce		json
//	@Param			id			path		string	true	"Loan ID"
//	@Param			X-Signer	header		string	true	"Borrower signature"
//	@Success		200			{object}	models.Vault
//	@Failure		402			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/loans/{id}/collateral [post]
func (h *Handler) DepositCollateral(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.DepositCollateral(r.Context(), signers(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "deposit collateral", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// RepayLoan handles POST /api/loans/{id}/repay.
//
//	@Summary		Repay a loan and release its collateral
//	@Tags			loans
//	@Produce		json
//	@Param			id			path		string	true	"Loan ID"
//	@Param			X-Signer	header		string	true	"Borrower and lender signatures"
//	@Success		200			{object}	market.Repayment
//	@Failure		402			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/loans/{id}/repay [post]
func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	rep, err := h.engine.RepayLoan(r.Context(), signers(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "repay loan", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Liquidate handles POST /api/loans/{id}/liquidate.
//
//	@Summary		Liquidate an expired or undercollateralized loan
//	@Tags			loans
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Loan ID"
//	@Param			X-Signer	header		string				true	"Liquidator signature"
//	@Param			body		body		LiquidateRequest	false	"Optional valuation"
//	@Success		201			{object}	market.Liquidation
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/loans/{id}/liquidate [post]
func (h *Handler) Liquidate(w http.ResponseWriter, r *http.Request) {
	var req LiquidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON body", Code: "invalid_input"})
		return
	}
	liq, err := h.engine.Liquidate(r.Context(), signers(r), chi.URLParam(r, "id"), req.OracleValue)
	if err != nil {
		writeError(w, "liquidate", err)
		return
	}
	writeJSON(w, http.StatusCreated, liq)
}

// ListAuctions handles GET /api/auctions.
//
//	@Summary		List auctions
//	@Tags			auctions
//	@Produce		json
//	@Param			status	query		string	false	"Filter by status"	Enums(active, settled, cancelled)
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	AuctionListResponse
//	@Security		BearerAuth
//	@Router			/auctions [get]
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	auctions, err := h.engine.ListAuctions(r.Context(), models.AuctionStatus(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		writeError(w, "list auctions", err)
		return
	}
	writeJSON(w, http.StatusOK, AuctionListResponse{Auctions: auctions})
}

// GetAuction handles GET /api/auctions/{id}.
//
//	@Summary		Get an auction
//	@Tags			auctions
//	@Produce		json
//	@Param			id	path		string	true	"Auction ID"
//	@Success		200	{object}	models.Auction
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/auctions/{id} [get]
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.Auction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get auction", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListBids handles GET /api/auctions/{id}/bids.
//
//	@Summary		Bid history of an auction
//	@Tags			auctions
//	@Produce		json
//	@Param			id	path		string	true	"Auction ID"
//	@Success		200	{object}	BidListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/auctions/{id}/bids [get]
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.engine.Bids(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "list bids", err)
		return
	}
	writeJSON(w, http.StatusOK, BidListResponse{Bids: bids})
}

// PlaceBid handles POST /api/auctions/{id}/bids.
//
//	@Summary		Place a bid
//	@Tags			auctions
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string		true	"Auction ID"
//	@Param			X-Signer	header		string		true	"Bidder signature"
//	@Param			body		body		BidRequest	true	"Bid"
//	@Success		201			{object}	models.Auction
//	@Failure		402			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/auctions/{id}/bids [post]
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if !bind(w, r, &req) {
		return
	}
	a, err := h.engine.PlaceBid(r.Context(), signers(r), chi.URLParam(r, "id"), req.Bidder, req.Amount)
	if err != nil {
		writeError(w, "place bid", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// SettleAuction handles POST /api/auctions/{id}/settle.
//
//	@Summary		Settle an ended auction
//	@Tags			auctions
//	@Produce		json
//	@Param			id	path		string	true	"Auction ID"
//	@Success		200	{object}	market.Settlement
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/auctions/{id}/settle [post]
func (h *Handler) SettleAuction(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.SettleAuction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "settle auction", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetAccount handles GET /api/accounts/{addr}.
//
//	@Summary		Get an account balance
//	@Tags			ledger
//	@Produce		json
//	@Param			addr	path		string	true	"Account address"
//	@Success		200		{object}	models.Account
//	@Security		BearerAuth
//	@Router			/accounts/{addr} [get]
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.engine.Account(r.Context(), chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Credit handles POST /api/accounts/{addr}/credit.
//
//	@Summary		Fund an account (authority only)
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			addr		path		string			true	"Account address"
//	@Param			X-Signer	header		string			true	"Authority signature"
//	@Param			body		body		CreditRequest	true	"Amount"
//	@Success		200			{object}	models.Account
//	@Failure		403			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/accounts/{addr}/credit [post]
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !bind(w, r, &req) {
		return
	}
	addr := chi.URLParam(r, "addr")
	bal, err := h.engine.Credit(r.Context(), signers(r), addr, req.Amount)
	if err != nil {
		writeError(w, "credit", err)
		return
	}
	writeJSON(w, http.StatusOK, models.Account{Address: addr, Balance: bal})
}

// MintAsset handles POST /api/assets.
//
//	@Summary		Register a collateral asset (authority only)
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			X-Signer	header		string				true	"Authority signature"
//	@Param			body		body		MintAssetRequest	true	"Asset and holder"
//	@Success		201			{object}	MintAssetRequest
//	@Failure		403			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets [post]
func (h *Handler) MintAsset(w http.ResponseWriter, r *http.Request) {
	var req MintAssetRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.engine.MintAsset(r.Context(), signers(r), req.Asset, req.Owner); err != nil {
		writeError(w, "mint asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GetAsset handles GET /api/assets/{asset}.
//
//	@Summary		Get the holder of an asset
//	@Tags			ledger
//	@Produce		json
//	@Param			asset	path		string	true	"Asset ID"
//	@Success		200		{object}	MintAssetRequest
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets/{asset} [get]
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	owner, err := h.engine.AssetOwner(r.Context(), asset)
	if err != nil {
		writeError(w, "get asset", err)
		return
	}
	writeJSON(w, http.StatusOK, MintAssetRequest{Asset: asset, Owner: owner})
}

// RecentEvents handles GET /api/events/recent.
//
//	@Summary		Recently committed market events
//	@Tags			events
//	@Produce		json
//	@Param			limit	query		int	false	"Max events"
//	@Success		200		{array}		models.Event
//	@Security		BearerAuth
//	@Router			/events/recent [get]
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r)
	events, err := h.engine.RecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, "recent events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
