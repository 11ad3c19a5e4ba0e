package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/courtclub/internal/funding"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/roster"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const headerWebhookKey = "X-Webhook-Key"

func (server *Server) handleSession(ctx *gin.Context) {
	claims := getClaims(ctx)
	ctx.JSON(http.StatusOK, gin.H{
		"user_id": claims.UserID,
		"role":    claims.Role.String(),
	})
}

func (server *Server) handleWallet(ctx *gin.Context) {
	claims := getClaims(ctx)
	server.respondWithWallet(ctx, claims.UserID)
}

func (server *Server) handleUserWallet(ctx *gin.Context) {
	server.respondWithWallet(ctx, ctx.Param("user_id"))
}

func (server *Server) respondWithWallet(ctx *gin.Context, userID string) {
	balance, err := server.ledgerService.Balance(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, "wallet", err)
		return
	}
	entries, err := server.ledgerService.ListEntries(ctx.Request.Context(), userID, ledger.EntryFilter{
		Limit: server.cfg.HistoryLimit,
	})
	if err != nil {
		server.respondError(ctx, "wallet", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": walletResponse{
		BalanceCents: balance.Int64(),
		Entries:      mapEntryPayloads(entries),
	}})
}

func (server *Server) handleWalletEntries(ctx *gin.Context) {
	claims := getClaims(ctx)
	filter, err := parseEntryFilter(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_filter", err.Error()))
		return
	}
	entries, err := server.ledgerService.ListEntries(ctx.Request.Context(), claims.UserID, filter)
	if err != nil {
		server.respondError(ctx, "wallet_entries", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": mapEntryPayloads(entries)})
}

func (server *Server) handleListEvents(ctx *gin.Context) {
	events, err := server.rosterService.ListEvents(ctx.Request.Context())
	if err != nil {
		server.respondError(ctx, "list_events", err)
		return
	}
	payloads := make([]eventPayload, 0, len(events))
	for _, event := range events {
		payloads = append(payloads, mapEventPayload(event))
	}
	ctx.JSON(http.StatusOK, gin.H{"events": payloads})
}

func (server *Server) handleGetEvent(ctx *gin.Context) {
	event, err := server.rosterService.Event(ctx.Request.Context(), ctx.Param("event_id"))
	if err != nil {
		server.respondError(ctx, "get_event", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": mapEventPayload(event)})
}

func (server *Server) handleRoster(ctx *gin.Context) {
	eventID := ctx.Param("event_id")
	event, err := server.rosterService.Event(ctx.Request.Context(), eventID)
	if err != nil {
		server.respondError(ctx, "roster", err)
		return
	}
	attendees, err := server.rosterService.Attendees(ctx.Request.Context(), eventID)
	if err != nil {
		server.respondError(ctx, "roster", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"roster": mapRegistrationPayloads(attendees, event.MaxPlayers)})
}

func (server *Server) handleRegistrationHistory(ctx *gin.Context) {
	eventID := ctx.Param("event_id")
	event, err := server.rosterService.Event(ctx.Request.Context(), eventID)
	if err != nil {
		server.respondError(ctx, "registration_history", err)
		return
	}
	history, err := server.rosterService.History(ctx.Request.Context(), eventID)
	if err != nil {
		server.respondError(ctx, "registration_history", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"history": mapRegistrationPayloads(history, event.MaxPlayers)})
}

func (server *Server) handleRegister(ctx *gin.Context) {
	claims := getClaims(ctx)
	registration, err := server.bookingService.Register(ctx.Request.Context(), ctx.Param("event_id"), claims.UserID)
	if err != nil {
		server.respondError(ctx, "register", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"registration": mapRegistrationPayload(registration, 0)})
}

func (server *Server) handleCancelRegistration(ctx *gin.Context) {
	claims := getClaims(ctx)
	vacated, err := server.bookingService.Cancel(ctx.Request.Context(), ctx.Param("event_id"), claims.UserID)
	if err != nil {
		server.respondError(ctx, "cancel_registration", err)
		return
	}
	response := gin.H{"canceled": mapRegistrationPayload(vacated.Canceled, 0)}
	if vacated.Promoted != nil {
		response["promoted"] = mapRegistrationPayload(*vacated.Promoted, 0)
	}
	ctx.JSON(http.StatusOK, response)
}

func (server *Server) handleCreateEvent(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request createEventRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	event, err := server.rosterService.CreateEvent(ctx.Request.Context(), roster.EventInput{
		Name:          request.Name,
		StartsAtUTC:   request.StartsAtUnixUTC,
		MaxPlayers:    request.MaxPlayers,
		CourtCount:    request.CourtCount,
		PriceCents:    request.PriceCents,
		CutoffSeconds: request.CutoffSeconds,
		FloorCents:    request.FloorCents,
		ChargeOnEntry: request.ChargeOnEntry,
		CreatedBy:     claims.UserID,
	})
	if err != nil {
		server.respondError(ctx, "create_event", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"event": mapEventPayload(event)})
}

func (server *Server) handleFinalizeEvent(ctx *gin.Context) {
	claims := getClaims(ctx)
	result, err := server.bookingService.Finalize(ctx.Request.Context(), ctx.Param("event_id"), claims.UserID)
	if err != nil {
		server.respondError(ctx, "finalize_event", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"charged_count": result.ChargedCount,
		"total_cents":   result.TotalCents,
	})
}

func (server *Server) handleCancelEvent(ctx *gin.Context) {
	claims := getClaims(ctx)
	if err := server.bookingService.CancelEvent(ctx.Request.Context(), ctx.Param("event_id"), claims.UserID); err != nil {
		server.respondError(ctx, "cancel_event", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "canceled"})
}

func (server *Server) handleDonation(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request amountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	newBalance, err := server.fundingService.CreateDonation(ctx.Request.Context(), claims.UserID, request.AmountCents)
	if err != nil {
		server.respondError(ctx, "donation", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance_cents": newBalance.Int64()})
}

func (server *Server) handleCreateDeposit(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request depositRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	deposit, err := server.fundingService.CreateDeposit(ctx.Request.Context(), request.UserID, request.AmountCents, claims.UserID)
	if err != nil {
		server.respondError(ctx, "create_deposit", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"deposit": mapDepositPayload(deposit)})
}

func (server *Server) handleRefundDeposit(ctx *gin.Context) {
	claims := getClaims(ctx)
	deposit, err := server.fundingService.RefundDeposit(ctx.Request.Context(), ctx.Param("deposit_id"), claims.UserID)
	if err != nil {
		server.respondError(ctx, "refund_deposit", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deposit": mapDepositPayload(deposit)})
}

func (server *Server) handleOwnDeposits(ctx *gin.Context) {
	claims := getClaims(ctx)
	server.respondWithDeposits(ctx, claims.UserID)
}

func (server *Server) handleUserDeposits(ctx *gin.Context) {
	server.respondWithDeposits(ctx, ctx.Param("user_id"))
}

func (server *Server) respondWithDeposits(ctx *gin.Context, userID string) {
	deposits, err := server.fundingService.ListDeposits(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, "list_deposits", err)
		return
	}
	payloads := make([]depositPayload, 0, len(deposits))
	for _, deposit := range deposits {
		payloads = append(payloads, mapDepositPayload(deposit))
	}
	ctx.JSON(http.StatusOK, gin.H{"deposits": payloads})
}

func (server *Server) handleAdjustment(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request adjustmentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	newBalance, err := server.fundingService.ManualAdjustment(ctx.Request.Context(), request.UserID, request.AmountCents, request.Description, claims.UserID)
	if err != nil {
		server.respondError(ctx, "adjustment", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance_cents": newBalance.Int64()})
}

func (server *Server) handleCorrectEntry(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request amountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	entry, err := server.ledgerService.CorrectEntry(ctx.Request.Context(), ctx.Param("entry_id"), ledger.AmountCents(request.AmountCents), claims.UserID)
	if err != nil {
		server.respondError(ctx, "correct_entry", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": mapEntryPayload(entry)})
}

func (server *Server) handleTopUpWebhook(ctx *gin.Context) {
	provided := ctx.GetHeader(headerWebhookKey)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(server.cfg.TopUpWebhookKey)) != 1 {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid webhook key"))
		return
	}
	var request topUpRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	newBalance, err := server.fundingService.TopUp(ctx.Request.Context(), request.UserID, request.AmountCents, request.TransactionID)
	if err != nil {
		server.respondError(ctx, "topup_webhook", err)
		return
	}
	server.logger.Info("top-up credited",
		zap.String("user_id", request.UserID),
		zap.String("transaction_id", request.TransactionID),
		zap.Int64("amount_cents", request.AmountCents),
	)
	ctx.JSON(http.StatusOK, gin.H{"balance_cents": newBalance.Int64()})
}

func parseEntryFilter(ctx *gin.Context) (ledger.EntryFilter, error) {
	filter := ledger.EntryFilter{}
	if raw := strings.TrimSpace(ctx.Query("types")); raw != "" {
		for _, piece := range strings.Split(raw, ",") {
			entryType, err := ledger.ParseEntryType(strings.TrimSpace(piece))
			if err != nil {
				return ledger.EntryFilter{}, err
			}
			filter.Types = append(filter.Types, entryType)
		}
	}
	var err error
	if filter.FromUnixUTC, err = parseUnixQuery(ctx, "from"); err != nil {
		return ledger.EntryFilter{}, err
	}
	if filter.BeforeUnixUTC, err = parseUnixQuery(ctx, "before"); err != nil {
		return ledger.EntryFilter{}, err
	}
	if raw := strings.TrimSpace(ctx.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return ledger.EntryFilter{}, err
		}
		filter.Limit = limit
	}
	return filter, nil
}

func parseUnixQuery(ctx *gin.Context, name string) (int64, error) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

type createEventRequest struct {
	Name            string `json:"name"`
	StartsAtUnixUTC int64  `json:"starts_at_unix_utc"`
	MaxPlayers      int    `json:"max_players"`
	CourtCount      int    `json:"court_count"`
	PriceCents      int64  `json:"price_cents"`
	CutoffSeconds   int64  `json:"cutoff_seconds"`
	FloorCents      *int64 `json:"floor_cents"`
	ChargeOnEntry   bool   `json:"charge_on_entry"`
}

type amountRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type depositRequest struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
}

type adjustmentRequest struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

type topUpRequest struct {
	UserID        string `json:"user_id"`
	AmountCents   int64  `json:"amount_cents"`
	TransactionID string `json:"transaction_id"`
}

type walletResponse struct {
	BalanceCents int64          `json:"balance_cents"`
	Entries      []entryPayload `json:"entries"`
}

type entryPayload struct {
	EntryID        string          `json:"entry_id"`
	UserID         string          `json:"user_id"`
	Type           string          `json:"type"`
	AmountCents    int64           `json:"amount_cents"`
	Description    string          `json:"description"`
	CreatedBy      string          `json:"created_by"`
	EventID        string          `json:"event_id,omitempty"`
	DepositID      string          `json:"deposit_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CorrectedBy    string          `json:"corrected_by,omitempty"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

type eventPayload struct {
	EventID         string `json:"event_id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	StartsAtUnixUTC int64  `json:"starts_at_unix_utc"`
	MaxPlayers      int    `json:"max_players"`
	CourtCount      int    `json:"court_count"`
	PriceCents      int64  `json:"price_cents"`
	CutoffSeconds   int64  `json:"cutoff_seconds"`
	FloorCents      *int64 `json:"floor_cents,omitempty"`
	ChargeOnEntry   bool   `json:"charge_on_entry"`
	CreatedBy       string `json:"created_by"`
	CreatedUnixUTC  int64  `json:"created_unix_utc"`
}

type registrationPayload struct {
	RegistrationID  string `json:"registration_id"`
	EventID         string `json:"event_id"`
	UserID          string `json:"user_id"`
	Status          string `json:"status"`
	Position        int    `json:"position"`
	Confirmed       bool   `json:"confirmed"`
	RegisteredAtUTC int64  `json:"registered_at_unix_utc"`
}

type depositPayload struct {
	DepositID      string `json:"deposit_id"`
	UserID         string `json:"user_id"`
	AmountCents    int64  `json:"amount_cents"`
	Status         string `json:"status"`
	CreatedBy      string `json:"created_by"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
	RefundedBy     string `json:"refunded_by,omitempty"`
	RefundedAtUTC  int64  `json:"refunded_at_unix_utc,omitempty"`
}

func mapEntryPayloads(entries []ledger.Entry) []entryPayload {
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, mapEntryPayload(entry))
	}
	return payloads
}

func mapEntryPayload(entry ledger.Entry) entryPayload {
	var metadata json.RawMessage
	if entry.MetadataJSON != "" {
		metadata = json.RawMessage(entry.MetadataJSON)
	}
	return entryPayload{
		EntryID:        entry.EntryID,
		UserID:         entry.UserID,
		Type:           entry.Type.String(),
		AmountCents:    entry.AmountCents.Int64(),
		Description:    entry.Description,
		CreatedBy:      entry.CreatedBy,
		EventID:        entry.EventID,
		DepositID:      entry.DepositID,
		IdempotencyKey: entry.IdempotencyKey,
		Metadata:       metadata,
		CorrectedBy:    entry.CorrectedBy,
		CreatedUnixUTC: entry.CreatedUnixUTC,
	}
}

func mapEventPayload(event roster.Event) eventPayload {
	return eventPayload{
		EventID:         event.EventID,
		Name:            event.Name,
		Status:          event.Status.String(),
		StartsAtUnixUTC: event.StartsAtUTC,
		MaxPlayers:      event.MaxPlayers,
		CourtCount:      event.CourtCount,
		PriceCents:      event.PriceCents,
		CutoffSeconds:   event.CutoffSeconds,
		FloorCents:      event.FloorCents,
		ChargeOnEntry:   event.ChargeOnEntry,
		CreatedBy:       event.CreatedBy,
		CreatedUnixUTC:  event.CreatedUnixUTC,
	}
}

func mapRegistrationPayloads(registrations []roster.Registration, maxPlayers int) []registrationPayload {
	payloads := make([]registrationPayload, 0, len(registrations))
	for _, registration := range registrations {
		payloads = append(payloads, mapRegistrationPayload(registration, maxPlayers))
	}
	return payloads
}

func mapRegistrationPayload(registration roster.Registration, maxPlayers int) registrationPayload {
	confirmed := registration.Status == roster.StatusRegistered
	if maxPlayers > 0 {
		confirmed = registration.Confirmed(maxPlayers)
	}
	return registrationPayload{
		RegistrationID:  registration.RegistrationID,
		EventID:         registration.EventID,
		UserID:          registration.UserID,
		Status:          registration.Status.String(),
		Position:        registration.Position,
		Confirmed:       confirmed,
		RegisteredAtUTC: registration.RegisteredAt,
	}
}

func mapDepositPayload(deposit funding.Deposit) depositPayload {
	return depositPayload{
		DepositID:      deposit.DepositID,
		UserID:         deposit.UserID,
		AmountCents:    deposit.AmountCents,
		Status:         deposit.Status.String(),
		CreatedBy:      deposit.CreatedBy,
		CreatedUnixUTC: deposit.CreatedUnixUTC,
		RefundedBy:     deposit.RefundedBy,
		RefundedAtUTC:  deposit.RefundedAtUTC,
	}
}
