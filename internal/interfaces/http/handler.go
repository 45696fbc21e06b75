package httpinterface

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeengine/internal/core/domain"
)

const maxBodySize = 1 << 20

type handler struct {
	opts ServiceOpts
}

func newHandler(opts ServiceOpts) *handler {
	return &handler{opts}
}

// **** Trades ****

func (h *handler) listTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.opts.ProtocolSvc.ListTrades(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	openOnly := r.URL.Query().Get("open") == "true"
	res := make([]tradeInfo, 0, len(trades))
	for _, t := range trades {
		if openOnly && t.IsClosed() {
			continue
		}
		res = append(res, newTradeInfo(t))
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) getTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.opts.ProtocolSvc.GetTrade(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if trade == nil {
		writeError(w, domain.ErrTradeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newTradeInfo(*trade))
}

func (h *handler) confirmPaymentStarted(w http.ResponseWriter, r *http.Request) {
	trade, err := h.opts.ProtocolSvc.ConfirmPaymentStarted(
		r.Context(), chi.URLParam(r, "id"),
	)
	writeTrade(w, trade, err)
}

func (h *handler) confirmPaymentReceived(w http.ResponseWriter, r *http.Request) {
	trade, err := h.opts.ProtocolSvc.ConfirmPaymentReceived(
		r.Context(), chi.URLParam(r, "id"),
	)
	writeTrade(w, trade, err)
}

func (h *handler) resumeTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.opts.ProtocolSvc.ResumeTrade(r.Context(), chi.URLParam(r, "id"))
	writeTrade(w, trade, err)
}

func (h *handler) openDispute(w http.ResponseWriter, r *http.Request) {
	var req disputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	trade, err := h.opts.ProtocolSvc.OpenDispute(
		r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Reason),
	)
	writeTrade(w, trade, err)
}

// **** Offers ****

func (h *handler) listOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.opts.OfferBook.ListOffers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	res := make([]offerInfo, 0, len(offers))
	for _, o := range offers {
		res = append(res, newOfferInfo(o))
	}
	writeJSON(w, http.StatusOK, res)
}

// placeOffer creates a maker trade. Terms missing from the request are
// filled with the ones of the engine.
func (h *handler) placeOffer(w http.ResponseWriter, r *http.Request) {
	var req offerInfo
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	offer, err := req.toDomain()
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	c := &offer.Contract
	if c.Network == "" {
		c.Network = h.opts.Network
	}
	if c.FeeRate.IsZero() {
		c.FeeRate = h.opts.FeeRate
	}
	if offer.Variant == domain.VariantEscrow {
		if c.FeeAddress == "" {
			c.FeeAddress = h.opts.FeeAddress
		}
		if c.RefundAddress == "" {
			c.RefundAddress = h.opts.RefundAddress
		}
	}

	trade, err := h.opts.ProtocolSvc.PlaceOffer(r.Context(), offer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTradeInfo(*trade))
}

// importOffer adds an offer placed by another engine to the local offer book.
func (h *handler) importOffer(w http.ResponseWriter, r *http.Request) {
	var req offerInfo
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	offer, err := req.toDomain()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if offer.MakerAddress == "" || len(offer.MakerPubKey) <= 0 {
		writeBadRequest(w, domain.ErrOfferMissingMaker)
		return
	}

	if err := h.opts.OfferBook.AddOffer(r.Context(), offer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{offer.ID})
}

func (h *handler) removeOffer(w http.ResponseWriter, r *http.Request) {
	if err := h.opts.OfferBook.RemoveOffer(
		r.Context(), chi.URLParam(r, "id"),
	); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) takeOffer(w http.ResponseWriter, r *http.Request) {
	trade, err := h.opts.ProtocolSvc.TakeOffer(r.Context(), chi.URLParam(r, "id"))
	writeTrade(w, trade, err)
}

func (h *handler) initiateSwap(w http.ResponseWriter, r *http.Request) {
	trade, err := h.opts.ProtocolSvc.InitiateSwap(
		r.Context(), chi.URLParam(r, "id"),
	)
	writeTrade(w, trade, err)
}

// **** Webhooks ****

func (h *handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.opts.WebhookSvc.ListWebhooks(
		r.Context(), r.URL.Query().Get("topic"),
	)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (h *handler) addWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Endpoint == "" {
		writeBadRequest(w, errors.New("missing webhook endpoint"))
		return
	}
	id, err := h.opts.WebhookSvc.AddWebhook(
		r.Context(), req.Topic, req.Endpoint, req.Secret,
	)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{id})
}

func (h *handler) removeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.opts.WebhookSvc.RemoveWebhook(
		r.Context(), chi.URLParam(r, "id"),
	); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// **** Wallet ****

func (h *handler) deriveAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := h.opts.WalletSvc.DeriveReceiveAddress(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addressResponse{addr})
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	total, locked, err := h.opts.WalletSvc.Balance(r.Context(), asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Asset:     asset,
		Total:     total,
		Locked:    locked,
		Available: total - locked,
	})
}

// **** Utils ****

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid payload")
	}
	return nil
}

func writeTrade(w http.ResponseWriter, trade *domain.Trade, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTradeInfo(*trade))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), errorResponse{err.Error()})
}

var (
	notFoundErrors = []error{
		domain.ErrTradeNotFound,
		protocol.ErrMissingOffer,
	}
	conflictErrors = []error{
		domain.ErrTradeAlreadyExists,
		protocol.ErrUnexpectedMessage,
		protocol.ErrTradeClosed,
		protocol.ErrNothingToResume,
	}
	invalidErrors = []error{
		domain.ErrOfferMissingID,
		domain.ErrOfferMissingMaker,
		domain.ErrSwapOfferMustSell,
		domain.ErrContractInvalidAmount,
		domain.ErrContractMissingAsset,
		domain.ErrContractInvalidFeeRate,
		domain.ErrContractInvalidDeposit,
		domain.ErrContractMissingAddress,
		protocol.ErrQuoteAssetNotPolicy,
	}
	unprocessableErrors = []error{
		protocol.ErrRestrictionsNotMet,
		protocol.ErrInsufficientFunds,
	}
)

func errorStatus(err error) int {
	for _, group := range []struct {
		errs   []error
		status int
	}{
		{notFoundErrors, http.StatusNotFound},
		{conflictErrors, http.StatusConflict},
		{invalidErrors, http.StatusBadRequest},
		{unprocessableErrors, http.StatusUnprocessableEntity},
	} {
		for _, e := range group.errs {
			if errors.Is(err, e) {
				return group.status
			}
		}
	}
	return http.StatusInternalServerError
}
