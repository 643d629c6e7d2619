/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"escrow-ledger-go/internal/api"
	"escrow-ledger-go/internal/escrow"
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/payout"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

type Handler struct {
	queries *api.LedgerService
	escrow  *escrow.Machine
	payouts *payout.Workflow
}

func NewHandler(queries *api.LedgerService, machine *escrow.Machine, payouts *payout.Workflow) *Handler {
	return &Handler{queries: queries, escrow: machine, payouts: payouts}
}

type confirmationResponse struct {
	Payment *models.EscrowPayment `json:"payment"`
	Applied bool                  `json:"applied"`
}

type payoutRequestBody struct {
	OwnerId     string          `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	TaxCategory string          `json:"tax_category"`
}

type completeBody struct {
	ExternalRef string `json:"external_ref"`
}

type failBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.queries.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error(), middleware.GetReqID(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "ok")
}

func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.queries.GetWalletBalance(r.Context(), chi.URLParam(r, "owner_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, wallet)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	txns, err := h.queries.GetLedgerHistory(r.Context(), chi.URLParam(r, "owner_id"), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, txns)
}

func (h *Handler) getTaxLiabilities(w http.ResponseWriter, r *http.Request) {
	liabilities, err := h.queries.GetTaxLiabilities(r.Context(), chi.URLParam(r, "owner_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, liabilities)
}

func (h *Handler) getEscrow(w http.ResponseWriter, r *http.Request) {
	status, err := h.queries.GetEscrowStatus(r.Context(), chi.URLParam(r, "payment_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, status)
}

func (h *Handler) getMismatches(w http.ResponseWriter, r *http.Request) {
	limit, _, ok := pagination(w, r)
	if !ok {
		return
	}
	events, err := h.queries.GetGatewayMismatches(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, events)
}

// confirmPayment receives the gateway collaborator's confirmation event
func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var conf models.GatewayConfirmation
	if !decode(w, r, &conf) {
		return
	}
	payment, applied, err := h.escrow.Confirm(r.Context(), actorFromContext(r.Context()), conf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if applied {
		status = http.StatusCreated
	}
	writeSuccess(w, status, confirmationResponse{Payment: payment, Applied: applied})
}

func (h *Handler) requestPayout(w http.ResponseWriter, r *http.Request) {
	var body payoutRequestBody
	if !decode(w, r, &body) {
		return
	}
	p, err := h.payouts.Request(r.Context(), actorFromContext(r.Context()), payout.RequestParams{
		OwnerId:     strings.TrimSpace(body.OwnerId),
		Amount:      body.Amount,
		Destination: strings.TrimSpace(body.Destination),
		TaxCategory: strings.TrimSpace(body.TaxCategory),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, p)
}

func (h *Handler) getPayout(w http.ResponseWriter, r *http.Request) {
	p, err := h.queries.GetPayoutStatus(r.Context(), chi.URLParam(r, "payout_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, p)
}

// completePayout is the transfer collaborator's success callback
func (h *Handler) completePayout(w http.ResponseWriter, r *http.Request) {
	var body completeBody
	if !decode(w, r, &body) {
		return
	}
	p, err := h.payouts.Complete(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "payout_id"), strings.TrimSpace(body.ExternalRef))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, p)
}

// failPayout is the transfer collaborator's failure callback
func (h *Handler) failPayout(w http.ResponseWriter, r *http.Request) {
	var body failBody
	if !decode(w, r, &body) {
		return
	}
	p, err := h.payouts.Fail(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "payout_id"), body.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, p)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	writeError(w, status, code, err.Error(), middleware.GetReqID(r.Context()))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), middleware.GetReqID(r.Context()))
		return false
	}
	return true
}

func pagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	var limit, offset int
	for name, dst := range map[string]*int{"limit": &limit, "offset": &offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", name+" must be a non-negative integer", middleware.GetReqID(r.Context()))
			return 0, 0, false
		}
		*dst = v
	}
	return limit, offset, true
}
