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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter exposes the read-only queries and the inbound collaborator events
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", handler.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(actorMiddleware)

		r.Get("/wallets/{owner_id}", handler.getWallet)
		r.Get("/wallets/{owner_id}/transactions", handler.getHistory)
		r.Get("/wallets/{owner_id}/tax-liabilities", handler.getTaxLiabilities)

		r.Get("/escrow/mismatches", handler.getMismatches)
		r.Get("/escrow/{payment_id}", handler.getEscrow)
		r.Post("/gateway/confirmations", handler.confirmPayment)

		r.Post("/payouts", handler.requestPayout)
		r.Get("/payouts/{payout_id}", handler.getPayout)
		r.Post("/payouts/{payout_id}/complete", handler.completePayout)
		r.Post("/payouts/{payout_id}/fail", handler.failPayout)
	})
	return r
}

// NewServer wraps the router with the configured timeouts
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}
