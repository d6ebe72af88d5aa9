// Package httpapi exposes the sponsor protocol over HTTP (spec §6):
// POST /tx/new, POST /tx/submit, GET /. Routing uses
// github.com/julienschmidt/httprouter and CORS uses github.com/rs/cors,
// both teacher go.mod dependencies; grounded on
// original_source/api/src/main.rs and
// original_source/api/src/endpoints/tx/{request_gas,transmit_tx}.rs.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/Apocentre/sui-sponsor/internal/apierr"
	"github.com/Apocentre/sui-sponsor/internal/gaspool"
	"github.com/Apocentre/sui-sponsor/internal/sponsor"
	"github.com/Apocentre/sui-sponsor/internal/suiclient"
	"github.com/Apocentre/sui-sponsor/internal/suilog"
)

// Handlers wires the sponsor protocol onto HTTP request/response bodies.
type Handlers struct {
	sponsor  *sponsor.Sponsor
	pool     *gaspool.Pool
	chain    suiclient.Chain
	finality suiclient.Finality
	log      *suilog.Logger
}

// NewHandlers wires Handlers from the service's core components.
func NewHandlers(s *sponsor.Sponsor, pool *gaspool.Pool, chain suiclient.Chain, finality suiclient.Finality, log *suilog.Logger) *Handlers {
	return &Handlers{sponsor: s, pool: pool, chain: chain, finality: finality, log: log}
}

// requestGasBody mirrors api/src/endpoints/tx/request_gas.rs's Body.
type requestGasBody struct {
	TxData string `json:"tx_data"`
}

// requestGasResponse mirrors that endpoint's Response.
type requestGasResponse struct {
	GasData sponsor.GasData `json:"gas_data"`
}

// submitTxBody mirrors transmit_tx.rs's camelCase Body.
type submitTxBody struct {
	Signature             string `json:"signature"`
	TransactionBlockBytes string `json:"transactionBlockBytes"`
}

func writeError(w http.ResponseWriter, log *suilog.Logger, err error) {
	log.Error("request failed", "err", err)
	status := apierr.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RequestGas handles POST /tx/new (spec §6): decode, run admission and lease
// a coin, respond with the GasData the client must embed before signing.
func (h *Handlers) RequestGas(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body requestGasBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.log, apierr.Decode("httpapi.RequestGas", err))
		return
	}

	txBytes, err := base64.StdEncoding.DecodeString(body.TxData)
	if err != nil {
		writeError(w, h.log, apierr.Decode("httpapi.RequestGas", err))
		return
	}

	start := time.Now()
	gasData, err := h.sponsor.RequestGas(r.Context(), txBytes)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("request_gas", "elapsed", time.Since(start))

	writeJSON(w, http.StatusOK, requestGasResponse{GasData: gasData})
}

// SubmitTx handles POST /tx/submit (spec §6): countersign the client's final
// transaction, execute it on-chain with both signatures, then finalize the
// gas coin's pool membership based on its post-execution balance.
func (h *Handlers) SubmitTx(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body submitTxBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.log, apierr.Decode("httpapi.SubmitTx", err))
		return
	}

	clientSig, err := base64.StdEncoding.DecodeString(body.Signature)
	if err != nil {
		writeError(w, h.log, apierr.Decode("httpapi.SubmitTx", err))
		return
	}
	txBytes, err := base64.StdEncoding.DecodeString(body.TransactionBlockBytes)
	if err != nil {
		writeError(w, h.log, apierr.Decode("httpapi.SubmitTx", err))
		return
	}

	sponsorSig, err := h.sponsor.SignTx(r.Context(), txBytes)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	result, err := h.chain.ExecuteTransactionBlock(r.Context(), txBytes, [][]byte{clientSig, sponsorSig.Bytes()}, h.finality)
	if err != nil {
		writeError(w, h.log, apierr.Chain("httpapi.SubmitTx", err))
		return
	}
	if len(result.Errors) > 0 {
		writeError(w, h.log, apierr.Chain("httpapi.SubmitTx", httpError(result.Errors[0])))
		return
	}

	if err := h.sponsor.Finalize(r.Context(), txBytes); err != nil {
		// The transaction already landed on-chain; a finalize failure only
		// means the coin's pool bookkeeping is stale, not that submission
		// failed, so this is logged rather than surfaced as a request error.
		h.log.Error("finalize after submit", "digest", result.Digest, "err", err)
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

// Health handles GET / (spec §6): a minimal liveness/diagnostic endpoint.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"leased": h.pool.LeasedCount(),
	})
}

type httpErrorString string

func (e httpErrorString) Error() string { return string(e) }

func httpError(s string) error { return httpErrorString(s) }

// NewRouter wires Handlers onto an httprouter.Router under /tx/new,
// /tx/submit and / (spec §6 route scope: original_source/api/src/endpoints/
// tx/config.rs's "/tx" scope plus root).
func NewRouter(h *Handlers) *httprouter.Router {
	r := httprouter.New()
	r.POST("/tx/new", h.RequestGas)
	r.POST("/tx/submit", h.SubmitTx)
	r.GET("/", h.Health)
	return r
}

// WithCORS wraps handler in the allowed_origin_fn semantics from
// original_source/api/src/main.rs: an entry in origins matches the request
// Origin exactly, OR a literal "*" entry matches any origin (SPEC_FULL
// supplement 3) — stricter than a bare wildcard CORS config.
func WithCORS(handler http.Handler, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			for _, o := range origins {
				if o == origin || o == "*" {
					return true
				}
			}
			return false
		},
		AllowedMethods: []string{"GET", "POST", "PUT"},
		AllowedHeaders: []string{"Authorization", "Accept", "Content-Type"},
		MaxAge:         3600,
	})
	return c.Handler(handler)
}
