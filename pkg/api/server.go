// Package api exposes the wallet RPC surface over HTTP: gorilla/mux
// routing plus encoding/json bodies.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/kaswalletd/kaswalletd/pkg/log"
	"github.com/kaswalletd/kaswalletd/pkg/metrics"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
	"github.com/kaswalletd/kaswalletd/pkg/walletservice"
)

// Server is the HTTP front end over a walletservice.Service.
type Server struct {
	router  *mux.Router
	svc     *walletservice.Service
	metrics *metrics.Metrics
	listen  string
	logger  *log.Logger
}

// NewServer constructs a Server and wires its routes.
func NewServer(svc *walletservice.Service, m *metrics.Metrics, listen string, logger *log.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		svc:     svc,
		metrics: m,
		listen:  listen,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/version", s.handleGetVersion).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/addresses", s.handleGetAddresses).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/addresses/new", s.handleNewAddress).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/balance", s.handleGetBalance).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/utxos", s.handleGetUtxos).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/transactions/unsigned", s.handleCreateUnsignedTransactions).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/transactions/sign", s.handleSign).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/transactions/broadcast", s.handleBroadcast).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/send", s.handleSend).Methods(http.MethodPost)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Start blocks serving the wallet RPC surface on s.listen.
func (s *Server) Start() error {
	return http.ListenAndServe(s.listen, s.countingMiddleware(s.router))
}

// countingMiddleware increments kaswalletd_rpc_requests_total per method
// path.
func (s *Server) countingMiddleware(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RPCRequestsTotal.WithLabelValues(r.URL.Path).Inc()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.svc.GetVersion()})
}

func (s *Server) handleGetAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.svc.GetAddresses()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"addresses": addrs})
}

func (s *Server) handleNewAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := s.svc.NewAddress()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	includePerAddress := r.URL.Query().Get("per_address") == "true"
	result, err := s.svc.GetBalance(r.Context(), includePerAddress)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetUtxos(w http.ResponseWriter, r *http.Request) {
	var addresses []string
	if raw := r.URL.Query().Get("addresses"); raw != "" {
		addresses = strings.Split(raw, ",")
	}
	includePending, _ := strconv.ParseBool(r.URL.Query().Get("include_pending"))
	includeDust, _ := strconv.ParseBool(r.URL.Query().Get("include_dust"))

	utxos, err := s.svc.GetUtxos(r.Context(), addresses, includePending, includeDust)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]walletservice.UtxoView{"utxos": utxos})
}

type createUnsignedTransactionsRequest struct {
	walletmodel.PaymentRequest
	ManualSelection bool `json:"manual_selection"`
}

func (s *Server) handleCreateUnsignedTransactions(w http.ResponseWriter, r *http.Request) {
	var req createUnsignedTransactionsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	txs, err := s.svc.CreateUnsignedTransactions(r.Context(), req.PaymentRequest, req.ManualSelection)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]walletmodel.WalletSignableTransaction{"transactions": txs})
}

type signRequest struct {
	Transactions []walletmodel.WalletSignableTransaction `json:"transactions"`
	Password     string                                  `json:"password"`
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	signed, err := s.svc.Sign(req.Transactions, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]walletmodel.WalletSignableTransaction{"transactions": signed})
}

type broadcastRequest struct {
	Transactions []walletmodel.WalletSignableTransaction `json:"transactions"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	txids, err := s.svc.Broadcast(r.Context(), req.Transactions)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"transaction_ids": txids})
}

type sendRequest struct {
	walletmodel.PaymentRequest
	Password        string `json:"password"`
	ManualSelection bool   `json:"manual_selection"`
}

type sendResponse struct {
	TransactionIDs     []string                                `json:"transaction_ids"`
	SignedTransactions []walletmodel.WalletSignableTransaction `json:"signed_transactions"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	result, err := s.svc.Send(r.Context(), req.PaymentRequest, req.Password, req.ManualSelection)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{TransactionIDs: result.TransactionIDs, SignedTransactions: result.SignedTransactions})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, walletmodel.WrapUserInputError(err, "decoding request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the three-way error taxonomy onto HTTP status codes: bad
// input is 400, a sanity-check failure and any other infrastructure error
// are both 500 since neither is the caller's fault to fix, but a sanity
// check failure is additionally logged at error level since it always
// indicates a daemon bug.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var userErr *walletmodel.UserInputError
	var sanityErr *walletmodel.SanityCheckFailed

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &userErr):
		status = http.StatusBadRequest
	case errors.As(err, &sanityErr):
		s.logger.Errorf("sanity check failed: %v", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
