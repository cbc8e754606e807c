package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tiersale/core/types"
	"tiersale/crypto"
	"tiersale/explorer"
	"tiersale/native/presale"
)

const (
	maxRequestBytes = 1 << 20 // 1 MiB
	shutdownTimeout = 10 * time.Second
)

// Ledger is the view of the node served over HTTP.
type Ledger interface {
	ChainID() uint64
	Schedule() presale.Schedule
	SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	SaleState() (*presale.SaleState, error)
	Purchase(buyer [20]byte) (*presale.Purchase, error)
	Quote(amount uint64) (*presale.Quote, error)
	Balance(asset string, addr [20]byte) (*big.Int, error)
	Nonce(addr [20]byte) (uint64, error)
}

// History serves indexed purchase and lifecycle events.
type History interface {
	History(ctx context.Context, buyer string, page explorer.Page) ([]explorer.PurchaseRecord, error)
	Lifecycle(ctx context.Context, page explorer.Page) ([]explorer.LifecycleRecord, error)
	Stats(ctx context.Context) (*explorer.Summary, error)
}

type Config struct {
	ServiceName string
	RateLimit   RateLimit
}

type Server struct {
	ledger  Ledger
	history History
	stream  EventStream
	logger  *slog.Logger
	limiter *RateLimiter
	obs     *Observability
	router  chi.Router

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer builds the HTTP API. history may be nil when the explorer is
// disabled; the history routes then answer 503.
func NewServer(ledger Ledger, history History, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rpc")
	s := &Server{
		ledger:  ledger,
		history: history,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimit, logger),
		obs:     NewObservability(cfg.ServiceName, logger),
		closing: make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(s.instrument("status")).Get("/status", s.handleStatus)
		v1.With(s.instrument("transactions.submit")).Post("/transactions", s.handleSubmit)
		v1.With(s.instrument("presale.state")).Get("/presale", s.handleSaleState)
		v1.With(s.instrument("presale.schedule")).Get("/presale/schedule", s.handleSchedule)
		v1.With(s.instrument("presale.quote")).Get("/presale/quote", s.handleQuote)
		v1.With(s.instrument("presale.events")).Get("/presale/events", s.handleLifecycle)
		v1.With(s.instrument("presale.stats")).Get("/presale/stats", s.handleStats)
		v1.With(s.instrument("presale.stream")).Get("/presale/stream", s.handleStream)
		v1.With(s.instrument("presale.purchase")).Get("/presale/purchases/{address}", s.handlePurchase)
		v1.With(s.instrument("presale.history")).Get("/presale/purchases/{address}/history", s.handleHistory)
		v1.With(s.instrument("accounts.get")).Get("/accounts/{address}", s.handleAccount)
	})
	return r
}

func (s *Server) instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return s.obs.Middleware(route)(s.limiter.Middleware(route)(next))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.closeStreams()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := StatusView{ChainID: s.ledger.ChainID()}
	if _, err := s.ledger.SaleState(); err == nil {
		status.Initialized = true
	} else if !errors.Is(err, presale.ErrNotInitialized) {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	var tx types.Transaction
	if err := dec.Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("decode transaction: %v", err))
		return
	}
	receipt, err := s.ledger.SubmitTransaction(r.Context(), &tx)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleSaleState(w http.ResponseWriter, r *http.Request) {
	sale, err := s.ledger.SaleState()
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	view, err := newSaleView(sale)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	schedule := s.ledger.Schedule()
	if sale, err := s.ledger.SaleState(); err == nil {
		schedule = sale.Schedule()
	} else if !errors.Is(err, presale.ErrNotInitialized) {
		s.writeLedgerError(w, r, err)
		return
	}
	view, err := newScheduleView(schedule)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseUint(strings.TrimSpace(r.URL.Query().Get("amount")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "amount must be an unsigned integer")
		return
	}
	quote, err := s.ledger.Quote(amount)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteView(quote))
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	record, err := s.ledger.Purchase(addr.Raw())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PurchaseView{Buyer: addr.String(), Amount: record.Amount})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	page, ok := pageParams(w, r)
	if !ok || !s.requireHistory(w) {
		return
	}
	rows, err := s.history.History(r.Context(), addr.String(), page)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryView{Buyer: addr.String(), Purchases: rows})
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r)
	if !ok || !s.requireHistory(w) {
		return
	}
	rows, err := s.history.Lifecycle(r.Context(), page)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LifecycleView{Events: rows})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	assets, err := s.accountAssets(r)
	if err != nil {
		if code := presale.Code(err); code != "" {
			writeError(w, StatusForCode(code), code, err.Error())
			return
		}
		s.writeLedgerError(w, r, err)
		return
	}
	nonce, err := s.ledger.Nonce(addr.Raw())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	view := AccountView{Address: addr.String(), Nonce: nonce, Balances: make(map[string]string, len(assets))}
	for _, asset := range assets {
		balance, err := s.ledger.Balance(asset, addr.Raw())
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		view.Balances[asset] = balance.String()
	}
	writeJSON(w, http.StatusOK, view)
}

// accountAssets returns the assets named in ?asset=, or the two assets of the
// sale when none are named.
func (s *Server) accountAssets(r *http.Request) ([]string, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("asset")); raw != "" {
		var assets []string
		for _, part := range strings.Split(raw, ",") {
			asset, err := presale.NormalizeAsset(part)
			if err != nil {
				return nil, err
			}
			assets = append(assets, asset)
		}
		return assets, nil
	}
	sale, err := s.ledger.SaleState()
	if errors.Is(err, presale.ErrNotInitialized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []string{sale.PaymentAsset, sale.SaleAsset}, nil
}

func (s *Server) addressParam(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidAddress, err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, codeHistoryUnavailable, "purchase history index is disabled")
		return false
	}
	return true
}

func pageParams(w http.ResponseWriter, r *http.Request) (explorer.Page, bool) {
	var page explorer.Page
	query := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, name+" must be a non-negative integer")
			return explorer.Page{}, false
		}
		*dst = value
	}
	return page, true
}
