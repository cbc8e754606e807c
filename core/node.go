package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"tiersale/core/events"
	"tiersale/core/genesis"
	corestate "tiersale/core/state"
	txcheck "tiersale/core/tx"
	"tiersale/core/types"
	"tiersale/crypto"
	"tiersale/native/presale"
	"tiersale/observability"
)

var (
	// ErrInvalidChainID is returned for transactions signed for another ledger.
	ErrInvalidChainID = errors.New("node: chain id mismatch")
	// ErrInvalidNonce is returned when a transaction's nonce is not the next
	// one expected from its sender, including replays of committed
	// transactions.
	ErrInvalidNonce = errors.New("node: invalid nonce")
)

// Options configures a Node.
type Options struct {
	ChainID   uint64
	Schedule  presale.Schedule
	WalletCap uint64
	Deployer  [20]byte
	Genesis   *genesis.Spec

	// AllowMigrate tolerates a stored schema version this binary does not
	// expect.
	AllowMigrate bool
	Emitter      events.Emitter
	Logger       *slog.Logger
	Now          func() int64
}

// Node is the central controller, wiring the state layer, the presale engine
// and the event consumers together. It is safe for concurrent use.
type Node struct {
	state     *corestate.Manager
	chainID   uint64
	schedule  presale.Schedule
	walletCap uint64
	deployer  [20]byte
	nowFn     func() int64
	logger    *slog.Logger
	metrics   *observability.PresaleMetrics

	publishMu sync.Mutex
	emitterMu sync.RWMutex
	emitter   events.Emitter

	// beforeCommit runs once a transaction has executed and before it
	// competes for the commit. Tests use it to line up concurrent writers.
	beforeCommit func()
}

// NewNode opens a node on top of manager. A ledger without a schema version is
// initialised from opts.Genesis; an existing ledger must match the current
// schema.
func NewNode(manager *corestate.Manager, opts Options) (*Node, error) {
	if manager == nil {
		return nil, fmt.Errorf("node: state manager must not be nil")
	}
	if err := opts.Schedule.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if _, exists, err := manager.StateVersion(); err != nil {
		return nil, err
	} else if !exists {
		if err := genesis.Apply(manager, opts.Genesis); err != nil {
			return nil, err
		}
		logger.Info("ledger initialised from genesis", "allocations", genesisCount(opts.Genesis))
	} else if err := corestate.EnsureStateVersion(manager, opts.AllowMigrate); err != nil {
		return nil, err
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n := &Node{
		state:     manager,
		chainID:   opts.ChainID,
		schedule:  opts.Schedule,
		walletCap: opts.WalletCap,
		deployer:  opts.Deployer,
		nowFn:     opts.Now,
		logger:    logger.With("component", "node"),
		metrics:   observability.Presale(),
		emitter:   emitter,
	}
	if sale, ok, err := manager.PresaleState(); err == nil && ok {
		n.metrics.SetProgress(sale.TotalSold, sale.CurrentTier())
	}
	return n, nil
}

func genesisCount(spec *genesis.Spec) int {
	if spec == nil {
		return 0
	}
	return len(spec.Alloc)
}

// ChainID returns the chain identifier transactions must carry.
func (n *Node) ChainID() uint64 { return n.chainID }

// Schedule returns the price schedule applied when the sale is initialised.
func (n *Node) Schedule() presale.Schedule { return n.schedule }

// SetEmitter replaces the consumer of committed events.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.emitterMu.Lock()
	n.emitter = emitter
	n.emitterMu.Unlock()
}

func (n *Node) currentEmitter() events.Emitter {
	n.emitterMu.RLock()
	defer n.emitterMu.RUnlock()
	return n.emitter
}

func (n *Node) newEngine(txn *corestate.Txn, emitter events.Emitter) *presale.Engine {
	engine := presale.NewEngine(n.schedule)
	engine.SetState(txn)
	engine.SetEmitter(emitter)
	engine.SetWalletCap(n.walletCap)
	engine.SetDeployer(n.deployer)
	if n.nowFn != nil {
		engine.SetNowFunc(n.nowFn)
	}
	return engine
}

// SubmitTransaction authenticates tx, applies it against a fresh state
// transaction and commits the result. Events are published only after the
// commit succeeds. A concurrent commit touching the same records makes the
// call fail with state.ErrConflict; the caller may resubmit.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	receipt, err := n.apply(tx)
	txType := "invalid"
	if tx != nil {
		txType = tx.Type.String()
	}
	code := ErrorCode(err)
	if err != nil && code == "" {
		code = "error"
	}
	n.metrics.RecordTransaction(txType, code, time.Since(start))
	if err != nil {
		if errors.Is(err, corestate.ErrConflict) {
			n.metrics.RecordConflict()
		}
		n.logger.Debug("transaction rejected", "type", txType, "code", code, "error", err)
		return nil, err
	}
	n.logger.Info("transaction committed",
		"type", receipt.Type,
		"sender", receipt.Sender,
		"nonce", receipt.Nonce,
		"txHash", receipt.TxHash)
	return receipt, nil
}

func (n *Node) apply(tx *types.Transaction) (*types.Receipt, error) {
	if err := txcheck.CheckStateless(tx); err != nil {
		return nil, err
	}
	if tx.ChainID != n.chainID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidChainID, tx.ChainID, n.chainID)
	}
	sender, err := tx.Sender()
	if err != nil {
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	from := sender.Raw()

	txn := n.state.Begin()
	committed := false
	defer func() {
		if !committed {
			txn.Discard()
		}
	}()

	expected, err := txn.Nonce(from)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != expected {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonce, tx.Nonce, expected)
	}

	buf := &events.Buffer{}
	engine := n.newEngine(txn, buf)
	var progress *presale.PurchaseResult
	switch tx.Type {
	case types.TxTypeInitialize:
		args, err := txcheck.DecodeInitialize(tx)
		if err != nil {
			return nil, err
		}
		if _, err := engine.Initialize(from, args.Owner, args.Treasury, args.PaymentAsset, args.SaleAsset); err != nil {
			return nil, err
		}
	case types.TxTypeBuy:
		result, err := engine.Buy(from, from, tx.Amount)
		if err != nil {
			return nil, err
		}
		progress = result
	case types.TxTypeEnd:
		if err := engine.End(from); err != nil {
			return nil, err
		}
	case types.TxTypeReactivate:
		if err := engine.Reactivate(from); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", txcheck.ErrUnknownType, byte(tx.Type))
	}
	if err := txn.SetNonce(from, expected+1); err != nil {
		return nil, err
	}

	if n.beforeCommit != nil {
		n.beforeCommit()
	}
	n.publishMu.Lock()
	defer n.publishMu.Unlock()
	committed = true
	if err := txn.Commit(); err != nil {
		return nil, err
	}

	pending := buf.Events()
	receipt := &types.Receipt{
		TxHash: "0x" + hex.EncodeToString(hash[:]),
		Type:   tx.Type.String(),
		Sender: sender.String(),
		Nonce:  tx.Nonce,
		Events: make([]*types.Event, 0, len(pending)),
	}
	for _, evt := range pending {
		receipt.Events = append(receipt.Events, evt.Event())
	}
	buf.FlushTo(n.currentEmitter())
	if progress != nil {
		n.metrics.SetProgress(progress.TotalSold, progress.NextTier)
	}
	return receipt, nil
}

// SaleState returns the committed sale record.
func (n *Node) SaleState() (*presale.SaleState, error) {
	sale, ok, err := n.state.PresaleState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, presale.ErrNotInitialized
	}
	return sale, nil
}

// Purchase returns the committed purchase record of buyer.
func (n *Node) Purchase(buyer [20]byte) (*presale.Purchase, error) {
	record, ok, err := n.state.PresalePurchase(buyer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, presale.ErrPurchaseNotFound
	}
	return record, nil
}

// Quote prices a purchase of amount units against the committed sale state.
func (n *Node) Quote(amount uint64) (*presale.Quote, error) {
	txn := n.state.Begin()
	defer txn.Discard()
	return n.newEngine(txn, nil).Quote(amount)
}

// Balance returns the committed balance of asset held by addr.
func (n *Node) Balance(asset string, addr [20]byte) (*big.Int, error) {
	return n.state.Balance(asset, addr)
}

// Nonce returns the next nonce expected from addr.
func (n *Node) Nonce(addr [20]byte) (uint64, error) {
	return n.state.Nonce(addr)
}

// Close releases the underlying storage.
func (n *Node) Close() error {
	return n.state.Close()
}

// ErrorCode maps ledger errors to the stable identifiers exposed to clients.
// Unclassified errors yield an empty string.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, corestate.ErrConflict):
		return "conflict"
	case errors.Is(err, corestate.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInvalidChainID):
		return "invalid_chain_id"
	case errors.Is(err, ErrInvalidNonce):
		return "invalid_nonce"
	case errors.Is(err, crypto.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, txcheck.ErrUnknownType), errors.Is(err, txcheck.ErrMalformed):
		return "malformed_transaction"
	}
	return presale.Code(err)
}
