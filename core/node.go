package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pairvault/core/events"
	"pairvault/core/state"
	"pairvault/native/bank"
	"pairvault/native/claims"
	nativecommon "pairvault/native/common"
	"pairvault/native/reserve"
	"pairvault/native/vault"
	"pairvault/observability"
	telemetry "pairvault/observability/otel"
	"pairvault/storage"
)

var (
	errNilDatabase  = errors.New("node: database must not be nil")
	errVaultAddress = errors.New("node: vault address must not be zero")
)

// Modules are the engines bound to one operation's state overlay.
type Modules struct {
	Bank    *bank.Engine
	Claims  *claims.Engine
	Reserve *reserve.Engine
	Vault   *vault.Engine
}

// Options configure a Node.
type Options struct {
	VaultAddress common.Address
	Oracles      vault.OracleDirectory
	Pauses       nativecommon.PauseView
	Emitter      events.Emitter
	Logger       *slog.Logger
	Metrics      *observability.VaultMetrics
	Tracer       trace.Tracer
}

// Node owns the database and serialises every state transition. Each write
// operation runs on a fresh overlay with freshly bound engines; the overlay is
// committed only when the operation and the accounting invariants succeed, and
// buffered events are forwarded after the commit.
type Node struct {
	mu sync.RWMutex

	db      storage.Database
	vault   common.Address
	oracles vault.OracleDirectory
	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.VaultMetrics
	tracer  trace.Tracer
}

// NewNode creates a node over db.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if opts.VaultAddress == (common.Address{}) {
		return nil, errVaultAddress
	}
	n := &Node{
		db:      db,
		vault:   opts.VaultAddress,
		oracles: opts.Oracles,
		pauses:  opts.Pauses,
		emitter: opts.Emitter,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}
	if n.emitter == nil {
		n.emitter = events.NoopEmitter{}
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if n.tracer == nil {
		n.tracer = telemetry.Tracer()
	}
	return n, nil
}

// VaultAddress returns the account the vault engine acts as.
func (n *Node) VaultAddress() common.Address { return n.vault }

func (n *Node) bind(db storage.Database, emitter events.Emitter) (*Modules, error) {
	st := state.NewManager(db)

	b := bank.NewEngine()
	b.SetState(st)
	b.SetPauses(n.pauses)
	b.SetEmitter(emitter)

	c := claims.NewEngine()
	c.SetState(st)
	c.SetPauses(n.pauses)
	c.SetEmitter(emitter)

	r := reserve.NewEngine()
	r.SetState(st)
	r.SetBank(b)
	r.SetPauses(n.pauses)

	v := vault.NewEngine(n.vault)
	v.SetState(st)
	v.SetEmitter(emitter)
	v.SetPauses(n.pauses)
	v.SetClaims(c)
	v.SetOracles(n.oracles)
	v.SetReserves(vault.ReserveFunc(func(addr common.Address) (vault.Reserve, error) {
		handle, err := r.At(addr)
		if err != nil {
			return nil, err
		}
		return handle, nil
	}))
	c.RegisterReceiver(n.vault, v)

	settings, err := v.Settings()
	switch {
	case err == nil:
		v.SetCollateral(b.Handle(settings.Collateral))
	case errors.Is(err, vault.ErrNotInitialized):
	default:
		return nil, err
	}
	return &Modules{Bank: b, Claims: c, Reserve: r, Vault: v}, nil
}

// Update runs fn as a single atomic operation named op.
func (n *Node) Update(ctx context.Context, op string, fn func(context.Context, *Modules) error) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ctx, span := n.tracer.Start(ctx, "vault."+op, trace.WithAttributes(attribute.String("vault.operation", op)))
	defer span.End()
	start := time.Now()
	defer func() {
		n.metrics.ObserveOperation(op, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			n.logger.Warn("vault operation rejected", slog.String("op", op), slog.Any("error", err))
		}
	}()

	overlay := storage.NewOverlay(n.db)
	buf := &events.Buffer{}
	mods, err := n.bind(overlay, buf)
	if err != nil {
		overlay.Discard()
		return err
	}
	if err = fn(ctx, mods); err != nil {
		overlay.Discard()
		return err
	}
	if err = n.checkInvariants(mods.Vault); err != nil {
		overlay.Discard()
		return err
	}
	summary, pairs := n.snapshot(mods.Vault)
	writes := overlay.Dirty()
	if err = overlay.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}

	committed := buf.Events()
	buf.FlushTo(n.emitter)
	n.publish(committed, summary, pairs)
	span.SetAttributes(attribute.Int("vault.events", len(committed)), attribute.Int("vault.writes", writes))
	n.logger.Info("vault operation committed",
		slog.String("op", op),
		slog.Int("events", len(committed)),
		slog.Int("writes", writes))
	return nil
}

// View runs fn against a throwaway overlay. Writes made by fn are discarded
// and no events are published.
func (n *Node) View(ctx context.Context, fn func(context.Context, *Modules) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	overlay := storage.NewOverlay(n.db)
	defer overlay.Discard()
	mods, err := n.bind(overlay, events.NoopEmitter{})
	if err != nil {
		return err
	}
	return fn(ctx, mods)
}

func (n *Node) checkInvariants(v *vault.Engine) error {
	err := v.CheckInvariants()
	switch {
	case err == nil, errors.Is(err, vault.ErrNotInitialized):
		return nil
	case errors.Is(err, vault.ErrInvariantViolated):
		n.metrics.RecordInvariantViolation()
		n.logger.Error("vault invariant violated", slog.Any("error", err))
	}
	return err
}

// snapshot reads the gauges published after a commit. A vault that is not
// initialised yet has nothing to report.
func (n *Node) snapshot(v *vault.Engine) (*vault.Summary, []*vault.PairConfig) {
	summary, err := v.Summary()
	if err != nil {
		return nil, nil
	}
	if summary.PairCount == 0 {
		return summary, nil
	}
	pairs, err := v.Pairs(0, summary.PairCount-1)
	if err != nil {
		return summary, nil
	}
	return summary, pairs
}

func (n *Node) publish(committed []events.Event, summary *vault.Summary, pairs []*vault.PairConfig) {
	recorder := observability.Events()
	for _, evt := range committed {
		recorder.RecordEvent(evt.EventType())
		switch e := evt.(type) {
		case events.SplitProfit:
			n.metrics.AddFeeShares(e.FeeShares)
		case events.Report:
			n.metrics.AddFeeShares(e.FeeShares)
		case events.PairRemoved:
			n.metrics.ForgetPair(e.Pair.Hex())
		}
	}
	if summary == nil {
		return
	}
	n.metrics.SetTotals(summary.Settings.TotalEarlyExited, summary.TotalAssets, summary.Settings.TotalShares)
	for _, p := range pairs {
		n.metrics.SetPairEarlyExited(p.Key.Hex(), p.EarlyExited)
	}
}
