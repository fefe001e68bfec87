// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

// Package links implements the link sync adapter of the language: an
// ordered perspective of link expressions with a revision counter,
// replicated through a neighbourhood log when one is attached.
package links

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/ad4mlang/pkg/agent"
	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood"
	"github.com/jllopis/ad4mlang/pkg/telemetry"
)

var _ language.LinkSyncAdapter = (*Adapter)(nil)

// Adapter is a language.LinkSyncAdapter over a Store. Without a
// neighbourhood it keeps links locally and Sync is a no-op.
type Adapter struct {
	self     language.DID
	store    Store
	log      neighbourhood.Log
	logID    string
	interval time.Duration
	pageSize int
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer

	// mu serializes Commit and Sync so revisions advance one at a time.
	mu     sync.Mutex
	joined bool

	obsMu          sync.RWMutex
	diffObservers  []language.PerspectiveDiffObserver
	stateObservers []language.SyncStateChangeObserver
	state          language.SyncState

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithStore sets the backing store. The default is a MemoryStore.
func WithStore(store Store) Option {
	return func(a *Adapter) {
		if store != nil {
			a.store = store
		}
	}
}

// WithNeighbourhood attaches the log of neighbourhood id.
func WithNeighbourhood(id string, log neighbourhood.Log) Option {
	return func(a *Adapter) {
		a.logID = id
		a.log = log
	}
}

// WithSyncInterval sets how often the loop started by Start syncs. Zero
// disables the loop.
func WithSyncInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.interval = d
		}
	}
}

// WithPageSize bounds how many envelopes one Since call fetches.
func WithPageSize(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. A nil sink disables metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// NewAdapter creates a link adapter for the agent identified by
// agentService. A nil agentService acts as agent.DefaultDID.
func NewAdapter(agentService language.AgentService, opts ...Option) *Adapter {
	if agentService == nil {
		agentService = agent.NewStatic("")
	}
	a := &Adapter{
		self:     agentService.DID(),
		store:    NewMemoryStore(),
		pageSize: neighbourhood.DefaultPageSize,
		logger:   slog.Default(),
		metrics:  telemetry.DefaultMetrics(),
		tracer:   otel.Tracer("ad4mlang/links"),
		state:    language.SyncStateSynced,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Writable implements language.LinkSyncAdapter.
func (a *Adapter) Writable() bool { return true }

// Public implements language.LinkSyncAdapter.
func (a *Adapter) Public() bool { return true }

// Others returns the neighbourhood members other than this agent, sorted.
func (a *Adapter) Others(ctx context.Context) ([]language.DID, error) {
	if a.log == nil {
		return []language.DID{}, nil
	}
	members, err := a.log.Members(ctx)
	if err != nil {
		a.metrics.RecordError(ctx, err, "links")
		return nil, err
	}
	others := make([]language.DID, 0, len(members))
	for _, m := range members {
		if m != a.self {
			others = append(others, m)
		}
	}
	slices.Sort(others)
	return others, nil
}

// CurrentRevision implements language.LinkSyncAdapter.
func (a *Adapter) CurrentRevision(ctx context.Context) (string, error) {
	rev, err := a.store.Revision(ctx)
	if err != nil {
		return "", err
	}
	return formatRevision(rev), nil
}

// Render returns a copy of every current link in insertion order.
func (a *Adapter) Render(ctx context.Context) (language.Perspective, error) {
	ctx, span := a.tracer.Start(ctx, "Links.Render")
	defer span.End()

	links, err := a.store.Links(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordError(ctx, err, "links")
		return language.Perspective{}, err
	}
	span.SetAttributes(attribute.Int(telemetry.AttrLinksCount, len(links)))
	return language.Perspective{Links: slices.Clone(links)}, nil
}

// Commit applies diff locally, advances the revision and returns it. With
// a neighbourhood attached the diff is also queued in the store, in the
// same step, and broadcast; a failed broadcast stays queued for the next
// Sync, in this process or a later one, and does not fail the commit.
func (a *Adapter) Commit(ctx context.Context, diff language.PerspectiveDiff) (string, error) {
	ctx = telemetry.WithNeighbourhood(ctx, a.logID)
	ctx, span := a.tracer.Start(ctx, "Links.Commit", trace.WithAttributes(
		telemetry.DiffAttributes(len(diff.Additions), len(diff.Removals))...,
	))
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	var rev uint64
	var err error
	if a.log != nil {
		rev, err = a.store.CommitQueued(ctx, diff, func(rev uint64) (neighbourhood.Envelope, error) {
			return neighbourhood.NewEnvelope(a.self, formatRevision(rev), diff)
		})
	} else {
		rev, err = a.store.Commit(ctx, diff)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordError(ctx, err, "links")
		a.logger.ErrorContext(ctx, "links.commit.error", slog.String("error", err.Error()))
		return "", err
	}
	revision := formatRevision(rev)
	span.SetAttributes(attribute.String(telemetry.AttrLinksRevision, revision))
	a.metrics.Committed(ctx, len(diff.Additions), len(diff.Removals))
	a.logger.DebugContext(ctx, "links.commit",
		slog.String("revision", revision),
		slog.Int("additions", len(diff.Additions)),
		slog.Int("removals", len(diff.Removals)),
	)

	if a.log != nil {
		a.broadcast(ctx, revision)
	}
	return revision, nil
}

func (a *Adapter) broadcast(ctx context.Context, revision string) {
	if _, err := a.flush(ctx); err != nil {
		a.metrics.RecordError(ctx, err, "links")
		a.logger.WarnContext(ctx, "links.broadcast.deferred",
			slog.String("revision", revision),
			slog.String("error", err.Error()))
	}
}

// flush publishes queued envelopes in commit order, stopping at the first
// failure. An envelope published but not yet dequeued is sent again;
// the log ignores a repeated envelope id.
func (a *Adapter) flush(ctx context.Context) (int, error) {
	if err := a.ensureJoined(ctx); err != nil {
		return 0, err
	}
	pending, err := a.store.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for i, env := range pending {
		if _, err := a.log.Append(ctx, env); err != nil {
			return i, err
		}
		if err := a.store.Dequeue(ctx, env.ID); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

func (a *Adapter) ensureJoined(ctx context.Context) error {
	if a.joined {
		return nil
	}
	if err := a.log.Join(ctx, a.self); err != nil {
		return err
	}
	a.joined = true
	return nil
}

// Pending returns how many committed diffs still wait to be broadcast.
func (a *Adapter) Pending(ctx context.Context) (int, error) {
	pending, err := a.store.Pending(ctx)
	return len(pending), err
}

// Sync pushes pending local diffs, then merges envelopes published by
// other agents since the last sync and returns what was learned. Without
// a neighbourhood it returns an empty diff.
func (a *Adapter) Sync(ctx context.Context) (language.PerspectiveDiff, error) {
	if a.log == nil {
		return language.EmptyDiff(), nil
	}
	ctx = telemetry.WithNeighbourhood(ctx, a.logID)
	ctx, span := a.tracer.Start(ctx, "Links.Sync", trace.WithAttributes(
		attribute.String(telemetry.AttrNeighbourhoodID, a.logID),
	))
	defer span.End()

	a.setState(language.SyncStateSyncing)
	start := time.Now()

	a.mu.Lock()
	learned, pushed, err := a.sync(ctx)
	a.mu.Unlock()

	a.metrics.Synced(ctx, len(learned.Additions)+len(learned.Removals), pushed, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordError(ctx, err, "links")
		a.logger.WarnContext(ctx, "links.sync.failed",
			slog.String("error", err.Error()))
		a.setState(language.SyncStateFailedToSync)
		return language.EmptyDiff(), err
	}
	span.SetAttributes(
		attribute.Int(telemetry.AttrSyncLearned, len(learned.Additions)+len(learned.Removals)),
		attribute.Int(telemetry.AttrSyncPushed, pushed),
	)
	a.setState(language.SyncStateSynced)

	if !learned.Empty() {
		a.logger.DebugContext(ctx, "links.sync",
			slog.Int("additions", len(learned.Additions)),
			slog.Int("removals", len(learned.Removals)),
			slog.Int("pushed", pushed))
		a.notifyDiff(learned)
	}
	return learned, nil
}

func (a *Adapter) sync(ctx context.Context) (language.PerspectiveDiff, int, error) {
	learned := language.EmptyDiff()
	pushed, err := a.flush(ctx)
	if err != nil {
		return learned, pushed, err
	}

	cursor, err := a.store.Cursor(ctx)
	if err != nil {
		return learned, pushed, err
	}
	start := cursor
	working, err := a.store.Links(ctx)
	if err != nil {
		return learned, pushed, err
	}

	for {
		page, err := a.log.Since(ctx, cursor, a.pageSize)
		if err != nil {
			return language.EmptyDiff(), pushed, err
		}
		for _, env := range page {
			cursor = env.Seq
			if env.Author == a.self {
				continue
			}
			diff, err := env.Diff()
			if err != nil {
				a.metrics.RecordError(ctx, err, "links")
				a.logger.WarnContext(ctx, "links.sync.envelope_skipped",
					slog.String("envelope_id", env.ID),
					slog.Uint64("seq", env.Seq),
					slog.String("error", err.Error()))
				continue
			}
			working = mergeRemote(working, diff, &learned)
		}
		if len(page) < a.pageSize {
			break
		}
	}

	if learned.Empty() && cursor == start {
		return learned, pushed, nil
	}
	if _, err := a.store.Merge(ctx, learned, cursor); err != nil {
		return language.EmptyDiff(), pushed, err
	}
	return learned, pushed, nil
}

// mergeRemote folds a remote diff into working the way Commit applies a
// local one, so every agent replays the same history to the same links.
// Additions get their proofs recomputed; removals with no structural match
// are dropped. What applies is recorded in learned.
func mergeRemote(working []language.LinkExpression, diff language.PerspectiveDiff, learned *language.PerspectiveDiff) []language.LinkExpression {
	for _, link := range diff.Additions {
		link = agent.VerifyLink(link)
		working = append(working, link)
		learned.Additions = append(learned.Additions, link)
	}
	for _, link := range diff.Removals {
		i := indexOfKey(working, link.Data.Key())
		if i < 0 {
			continue
		}
		working = slices.Delete(working, i, i+1)
		learned.Removals = append(learned.Removals, link)
	}
	return working
}

// AddCallback registers an observer for diffs learned by Sync.
func (a *Adapter) AddCallback(observer language.PerspectiveDiffObserver) {
	if observer == nil {
		return
	}
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	a.diffObservers = append(a.diffObservers, observer)
}

// AddSyncStateChangeCallback registers an observer for sync state changes.
func (a *Adapter) AddSyncStateChangeCallback(observer language.SyncStateChangeObserver) {
	if observer == nil {
		return
	}
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	a.stateObservers = append(a.stateObservers, observer)
}

// SyncState returns the last reported sync state.
func (a *Adapter) SyncState() language.SyncState {
	a.obsMu.RLock()
	defer a.obsMu.RUnlock()
	return a.state
}

func (a *Adapter) notifyDiff(diff language.PerspectiveDiff) {
	a.obsMu.RLock()
	observers := slices.Clone(a.diffObservers)
	a.obsMu.RUnlock()
	for _, fn := range observers {
		fn(diff)
	}
}

func (a *Adapter) setState(state language.SyncState) {
	a.obsMu.Lock()
	if a.state == state {
		a.obsMu.Unlock()
		return
	}
	a.state = state
	observers := slices.Clone(a.stateObservers)
	a.obsMu.Unlock()
	for _, fn := range observers {
		fn(state)
	}
}

// Start runs Sync every sync interval until ctx is done or Stop is called.
// It does nothing without a neighbourhood or with a zero interval.
func (a *Adapter) Start(ctx context.Context) {
	if a.log == nil || a.interval <= 0 {
		return
	}
	a.loopMu.Lock()
	defer a.loopMu.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	go a.loop(ctx, a.done)
}

// Stop ends the loop started by Start and waits for it to exit.
func (a *Adapter) Stop() {
	a.loopMu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *Adapter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged and reported to state observers by Sync.
			_, _ = a.Sync(ctx)
		}
	}
}

func formatRevision(rev uint64) string {
	return strconv.FormatUint(rev, 10)
}
