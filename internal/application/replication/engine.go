package replication

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/erp/salesync/internal/domain/replication"
	"github.com/erp/salesync/internal/domain/shared"
)

const tracerName = "github.com/erp/salesync/replication"

// Engine mirrors local create, update and delete operations into the remote
// system. The local write is the system of record: it succeeds regardless of
// the remote outcome, and remote trouble only degrades replication.
type Engine struct {
	configs replication.ConfigProvider
	dialer  replication.Dialer
	ids     replication.IdentityMap
	store   replication.LocalStore
	locker  replication.Locker
	metrics Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	retry   RetryPolicy
	flight  singleflight.Group
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer used for replication spans
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithRetryPolicy sets the retry policy for remote calls
func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.retry = p
	}
}

// NewEngine creates a replication engine
func NewEngine(
	configs replication.ConfigProvider,
	dialer replication.Dialer,
	ids replication.IdentityMap,
	store replication.LocalStore,
	locker replication.Locker,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		configs: configs,
		dialer:  dialer,
		ids:     ids,
		store:   store,
		locker:  locker,
		metrics: nopMetrics{},
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "replication"))
	return e
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// open reads the sync configuration and dials the remote system. A nil
// translator means replication degrades to local-only for this operation;
// the returned reason says why.
func (e *Engine) open(ctx context.Context) (*Translator, string) {
	cfg, err := e.configs.SyncConfig(ctx)
	if err != nil {
		e.logger.Error("failed to read sync configuration, continuing local-only", zap.Error(err))
		return e.degrade(ReasonConfigUnavailable)
	}
	if !cfg.Enabled {
		return e.degrade(ReasonDisabled)
	}
	if !cfg.IsComplete() {
		e.logger.Warn("sync configuration incomplete, continuing local-only",
			zap.Strings("missing", cfg.MissingFields()),
			zap.Error(replication.ErrConfigIncomplete),
		)
		return e.degrade(ReasonConfigIncomplete)
	}
	gw, err := e.dialer.Dial(ctx, cfg)
	if err != nil {
		e.logger.Error("remote system unreachable, continuing local-only",
			zap.String("url", cfg.URL),
			zap.Error(err),
		)
		return e.degrade(ReasonGatewayUnreachable)
	}
	return NewTranslator(gw, e.ids, e.store, &e.flight, e.retry, e.logger), ""
}

func (e *Engine) degrade(reason string) (*Translator, string) {
	e.metrics.ObserveDegraded(reason)
	return nil, reason
}

// lockAll serializes replication of the given entities. When a lock cannot
// be taken the returned ok is false and callers skip the remote side.
func (e *Engine) lockAll(ctx context.Context, et replication.EntityType, ids []replication.LocalID) (release func(), ok bool) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	leases := make([]replication.Lease, 0, len(sorted))
	release = func() {
		for i := len(leases) - 1; i >= 0; i-- {
			if err := leases[i].Release(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn("failed to release entity lock", zap.Error(err))
			}
		}
	}
	for _, id := range sorted {
		lease, err := e.locker.Lock(ctx, replication.LockKey(et, id))
		if err != nil {
			e.logger.Error("failed to lock entity, continuing local-only",
				zap.String("entity_type", et.String()),
				zap.Int64("local_id", int64(id)),
				zap.Error(err),
			)
			e.metrics.ObserveDegraded(ReasonLockUnavailable)
			release()
			return func() {}, false
		}
		leases = append(leases, lease)
	}
	return release, true
}

func (e *Engine) startSpan(ctx context.Context, op string, et replication.EntityType, n int) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "replication."+op, trace.WithAttributes(
		attribute.String("replication.entity_type", et.String()),
		attribute.Int("replication.batch_size", n),
	))
}

func schemaFor(et replication.EntityType) (*replication.Schema, error) {
	schema, err := replication.SchemaFor(et)
	if err != nil {
		return nil, replication.NewInvalidPayloadError(err)
	}
	return schema, nil
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

// OnCreate stores new local records and mirrors them remotely. Each payload
// is deduplicated against the remote system by natural key before anything
// is created there. Local constraint violations abort the whole call before
// any remote traffic; remote failures never do.
func (e *Engine) OnCreate(ctx context.Context, et replication.EntityType, payloads []replication.Values) ([]*replication.Record, error) {
	schema, err := schemaFor(et)
	if err != nil {
		return nil, err
	}
	if schema.NestedOnly {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("%s can only be created through its parent", et))
	}

	ctx, span := e.startSpan(ctx, "OnCreate", et, len(payloads))
	defer span.End()

	records, err := e.prepareCreate(ctx, schema, payloads)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tr, _ := e.open(ctx)
	remoteIDs := make([]replication.RemoteID, len(records))
	created := make([]bool, len(records))
	if tr != nil {
		for i, rec := range records {
			remoteIDs[i], created[i] = e.mirrorNew(ctx, tr, schema, rec)
		}
	}

	if err := e.store.Create(ctx, records); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if tr == nil {
		for range records {
			e.metrics.ObserveOutcome(et, OpCreate, OutcomeLocalOnly)
		}
		return records, nil
	}

	for i, rec := range records {
		e.linkNew(ctx, tr, schema, rec, remoteIDs[i], created[i])
	}
	return records, nil
}

// prepareCreate normalizes payloads and enforces local constraints
func (e *Engine) prepareCreate(ctx context.Context, schema *replication.Schema, payloads []replication.Values) ([]*replication.Record, error) {
	records := make([]*replication.Record, 0, len(payloads))
	seen := make(map[string]bool)
	for _, p := range payloads {
		vals, err := replication.Normalize(schema.Type, p)
		if err != nil {
			return nil, replication.NewInvalidPayloadError(err)
		}
		if err := schema.CheckLocalKey(vals); err != nil {
			return nil, replication.NewInvalidPayloadError(err)
		}
		rec := replication.NewRecord(schema, vals)
		if err := e.checkUniqueName(ctx, schema, rec.Name, rec.ScopeKey, 0, seen); err != nil {
			return nil, err
		}
		if err := e.prepareChildren(ctx, rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (e *Engine) prepareChildren(ctx context.Context, rec *replication.Record) error {
	seen := make(map[string]bool)
	for _, child := range rec.Children {
		schema, err := schemaFor(child.Type)
		if err != nil {
			return err
		}
		vals, err := replication.Normalize(child.Type, child.Values)
		if err != nil {
			return replication.NewInvalidPayloadError(err)
		}
		child.Values = vals
		child.Name = vals.Name()
		if err := schema.CheckLocalKey(vals, child.ParentField); err != nil {
			return replication.NewInvalidPayloadError(err)
		}
		// Siblings of a new parent can only collide with each other
		if schema.UniqueName && schema.UniqueScope == child.ParentField {
			key := replication.NameKey(child.Name)
			if seen[key] {
				return replication.NewDuplicateNameError(child.Type, child.Name)
			}
			seen[key] = true
		}
	}
	return nil
}

func (e *Engine) checkUniqueName(
	ctx context.Context,
	schema *replication.Schema,
	name, scope string,
	exclude replication.LocalID,
	seen map[string]bool,
) error {
	if !schema.UniqueName || name == "" {
		return nil
	}
	key := replication.NameKey(name)
	if seen != nil {
		if seen[scope+"\x00"+key] {
			return replication.NewDuplicateNameError(schema.Type, name)
		}
		seen[scope+"\x00"+key] = true
	}
	exists, err := e.store.ExistsByName(ctx, schema.Type, key, scope, exclude)
	if err != nil {
		return err
	}
	if exists {
		return replication.NewDuplicateNameError(schema.Type, name)
	}
	return nil
}

// mirrorNew finds or creates the remote counterpart of a record that is
// about to be stored locally and reports whether it was created along with
// its lines. Failures are logged and yield zero.
func (e *Engine) mirrorNew(ctx context.Context, tr *Translator, schema *replication.Schema, rec *replication.Record) (replication.RemoteID, bool) {
	vals, err := tr.Translate(ctx, schema.Type, rec.Payload(schema))
	if err == nil {
		var (
			remote  replication.RemoteID
			created bool
		)
		remote, created, err = tr.Upsert(ctx, schema, vals)
		if err == nil {
			return remote, created
		}
	}
	e.logRemoteFailure(schema.Type, OpCreate, rec, err)
	return 0, false
}

// linkNew binds a freshly stored record and its lines, falling back to a
// natural key lookup when the create path produced no remote id. Lines of a
// remote record that already existed are created when missing.
func (e *Engine) linkNew(
	ctx context.Context,
	tr *Translator,
	schema *replication.Schema,
	rec *replication.Record,
	remote replication.RemoteID,
	created bool,
) {
	release, ok := e.lockAll(ctx, schema.Type, []replication.LocalID{rec.ID})
	defer release()
	if !ok {
		e.metrics.ObserveOutcome(schema.Type, OpCreate, OutcomeLocalOnly)
		return
	}
	// A delete may have won the race for the lock
	if _, err := e.store.Get(ctx, schema.Type, rec.ID); errors.Is(err, replication.ErrRecordNotFound) {
		e.metrics.ObserveOutcome(schema.Type, OpCreate, OutcomeSkipped)
		return
	}

	outcome := OutcomeCreated
	if remote == 0 {
		found, ok, err := tr.Resolve(ctx, schema, rec)
		if err != nil || !ok {
			if err != nil {
				e.logRemoteFailure(schema.Type, OpCreate, rec, err)
			}
			e.metrics.ObserveOutcome(schema.Type, OpCreate, OutcomeFailed)
			return
		}
		remote, outcome = found, OutcomeLinked
	}
	if !tr.Link(ctx, schema, rec, remote) {
		e.metrics.ObserveOutcome(schema.Type, OpCreate, OutcomeSkipped)
		return
	}
	e.bindLines(ctx, tr, OpCreate, rec, !created)
	e.metrics.ObserveOutcome(schema.Type, OpCreate, outcome)
}

// bindLines binds the lines of a mirrored record. Unbound lines stay
// local-only until the next sync.
func (e *Engine) bindLines(ctx context.Context, tr *Translator, op string, rec *replication.Record, createMissing bool) {
	if len(rec.Children) == 0 {
		return
	}
	if err := tr.BindLines(ctx, rec, createMissing); err != nil {
		e.logRemoteFailure(rec.Type, op, rec, err)
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

// OnUpdate applies values to every given record locally, then writes the
// translated delta to each record that has a remote counterpart. Records
// never synchronized are skipped without error.
func (e *Engine) OnUpdate(ctx context.Context, et replication.EntityType, ids []replication.LocalID, values replication.Values) ([]*replication.Record, error) {
	schema, err := schemaFor(et)
	if err != nil {
		return nil, err
	}
	ctx, span := e.startSpan(ctx, "OnUpdate", et, len(ids))
	defer span.End()

	vals, err := replication.Normalize(et, values)
	if err != nil {
		return nil, replication.NewInvalidPayloadError(err)
	}
	if err := e.checkUpdateConstraints(ctx, schema, ids, vals); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	release, locked := e.lockAll(ctx, et, ids)
	defer release()

	scalar, lines := splitCollections(schema, vals)
	updated, err := e.store.Update(ctx, et, ids, scalar)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	removed, err := e.applyLines(ctx, schema, updated, lines)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var tr *Translator
	if locked {
		tr, _ = e.open(ctx)
	}
	if tr == nil {
		for range updated {
			e.metrics.ObserveOutcome(et, OpUpdate, OutcomeLocalOnly)
		}
		e.unbindAll(ctx, removed)
		return updated, nil
	}

	delta, err := tr.Translate(ctx, et, vals)
	if err != nil {
		e.logger.Error("failed to translate update, continuing local-only",
			zap.String("entity_type", et.String()),
			zap.Error(err),
		)
		delta = nil
	}
	for _, rec := range updated {
		if e.writeRemote(ctx, tr, schema, rec, delta) && len(lines) > 0 {
			e.bindLines(ctx, tr, OpUpdate, rec, false)
		}
	}
	e.unbindAll(ctx, removed)
	return updated, nil
}

func (e *Engine) checkUpdateConstraints(ctx context.Context, schema *replication.Schema, ids []replication.LocalID, vals replication.Values) error {
	if err := checkKeyNotCleared(schema, vals); err != nil {
		return err
	}
	if err := e.checkNewLines(ctx, schema, ids, vals); err != nil {
		return err
	}
	if !schema.UniqueName || !vals.Has("name") {
		return nil
	}
	name := vals.Name()
	if len(ids) > 1 {
		return replication.NewDuplicateNameError(schema.Type, name)
	}
	records, err := e.store.FindByIDs(ctx, schema.Type, ids)
	if err != nil {
		return err
	}
	for _, rec := range records {
		scope := rec.ScopeKey
		if _, ok := vals[schema.UniqueScope]; ok && schema.UniqueScope != "" {
			scope = replication.ScopeKey(schema, vals)
		}
		if err := e.checkUniqueName(ctx, schema, name, scope, rec.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// checkNewLines enforces name uniqueness of lines added to existing parents
func (e *Engine) checkNewLines(ctx context.Context, schema *replication.Schema, ids []replication.LocalID, vals replication.Values) error {
	for field, coll := range schema.Collections {
		if coll.LinksOnly || !vals.Has(field) {
			continue
		}
		child, err := schemaFor(coll.Child)
		if err != nil {
			return err
		}
		for _, cmd := range vals.Commands(field) {
			add, ok := cmd.(replication.AddLine)
			if !ok {
				continue
			}
			if err := child.CheckLocalKey(add.Values, coll.Inverse); err != nil {
				return replication.NewInvalidPayloadError(err)
			}
		}
		if !child.UniqueName || child.UniqueScope != coll.Inverse {
			continue
		}
		for _, id := range ids {
			seen := make(map[string]bool)
			for _, cmd := range vals.Commands(field) {
				if add, ok := cmd.(replication.AddLine); ok {
					if err := e.checkUniqueName(ctx, child, replication.TrimName(add.Values.Name()), id.String(), 0, seen); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// checkKeyNotCleared rejects updates that blank a mandatory natural key field
func checkKeyNotCleared(schema *replication.Schema, vals replication.Values) error {
	for _, k := range schema.Key {
		if _, present := vals[k.Field]; present && !k.Optional && !vals.Has(k.Field) {
			return replication.NewInvalidPayloadError(
				fmt.Errorf("%w: %s requires %q", replication.ErrMalformedNaturalKey, schema.Type, k.Field))
		}
	}
	return nil
}

// writeRemote writes the delta to the remote counterpart of rec and reports
// whether the write went through. A nil delta means translation failed; an
// empty one leaves nothing to write.
func (e *Engine) writeRemote(ctx context.Context, tr *Translator, schema *replication.Schema, rec *replication.Record, delta replication.Values) bool {
	remote, ok, err := e.ids.Lookup(ctx, schema.Type, rec.ID)
	if err != nil {
		e.logRemoteFailure(schema.Type, OpUpdate, rec, err)
		e.metrics.ObserveOutcome(schema.Type, OpUpdate, OutcomeFailed)
		return false
	}
	log := e.logger.With(
		zap.String("entity_type", schema.Type.String()),
		zap.Int64("local_id", int64(rec.ID)),
	)
	if !ok {
		log.Debug("record never synchronized, skipping remote write")
		e.metrics.ObserveOutcome(schema.Type, OpUpdate, OutcomeSkipped)
		return false
	}
	rec.Bind(remote)
	if delta == nil {
		e.metrics.ObserveOutcome(schema.Type, OpUpdate, OutcomeFailed)
		return false
	}
	if len(delta) == 0 {
		log.Debug("nothing to write remotely")
		e.metrics.ObserveOutcome(schema.Type, OpUpdate, OutcomeSkipped)
		return false
	}
	if err := tr.Write(ctx, schema, remote, delta); err != nil {
		e.logRemoteFailure(schema.Type, OpUpdate, rec, err)
		e.metrics.ObserveOutcome(schema.Type, OpUpdate, OutcomeFailed)
		return false
	}
	e.metrics.ObserveOutcome(schema.Type, OpUpdate, OutcomeWritten)
	return true
}

// splitCollections separates one-to-many command fields from the rest
func splitCollections(schema *replication.Schema, vals replication.Values) (replication.Values, map[string][]replication.Command) {
	scalar := make(replication.Values, len(vals))
	lines := make(map[string][]replication.Command)
	for field, val := range vals {
		if coll, ok := schema.Collection(field); ok && !coll.LinksOnly {
			lines[field] = vals.Commands(field)
			continue
		}
		scalar[field] = val
	}
	return scalar, lines
}

// applyLines mirrors line commands onto the local child records. It returns
// the child records removed locally so their bindings can be dropped once
// the remote side has been told.
func (e *Engine) applyLines(
	ctx context.Context,
	schema *replication.Schema,
	parents []*replication.Record,
	lines map[string][]replication.Command,
) ([]*replication.Record, error) {
	var removed []*replication.Record
	for field, cmds := range lines {
		coll, _ := schema.Collection(field)
		childSchema, err := schemaFor(coll.Child)
		if err != nil {
			return nil, err
		}
		for _, parent := range parents {
			for _, cmd := range cmds {
				switch c := cmd.(type) {
				case replication.AddLine:
					vals, err := replication.Normalize(coll.Child, c.Values)
					if err != nil {
						return nil, replication.NewInvalidPayloadError(err)
					}
					vals[coll.Inverse] = int64(parent.ID)
					child := replication.NewRecord(childSchema, vals)
					parentID := parent.ID
					child.ParentID = &parentID
					child.ParentField = coll.Inverse
					if err := e.store.Create(ctx, []*replication.Record{child}); err != nil {
						return nil, err
					}
					parent.Children = append(parent.Children, child)
				case replication.UpdateLine:
					vals, err := replication.Normalize(coll.Child, c.Values)
					if err != nil {
						return nil, replication.NewInvalidPayloadError(err)
					}
					if _, err := e.store.Update(ctx, coll.Child, []replication.LocalID{replication.LocalID(c.ID)}, vals); err != nil {
						return nil, err
					}
				case replication.RemoveLine:
					gone, err := e.store.Delete(ctx, coll.Child, []replication.LocalID{replication.LocalID(c.ID)})
					if err != nil {
						return nil, err
					}
					removed = append(removed, gone...)
					parent.Children = slices.DeleteFunc(parent.Children, func(child *replication.Record) bool {
						return child.Type == coll.Child && child.ID == replication.LocalID(c.ID)
					})
				}
			}
		}
	}
	return removed, nil
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

// OnDelete removes the remote counterparts of the given records, then the
// local records themselves. Remote failures are logged and never block the
// local delete.
func (e *Engine) OnDelete(ctx context.Context, et replication.EntityType, ids []replication.LocalID) error {
	schema, err := schemaFor(et)
	if err != nil {
		return err
	}
	ctx, span := e.startSpan(ctx, "OnDelete", et, len(ids))
	defer span.End()

	release, locked := e.lockAll(ctx, et, ids)
	defer release()

	var tr *Translator
	if locked {
		tr, _ = e.open(ctx)
	}
	if tr != nil {
		for _, id := range ids {
			e.unlinkRemote(ctx, tr, schema, id)
		}
	}

	deleted, err := e.store.Delete(ctx, et, ids)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if tr == nil {
		for range deleted {
			e.metrics.ObserveOutcome(et, OpDelete, OutcomeLocalOnly)
		}
	}
	e.unbindAll(ctx, deleted)
	return nil
}

func (e *Engine) unlinkRemote(ctx context.Context, tr *Translator, schema *replication.Schema, id replication.LocalID) {
	rec := &replication.Record{ID: id, Type: schema.Type}
	remote, ok, err := e.ids.Lookup(ctx, schema.Type, id)
	if err != nil {
		e.logRemoteFailure(schema.Type, OpDelete, rec, err)
		e.metrics.ObserveOutcome(schema.Type, OpDelete, OutcomeFailed)
		return
	}
	if !ok || schema.LookupOnly {
		e.metrics.ObserveOutcome(schema.Type, OpDelete, OutcomeSkipped)
		return
	}
	rec.Bind(remote)
	if err := tr.Unlink(ctx, schema, remote); err != nil {
		e.logRemoteFailure(schema.Type, OpDelete, rec, err)
		e.metrics.ObserveOutcome(schema.Type, OpDelete, OutcomeFailed)
		return
	}
	e.metrics.ObserveOutcome(schema.Type, OpDelete, OutcomeUnlinked)
}

func (e *Engine) unbindAll(ctx context.Context, records []*replication.Record) {
	for _, rec := range records {
		if err := e.ids.Unbind(ctx, rec.Type, rec.ID); err != nil {
			e.logger.Warn("failed to drop identity binding",
				zap.String("entity_type", rec.Type.String()),
				zap.Int64("local_id", int64(rec.ID)),
				zap.Error(err),
			)
		}
	}
}

// ---------------------------------------------------------------------------
// Sync trigger
// ---------------------------------------------------------------------------

// SyncReport summarizes a reconciliation run
type SyncReport struct {
	Created  int    `json:"created"`
	Linked   int    `json:"linked"`
	Written  int    `json:"written"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
	Degraded string `json:"degraded,omitempty"`
}

// Sync reconciles existing local records with the remote system. Bound
// records are rewritten in full; unbound ones are matched by natural key or
// created remotely. Local records are never modified.
func (e *Engine) Sync(ctx context.Context, et replication.EntityType, ids []replication.LocalID) (SyncReport, error) {
	var report SyncReport
	schema, err := schemaFor(et)
	if err != nil {
		return report, err
	}
	ctx, span := e.startSpan(ctx, "Sync", et, len(ids))
	defer span.End()

	records, err := e.store.FindByIDs(ctx, et, ids)
	if err != nil {
		return report, err
	}
	tr, reason := e.open(ctx)
	if tr == nil {
		report.Skipped = len(records)
		report.Degraded = reason
		return report, nil
	}

	for _, rec := range records {
		outcome := e.syncOne(ctx, tr, schema, rec)
		e.metrics.ObserveOutcome(et, OpSync, outcome)
		switch outcome {
		case OutcomeCreated:
			report.Created++
		case OutcomeLinked:
			report.Linked++
		case OutcomeWritten:
			report.Written++
		case OutcomeFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

func (e *Engine) syncOne(ctx context.Context, tr *Translator, schema *replication.Schema, rec *replication.Record) string {
	release, ok := e.lockAll(ctx, schema.Type, []replication.LocalID{rec.ID})
	defer release()
	if !ok {
		return OutcomeSkipped
	}

	remote, bound, err := e.ids.Lookup(ctx, schema.Type, rec.ID)
	if err != nil {
		e.logRemoteFailure(schema.Type, OpSync, rec, err)
		return OutcomeFailed
	}

	if bound {
		rec.Bind(remote)
		if schema.LookupOnly {
			return OutcomeSkipped
		}
		// Line commands are not replayed; lines are matched by natural key
		vals, err := tr.Translate(ctx, schema.Type, rec.Values)
		if err == nil {
			for field := range schema.Collections {
				delete(vals, field)
			}
			if len(vals) > 0 {
				err = tr.Write(ctx, schema, remote, vals)
			}
		}
		if err != nil {
			e.logRemoteFailure(schema.Type, OpSync, rec, err)
			return OutcomeFailed
		}
		e.bindLines(ctx, tr, OpSync, rec, true)
		if len(vals) == 0 {
			return OutcomeSkipped
		}
		return OutcomeWritten
	}

	vals, err := tr.Translate(ctx, schema.Type, rec.Payload(schema))
	if err != nil {
		e.logRemoteFailure(schema.Type, OpSync, rec, err)
		return OutcomeFailed
	}
	remote, created, err := tr.Upsert(ctx, schema, vals)
	if err != nil {
		e.logRemoteFailure(schema.Type, OpSync, rec, err)
		return OutcomeFailed
	}
	if !tr.Link(ctx, schema, rec, remote) {
		return OutcomeSkipped
	}
	e.bindLines(ctx, tr, OpSync, rec, !created)
	if created {
		return OutcomeCreated
	}
	return OutcomeLinked
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (e *Engine) logRemoteFailure(et replication.EntityType, op string, rec *replication.Record, err error) {
	fields := []zap.Field{
		zap.String("entity_type", et.String()),
		zap.String("operation", op),
		zap.Int64("local_id", int64(rec.ID)),
		zap.Error(err),
	}
	if rec.Name != "" {
		fields = append(fields, zap.String("name", rec.Name))
	}
	if rec.IsBound() {
		fields = append(fields, zap.Int64("remote_id", int64(*rec.RemoteID)))
	}
	if errors.Is(err, replication.ErrGatewayUnreachable) {
		e.logger.Error("remote system unreachable, record left local-only", fields...)
		return
	}
	e.logger.Warn("remote replication failed for record", fields...)
}
