package replication

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/erp/salesync/internal/domain/replication"
)

// Translator rewrites local payloads into the remote identifier space.
// Relational references without a remote counterpart are resolved by natural
// key or lazily created on the remote side. A Translator is bound to one
// open gateway and lives for a single replication operation.
type Translator struct {
	gw     replication.Gateway
	ids    replication.IdentityMap
	store  replication.LocalStore
	flight *singleflight.Group
	retry  RetryPolicy
	logger *zap.Logger
}

// NewTranslator creates a translator over an open gateway
func NewTranslator(
	gw replication.Gateway,
	ids replication.IdentityMap,
	store replication.LocalStore,
	flight *singleflight.Group,
	retry RetryPolicy,
	logger *zap.Logger,
) *Translator {
	if flight == nil {
		flight = &singleflight.Group{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{
		gw:     gw,
		ids:    ids,
		store:  store,
		flight: flight,
		retry:  retry,
		logger: logger,
	}
}

// Translate rewrites a payload of the given entity type. Unknown fields and
// command shapes are stripped. Only a connectivity failure aborts the
// translation; any other unresolved reference is dropped and logged.
func (t *Translator) Translate(ctx context.Context, et replication.EntityType, v replication.Values) (replication.Values, error) {
	schema, err := replication.SchemaFor(et)
	if err != nil {
		return nil, err
	}
	return t.translate(ctx, schema, v, nil, false)
}

// translate rewrites one payload. Nested line payloads are strict: an
// unresolved reference fails the line instead of dropping the field.
func (t *Translator) translate(ctx context.Context, schema *replication.Schema, v replication.Values, path []string, nested bool) (replication.Values, error) {
	out := make(replication.Values, len(v))
	for field, val := range v {
		if schema.Allows(field) {
			out[field] = val
			continue
		}
		if rel, ok := schema.Relation(field); ok {
			if err := t.translateRelation(ctx, schema, field, rel, val, out, path, nested); err != nil {
				return nil, err
			}
			continue
		}
		if coll, ok := schema.Collection(field); ok {
			cmds, err := t.translateCommands(ctx, schema, field, coll, v.Commands(field), path)
			if err != nil {
				return nil, err
			}
			if len(cmds) > 0 {
				out[field] = cmds
			}
			continue
		}
		t.logger.Debug("stripping field unknown to remote model",
			zap.String("entity_type", schema.Type.String()),
			zap.String("field", field),
		)
	}
	return out, nil
}

func (t *Translator) translateRelation(
	ctx context.Context,
	schema *replication.Schema,
	field string,
	rel replication.Relation,
	val any,
	out replication.Values,
	path []string,
	nested bool,
) error {
	localID, ok := replication.ToInt64(val)
	if !ok || localID <= 0 {
		out[field] = false
		return nil
	}
	remote, err := t.ensureRemote(ctx, rel.Target, replication.LocalID(localID), path)
	if err == nil {
		out[field] = int64(remote)
		return nil
	}
	if errors.Is(err, replication.ErrGatewayUnreachable) {
		return err
	}
	if nested && !rel.ClearOnMissing {
		return fmt.Errorf("%s: %w", field, err)
	}
	t.logger.Warn("relational reference could not be resolved remotely",
		zap.String("entity_type", schema.Type.String()),
		zap.String("field", field),
		zap.String("target", rel.Target.String()),
		zap.Int64("local_id", localID),
		zap.Error(err),
	)
	if rel.ClearOnMissing {
		out[field] = false
	}
	return nil
}

func (t *Translator) translateCommands(
	ctx context.Context,
	schema *replication.Schema,
	field string,
	coll replication.Collection,
	cmds []replication.Command,
	path []string,
) ([]replication.Command, error) {
	child, err := replication.SchemaFor(coll.Child)
	if err != nil {
		return nil, err
	}
	log := t.logger.With(
		zap.String("entity_type", schema.Type.String()),
		zap.String("field", field),
	)

	out := make([]replication.Command, 0, len(cmds))
	for _, cmd := range cmds {
		if _, isLink := cmd.(replication.LinkLines); coll.LinksOnly && !isLink {
			log.Debug("stripping line command on link-only field", zap.String("command", fmt.Sprintf("%T", cmd)))
			continue
		}
		switch c := cmd.(type) {
		case replication.AddLine:
			vals, err := t.translate(ctx, child, c.Values, path, true)
			if err != nil {
				if errors.Is(err, replication.ErrGatewayUnreachable) {
					return nil, err
				}
				log.Warn("dropping line that could not be translated", zap.Error(err))
				continue
			}
			out = append(out, replication.AddLine{Values: vals})

		case replication.UpdateLine:
			remote, ok, err := t.ids.Lookup(ctx, child.Type, replication.LocalID(c.ID))
			if err != nil || !ok {
				log.Warn("dropping update of unsynchronized line", zap.Int64("local_id", c.ID), zap.Error(err))
				continue
			}
			vals, err := t.translate(ctx, child, c.Values, path, true)
			if err != nil {
				if errors.Is(err, replication.ErrGatewayUnreachable) {
					return nil, err
				}
				log.Warn("dropping line that could not be translated", zap.Int64("local_id", c.ID), zap.Error(err))
				continue
			}
			out = append(out, replication.UpdateLine{ID: int64(remote), Values: vals})

		case replication.RemoveLine:
			remote, ok, err := t.ids.Lookup(ctx, child.Type, replication.LocalID(c.ID))
			if err != nil || !ok {
				log.Debug("line to remove has no remote counterpart", zap.Int64("local_id", c.ID), zap.Error(err))
				continue
			}
			out = append(out, replication.RemoveLine{ID: int64(remote)})

		case replication.LinkLines:
			ids := make([]int64, 0, len(c.IDs))
			for _, id := range c.IDs {
				remote, err := t.ensureRemote(ctx, child.Type, replication.LocalID(id), path)
				if err != nil {
					if errors.Is(err, replication.ErrGatewayUnreachable) {
						return nil, err
					}
					log.Warn("dropping link that could not be resolved", zap.Int64("local_id", id), zap.Error(err))
					continue
				}
				ids = append(ids, int64(remote))
			}
			out = append(out, replication.LinkLines{IDs: ids})

		default:
			log.Debug("stripping command unknown to remote model", zap.Any("command", cmd))
		}
	}
	return out, nil
}

// ensureRemote returns the remote id of a local entity, resolving it by
// natural key or creating it remotely when it has never been synchronized.
// Concurrent resolutions of the same entity share one remote round trip.
func (t *Translator) ensureRemote(ctx context.Context, et replication.EntityType, id replication.LocalID, path []string) (replication.RemoteID, error) {
	if remote, ok, err := t.ids.Lookup(ctx, et, id); err != nil {
		return 0, err
	} else if ok {
		return remote, nil
	}

	key := replication.LockKey(et, id)
	if slices.Contains(path, key) {
		return 0, fmt.Errorf("%w: %s", replication.ErrDependencyCycle, key)
	}
	next := append(slices.Clone(path), key)

	v, err, _ := t.flight.Do(key, func() (any, error) {
		return t.createDependency(ctx, et, id, next)
	})
	if err != nil {
		return 0, err
	}
	return v.(replication.RemoteID), nil
}

func (t *Translator) createDependency(ctx context.Context, et replication.EntityType, id replication.LocalID, path []string) (replication.RemoteID, error) {
	// Another flight may have bound it while this one was queued
	if remote, ok, err := t.ids.Lookup(ctx, et, id); err == nil && ok {
		return remote, nil
	}
	schema, err := replication.SchemaFor(et)
	if err != nil {
		return 0, err
	}
	rec, err := t.store.Get(ctx, et, id)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %d: %v", replication.ErrUnresolvedReference, et, id, err)
	}
	vals, err := t.translate(ctx, schema, rec.Payload(schema), path, false)
	if err != nil {
		return 0, err
	}
	remote, created, err := t.Upsert(ctx, schema, vals)
	if err != nil {
		return 0, err
	}
	t.logger.Info("resolved dependency remotely",
		zap.String("entity_type", et.String()),
		zap.Int64("local_id", int64(id)),
		zap.Int64("remote_id", int64(remote)),
		zap.Bool("created", created),
	)
	if t.Link(ctx, schema, rec, remote) {
		if err := t.BindLines(ctx, rec, !created); err != nil {
			t.logger.Warn("lines of resolved dependency left unbound",
				zap.String("entity_type", et.String()),
				zap.Int64("local_id", int64(id)),
				zap.Error(err),
			)
		}
	}
	return remote, nil
}

// BindLines binds the one-to-many lines of a mirrored parent. Each unbound
// line is matched by natural key among the remote records not yet bound to
// another local line. With createMissing, a line without a match is created
// remotely. Only a connectivity failure is returned; the remaining lines are
// then left for a later sync.
func (t *Translator) BindLines(ctx context.Context, parent *replication.Record, createMissing bool) error {
	for _, child := range parent.Children {
		if _, bound, err := t.ids.Lookup(ctx, child.Type, child.ID); err != nil || bound {
			if err != nil {
				t.logger.Warn("failed to read line binding", zap.Int64("local_id", int64(child.ID)), zap.Error(err))
			}
			continue
		}
		schema, err := replication.SchemaFor(child.Type)
		if err != nil {
			return err
		}
		remote, err := t.claimLine(ctx, schema, child, createMissing)
		if errors.Is(err, replication.ErrGatewayUnreachable) {
			return err
		}
		log := t.logger.With(
			zap.String("entity_type", child.Type.String()),
			zap.Int64("local_id", int64(child.ID)),
		)
		if err != nil {
			log.Warn("line could not be matched remotely", zap.Error(err))
			continue
		}
		if remote == 0 {
			log.Debug("line has no remote counterpart yet")
			continue
		}
		if !t.Link(ctx, schema, child, remote) {
			continue
		}
		if len(child.Children) > 0 {
			if err := t.BindLines(ctx, child, createMissing); err != nil {
				return err
			}
		}
	}
	return nil
}

// claimLine returns the first remote record matching the line's natural key
// that no other local line owns, creating one when allowed. Zero means no
// match. The search runs again before every create attempt.
func (t *Translator) claimLine(ctx context.Context, schema *replication.Schema, line *replication.Record, createMissing bool) (replication.RemoteID, error) {
	vals, err := t.translate(ctx, schema, line.Payload(schema), nil, true)
	if err != nil {
		return 0, err
	}
	domain, err := schema.KeyDomain(vals)
	if err != nil {
		return 0, err
	}
	return retryWithData(ctx, t.retry, func() (replication.RemoteID, error) {
		found, err := t.gw.Search(ctx, schema.Model, domain, 0)
		if err != nil {
			return 0, err
		}
		for _, id := range found {
			owner, claimed, err := t.ids.LookupLocal(ctx, schema.Type, id)
			if err != nil {
				return 0, err
			}
			if !claimed || owner == line.ID {
				return id, nil
			}
		}
		if !createMissing {
			return 0, nil
		}
		return t.gw.Create(ctx, schema.Model, vals)
	})
}

// Upsert searches the remote side by natural key and creates the record when
// no match exists. The search is repeated before every create attempt, so a
// retried create never produces a duplicate.
func (t *Translator) Upsert(ctx context.Context, schema *replication.Schema, remoteVals replication.Values) (replication.RemoteID, bool, error) {
	domain, err := schema.KeyDomain(remoteVals)
	if err != nil {
		return 0, false, err
	}
	type result struct {
		id      replication.RemoteID
		created bool
	}
	res, err := retryWithData(ctx, t.retry, func() (result, error) {
		found, err := t.gw.Search(ctx, schema.Model, domain, 1)
		if err != nil {
			return result{}, err
		}
		if len(found) > 0 {
			return result{id: found[0]}, nil
		}
		if schema.LookupOnly {
			return result{}, fmt.Errorf("%w: no %s matches %v", replication.ErrLookupOnly, schema.Model, domain)
		}
		id, err := t.gw.Create(ctx, schema.Model, remoteVals)
		if err != nil {
			return result{}, err
		}
		return result{id: id, created: true}, nil
	})
	return res.id, res.created, err
}

// Resolve looks up the remote counterpart of an existing local record by its
// natural key without creating anything.
func (t *Translator) Resolve(ctx context.Context, schema *replication.Schema, rec *replication.Record) (replication.RemoteID, bool, error) {
	vals, err := t.translate(ctx, schema, rec.Values, nil, false)
	if err != nil {
		return 0, false, err
	}
	domain, err := schema.KeyDomain(vals)
	if err != nil {
		return 0, false, err
	}
	found, err := retryWithData(ctx, t.retry, func() ([]replication.RemoteID, error) {
		return t.gw.Search(ctx, schema.Model, domain, 1)
	})
	if err != nil || len(found) == 0 {
		return 0, false, err
	}
	return found[0], true, nil
}

// Link binds a local record to its remote counterpart and writes the local id
// back onto the remote record. Returns false when the remote record already
// belongs to another local entity.
func (t *Translator) Link(ctx context.Context, schema *replication.Schema, rec *replication.Record, remote replication.RemoteID) bool {
	log := t.logger.With(
		zap.String("entity_type", schema.Type.String()),
		zap.Int64("local_id", int64(rec.ID)),
		zap.Int64("remote_id", int64(remote)),
	)
	if err := t.ids.Bind(ctx, schema.Type, rec.ID, remote); err != nil {
		if errors.Is(err, replication.ErrIdentityConflict) {
			log.Warn("remote record already bound to another local entity", zap.Error(err))
		} else {
			log.Error("failed to persist remote identity", zap.Error(err))
		}
		return false
	}
	rec.Bind(remote)

	if schema.Backlink == "" || schema.LookupOnly {
		return true
	}
	err := t.Write(ctx, schema, remote, replication.Values{schema.Backlink: int64(rec.ID)})
	if err != nil {
		log.Warn("failed to write back-link on remote record", zap.Error(err))
	}
	return true
}

// Write issues a remote write against one record
func (t *Translator) Write(ctx context.Context, schema *replication.Schema, remote replication.RemoteID, vals replication.Values) error {
	if len(vals) == 0 {
		return nil
	}
	_, err := retryWithData(ctx, t.retry, func() (struct{}, error) {
		return struct{}{}, t.gw.Write(ctx, schema.Model, []replication.RemoteID{remote}, vals)
	})
	return err
}

// Unlink deletes a remote record. A record already gone counts as deleted.
func (t *Translator) Unlink(ctx context.Context, schema *replication.Schema, remote replication.RemoteID) error {
	_, err := retryWithData(ctx, t.retry, func() (struct{}, error) {
		return struct{}{}, t.gw.Unlink(ctx, schema.Model, []replication.RemoteID{remote})
	})
	if errors.Is(err, replication.ErrRemoteNotFound) {
		return nil
	}
	return err
}
