package replication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/erp/salesync/internal/domain/replication"
)

// ---------------------------------------------------------------------------
// Remote system
// ---------------------------------------------------------------------------

// fakeRemote is an in-memory remote object store
type fakeRemote struct {
	mu      sync.Mutex
	nextID  replication.RemoteID
	records map[string]map[replication.RemoteID]replication.Values
	calls   []string
	lines   map[string][]replication.Command // "model.field" -> commands received

	down       bool
	rejectOn   map[string]bool // "model.method"
	failCreate int             // number of upcoming creates failing as unreachable
	rejectName string          // creates carrying this name are rejected
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records: make(map[string]map[replication.RemoteID]replication.Values),
		lines:   make(map[string][]replication.Command),
	}
}

func (r *fakeRemote) record(call string) error {
	r.calls = append(r.calls, call)
	if r.down {
		return fmt.Errorf("%w: connection refused", replication.ErrGatewayUnreachable)
	}
	if r.rejectOn[call] {
		return fmt.Errorf("%w: ValidationError", replication.ErrRemoteRejected)
	}
	return nil
}

func (r *fakeRemote) seed(model string, vals replication.Values) replication.RemoteID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(model, vals)
}

func (r *fakeRemote) insert(model string, vals replication.Values) replication.RemoteID {
	r.nextID++
	if r.records[model] == nil {
		r.records[model] = make(map[replication.RemoteID]replication.Values)
	}
	r.records[model][r.nextID] = vals.Clone()
	return r.nextID
}

// modelSchema returns the schema mirrored onto a remote model
func modelSchema(model string) *replication.Schema {
	for _, t := range replication.EntityTypes() {
		if schema, err := replication.SchemaFor(t); err == nil && schema.Model == model {
			return schema
		}
	}
	return nil
}

// materialize turns line commands into child records owned by parent and
// leaves the ids of the current lines on the returned payload.
func (r *fakeRemote) materialize(model string, parent replication.RemoteID, vals replication.Values) replication.Values {
	schema := modelSchema(model)
	if schema == nil {
		return vals
	}
	out := vals.Clone()
	for field, coll := range schema.Collections {
		cmds, ok := vals[field].([]replication.Command)
		if !ok || coll.LinksOnly {
			continue
		}
		child, _ := replication.SchemaFor(coll.Child)
		r.lines[model+"."+field] = append(r.lines[model+"."+field], cmds...)
		for _, cmd := range cmds {
			switch c := cmd.(type) {
			case replication.AddLine:
				id := r.insert(child.Model, nil)
				line := c.Values.Clone()
				line[coll.Inverse] = int64(parent)
				r.records[child.Model][id] = r.materialize(child.Model, id, line)
			case replication.UpdateLine:
				if rec, ok := r.records[child.Model][replication.RemoteID(c.ID)]; ok {
					for k, v := range r.materialize(child.Model, replication.RemoteID(c.ID), c.Values) {
						rec[k] = v
					}
				}
			case replication.RemoveLine:
				r.drop(child.Model, replication.RemoteID(c.ID))
			}
		}
		out[field] = r.lineIDs(child.Model, coll.Inverse, parent)
	}
	return out
}

func (r *fakeRemote) lineIDs(model, inverse string, parent replication.RemoteID) []replication.RemoteID {
	var out []replication.RemoteID
	for id := replication.RemoteID(1); id <= r.nextID; id++ {
		if vals, ok := r.records[model][id]; ok {
			if owner, _ := replication.ToInt64(vals[inverse]); owner == int64(parent) {
				out = append(out, id)
			}
		}
	}
	return out
}

// drop deletes a record together with the lines it owns
func (r *fakeRemote) drop(model string, id replication.RemoteID) {
	delete(r.records[model], id)
	schema := modelSchema(model)
	if schema == nil {
		return
	}
	for _, coll := range schema.Collections {
		if coll.LinksOnly {
			continue
		}
		child, _ := replication.SchemaFor(coll.Child)
		for _, line := range r.lineIDs(child.Model, coll.Inverse, id) {
			r.drop(child.Model, line)
		}
	}
}

// linesOf returns the remote lines owned by parent
func (r *fakeRemote) linesOf(model string, parent replication.RemoteID, field string) []replication.RemoteID {
	r.mu.Lock()
	defer r.mu.Unlock()
	coll, _ := modelSchema(model).Collection(field)
	child, _ := replication.SchemaFor(coll.Child)
	return r.lineIDs(child.Model, coll.Inverse, parent)
}

func (r *fakeRemote) received(model, field string) []replication.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines[model+"."+field]
}

func (r *fakeRemote) count(model string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records[model])
}

func (r *fakeRemote) get(model string, id replication.RemoteID) replication.Values {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[model][id]
}

func (r *fakeRemote) callCount(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (r *fakeRemote) Search(_ context.Context, model string, domain replication.Domain, limit int) ([]replication.RemoteID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(model + ".search"); err != nil {
		return nil, err
	}
	var out []replication.RemoteID
	for id := replication.RemoteID(1); id <= r.nextID; id++ {
		vals, ok := r.records[model][id]
		if !ok || !matches(vals, domain) {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func matches(vals replication.Values, domain replication.Domain) bool {
	for _, c := range domain {
		got, present := vals[c.Field]
		switch {
		case c.Value == false:
			if present && got != false && got != nil {
				return false
			}
		case c.Operator == replication.OpILike:
			gs, _ := got.(string)
			ws, _ := c.Value.(string)
			if !strings.EqualFold(gs, ws) {
				return false
			}
		default:
			gi, gok := replication.ToInt64(got)
			wi, wok := replication.ToInt64(c.Value)
			if gok && wok {
				if gi != wi {
					return false
				}
				continue
			}
			if fmt.Sprint(got) != fmt.Sprint(c.Value) {
				return false
			}
		}
	}
	return true
}

func (r *fakeRemote) Create(_ context.Context, model string, vals replication.Values) (replication.RemoteID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(model + ".create"); err != nil {
		return 0, err
	}
	if r.rejectName != "" && vals["name"] == r.rejectName {
		return 0, fmt.Errorf("%w: ValidationError", replication.ErrRemoteRejected)
	}
	if r.failCreate > 0 {
		r.failCreate--
		// The record lands but the response is lost
		id := r.insert(model, nil)
		r.records[model][id] = r.materialize(model, id, vals)
		return 0, fmt.Errorf("%w: read timeout", replication.ErrGatewayUnreachable)
	}
	id := r.insert(model, nil)
	r.records[model][id] = r.materialize(model, id, vals)
	return id, nil
}

func (r *fakeRemote) Write(_ context.Context, model string, ids []replication.RemoteID, vals replication.Values) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(model + ".write"); err != nil {
		return err
	}
	for _, id := range ids {
		rec, ok := r.records[model][id]
		if !ok {
			return fmt.Errorf("%w: %s(%d)", replication.ErrRemoteNotFound, model, id)
		}
		for k, v := range r.materialize(model, id, vals) {
			rec[k] = v
		}
	}
	return nil
}

func (r *fakeRemote) Unlink(_ context.Context, model string, ids []replication.RemoteID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(model + ".unlink"); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := r.records[model][id]; !ok {
			return fmt.Errorf("%w: %s(%d)", replication.ErrRemoteNotFound, model, id)
		}
		r.drop(model, id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Identity map
// ---------------------------------------------------------------------------

type memoryIdentityMap struct {
	mu       sync.Mutex
	toRemote map[replication.EntityType]map[replication.LocalID]replication.RemoteID
	toLocal  map[replication.EntityType]map[replication.RemoteID]replication.LocalID
}

func newMemoryIdentityMap() *memoryIdentityMap {
	return &memoryIdentityMap{
		toRemote: make(map[replication.EntityType]map[replication.LocalID]replication.RemoteID),
		toLocal:  make(map[replication.EntityType]map[replication.RemoteID]replication.LocalID),
	}
}

func (m *memoryIdentityMap) Lookup(_ context.Context, t replication.EntityType, id replication.LocalID) (replication.RemoteID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.toRemote[t][id]
	return r, ok, nil
}

func (m *memoryIdentityMap) LookupLocal(_ context.Context, t replication.EntityType, id replication.RemoteID) (replication.LocalID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.toLocal[t][id]
	return l, ok, nil
}

func (m *memoryIdentityMap) Bind(_ context.Context, t replication.EntityType, local replication.LocalID, remote replication.RemoteID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.toRemote[t] == nil {
		m.toRemote[t] = make(map[replication.LocalID]replication.RemoteID)
		m.toLocal[t] = make(map[replication.RemoteID]replication.LocalID)
	}
	if r, ok := m.toRemote[t][local]; ok {
		if r == remote {
			return nil
		}
		return replication.ErrIdentityConflict
	}
	if _, ok := m.toLocal[t][remote]; ok {
		return replication.ErrIdentityConflict
	}
	m.toRemote[t][local] = remote
	m.toLocal[t][remote] = local
	return nil
}

func (m *memoryIdentityMap) Unbind(_ context.Context, t replication.EntityType, id replication.LocalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.toRemote[t][id]; ok {
		delete(m.toRemote[t], id)
		delete(m.toLocal[t], r)
	}
	return nil
}

func (m *memoryIdentityMap) size(t replication.EntityType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.toRemote[t])
}

// ---------------------------------------------------------------------------
// Local store
// ---------------------------------------------------------------------------

type memoryStore struct {
	mu      sync.Mutex
	nextID  replication.LocalID
	records map[replication.LocalID]*replication.Record
	failOn  string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[replication.LocalID]*replication.Record)}
}

var errStoreDown = errors.New("store: connection lost")

func (s *memoryStore) Create(_ context.Context, records []*replication.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "create" {
		return errStoreDown
	}
	for _, rec := range records {
		s.insert(rec)
	}
	return nil
}

func (s *memoryStore) insert(rec *replication.Record) {
	s.nextID++
	rec.ID = s.nextID
	s.records[rec.ID] = rec
	for _, child := range rec.Children {
		parent := rec.ID
		child.ParentID = &parent
		child.Values[child.ParentField] = int64(parent)
		if schema, err := replication.SchemaFor(child.Type); err == nil {
			child.ScopeKey = replication.ScopeKey(schema, child.Values)
		}
		s.insert(child)
	}
}

func (s *memoryStore) Update(_ context.Context, t replication.EntityType, ids []replication.LocalID, values replication.Values) ([]*replication.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*replication.Record
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok || rec.Type != t {
			return nil, fmt.Errorf("%w: %s %d", replication.ErrRecordNotFound, t, id)
		}
		for k, v := range values {
			rec.Values[k] = v
		}
		rec.Name = rec.Values.Name()
		out = append(out, rec)
	}
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, t replication.EntityType, ids []replication.LocalID) ([]*replication.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*replication.Record
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok || rec.Type != t {
			continue
		}
		out = append(out, s.remove(rec)...)
	}
	return out, nil
}

func (s *memoryStore) remove(rec *replication.Record) []*replication.Record {
	out := []*replication.Record{rec}
	delete(s.records, rec.ID)
	for _, other := range s.records {
		if other.ParentID != nil && *other.ParentID == rec.ID {
			out = append(out, s.remove(other)...)
		}
	}
	return out
}

func (s *memoryStore) Get(_ context.Context, t replication.EntityType, id replication.LocalID) (*replication.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Type != t {
		return nil, fmt.Errorf("%w: %s %d", replication.ErrRecordNotFound, t, id)
	}
	return rec, nil
}

func (s *memoryStore) FindByIDs(_ context.Context, t replication.EntityType, ids []replication.LocalID) ([]*replication.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*replication.Record
	for _, id := range ids {
		if rec, ok := s.records[id]; ok && rec.Type == t {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memoryStore) ExistsByName(_ context.Context, t replication.EntityType, nameKey, scopeKey string, exclude replication.LocalID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Type == t && rec.ID != exclude && rec.ScopeKey == scopeKey && replication.NameKey(rec.Name) == nameKey {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) put(t replication.EntityType, vals replication.Values) *replication.Record {
	schema, _ := replication.SchemaFor(t)
	rec := replication.NewRecord(schema, vals)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(rec)
	return rec
}

func (s *memoryStore) ofType(t replication.EntityType) []*replication.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*replication.Record
	for _, rec := range s.records {
		if rec.Type == t {
			out = append(out, rec)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Config, dialer, locks, metrics
// ---------------------------------------------------------------------------

// MockConfigProvider is a mock implementation of ConfigProvider
type MockConfigProvider struct {
	mock.Mock
}

func (m *MockConfigProvider) SyncConfig(ctx context.Context) (replication.SyncConfig, error) {
	args := m.Called(ctx)
	return args.Get(0).(replication.SyncConfig), args.Error(1)
}

// MockSettingsStore is a mock implementation of SettingsStore
type MockSettingsStore struct {
	MockConfigProvider
}

func (m *MockSettingsStore) SaveSyncConfig(ctx context.Context, cfg replication.SyncConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

type configHolder struct {
	mu  sync.Mutex
	cfg replication.SyncConfig
	err error
}

func (h *configHolder) SyncConfig(context.Context) (replication.SyncConfig, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg, h.err
}

func (h *configHolder) set(cfg replication.SyncConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

type staticDialer struct {
	gw  replication.Gateway
	err error
}

func (d staticDialer) Dial(context.Context, replication.SyncConfig) (replication.Gateway, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.gw, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

type fakeLocker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (l *fakeLocker) Lock(_ context.Context, key string) (replication.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return noopLease{}, nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	degraded map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: map[string]int{}, degraded: map[string]int{}}
}

func (m *recordingMetrics) ObserveOutcome(t replication.EntityType, op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[string(t)+"/"+op+"/"+outcome]++
}

func (m *recordingMetrics) ObserveDegraded(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded[reason]++
}

func completeConfig() replication.SyncConfig {
	return replication.SyncConfig{
		URL:      "https://remote.example.com",
		Database: "erp",
		UserID:   2,
		Password: "secret",
		Enabled:  true,
	}
}
