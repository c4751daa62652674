package replication

import "time"

// Record is a locally stored synchronized entity
type Record struct {
	ID          LocalID
	Type        EntityType
	Name        string
	Values      Values
	ParentID    *LocalID
	ParentField string
	// ScopeKey narrows name uniqueness (for example the owning attribute)
	ScopeKey  string
	Children  []*Record
	RemoteID  *RemoteID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord builds an unsaved local record from a normalized payload.
// Collection fields are split off into child records.
func NewRecord(schema *Schema, v Values) *Record {
	rec := &Record{
		Type:   schema.Type,
		Name:   v.Name(),
		Values: make(Values, len(v)),
	}
	for field, val := range v {
		coll, ok := schema.Collection(field)
		if !ok || coll.LinksOnly {
			rec.Values[field] = val
			continue
		}
		childSchema, err := SchemaFor(coll.Child)
		if err != nil {
			continue
		}
		for _, cmd := range v.Commands(field) {
			add, ok := cmd.(AddLine)
			if !ok {
				continue
			}
			child := NewRecord(childSchema, add.Values)
			child.ParentField = coll.Inverse
			rec.Children = append(rec.Children, child)
		}
	}
	rec.ScopeKey = ScopeKey(schema, rec.Values)
	return rec
}

// ScopeKey returns the uniqueness scope value for a payload
func ScopeKey(schema *Schema, v Values) string {
	if schema.UniqueScope == "" {
		return ""
	}
	if id, ok := ToInt64(v[schema.UniqueScope]); ok {
		return LocalID(id).String()
	}
	return ""
}

// IsBound reports whether the record has a remote counterpart
func (r *Record) IsBound() bool {
	return r.RemoteID != nil && *r.RemoteID > 0
}

// Bind sets the remote counterpart on the in-memory record
func (r *Record) Bind(id RemoteID) {
	r.RemoteID = &id
}

// Payload returns the values used to mirror the record, children included
// as AddLine commands under their parent collection field.
func (r *Record) Payload(schema *Schema) Values {
	out := r.Values.Clone()
	for _, child := range r.Children {
		for field, coll := range schema.Collections {
			if coll.Child != child.Type || coll.Inverse != child.ParentField {
				continue
			}
			cmds, _ := out[field].([]Command)
			vals := child.Values.Clone()
			delete(vals, coll.Inverse)
			out[field] = append(cmds, AddLine{Values: vals})
		}
	}
	return out
}
