package replication

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Values is a field-name keyed payload for a single record
type Values map[string]any

// Clone returns a shallow copy of the payload
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// String returns the value of a string field, or "" when absent
func (v Values) String(field string) string {
	s, _ := v[field].(string)
	return s
}

// Name returns the trimmed record name
func (v Values) Name() string {
	return strings.TrimSpace(v.String("name"))
}

// Has reports whether a field carries a usable value.
// Missing fields, nil, false and empty strings count as unset.
func (v Values) Has(field string) bool {
	val, ok := v[field]
	if !ok || val == nil {
		return false
	}
	switch x := val.(type) {
	case bool:
		return x
	case string:
		return strings.TrimSpace(x) != ""
	}
	return true
}

// ---------------------------------------------------------------------------
// Line commands
// ---------------------------------------------------------------------------

// Command is an operation on a one-to-many or many-to-many field
type Command interface {
	command()
}

// AddLine creates a new child record
type AddLine struct {
	Values Values
}

// UpdateLine updates an existing child record
type UpdateLine struct {
	ID     int64
	Values Values
}

// RemoveLine deletes an existing child record
type RemoveLine struct {
	ID int64
}

// LinkLines replaces the set of linked records
type LinkLines struct {
	IDs []int64
}

// UnknownCommand is a command shape the remote schema does not understand,
// such as combo or bundle references. It is never forwarded.
type UnknownCommand struct {
	Raw any
}

func (AddLine) command()        {}
func (UpdateLine) command()     {}
func (RemoveLine) command()     {}
func (LinkLines) command()      {}
func (UnknownCommand) command() {}

// Commands returns the commands held by a collection field.
// Raw JSON shapes are decoded on the fly.
func (v Values) Commands(field string) []Command {
	switch x := v[field].(type) {
	case []Command:
		return x
	case []any:
		return DecodeCommands(x)
	}
	return nil
}

// DecodeCommands converts loosely typed command payloads into Commands.
// Both object form ({"op":"add","values":{}}) and tuple form ([0,0,{}]) are
// accepted. Anything else becomes an UnknownCommand.
func DecodeCommands(raw []any) []Command {
	out := make([]Command, 0, len(raw))
	for _, item := range raw {
		out = append(out, decodeCommand(item))
	}
	return out
}

func decodeCommand(item any) Command {
	switch x := item.(type) {
	case Command:
		return x
	case map[string]any:
		return decodeObjectCommand(x)
	case []any:
		return decodeTupleCommand(x)
	}
	return UnknownCommand{Raw: item}
}

func decodeObjectCommand(m map[string]any) Command {
	op, _ := m["op"].(string)
	switch op {
	case "add":
		vals, ok := asValues(m["values"])
		if !ok {
			break
		}
		return AddLine{Values: vals}
	case "update":
		id, ok := ToInt64(m["id"])
		vals, vok := asValues(m["values"])
		if !ok || !vok {
			break
		}
		return UpdateLine{ID: id, Values: vals}
	case "remove":
		if id, ok := ToInt64(m["id"]); ok {
			return RemoveLine{ID: id}
		}
	case "set":
		if ids, ok := toInt64Slice(m["ids"]); ok {
			return LinkLines{IDs: ids}
		}
	}
	return UnknownCommand{Raw: m}
}

func decodeTupleCommand(t []any) Command {
	if len(t) == 0 {
		return UnknownCommand{Raw: t}
	}
	code, ok := ToInt64(t[0])
	if !ok {
		return UnknownCommand{Raw: t}
	}
	switch {
	case code == 0 && len(t) == 3:
		if vals, ok := asValues(t[2]); ok {
			return AddLine{Values: vals}
		}
	case code == 1 && len(t) == 3:
		id, idOK := ToInt64(t[1])
		vals, vOK := asValues(t[2])
		if idOK && vOK {
			return UpdateLine{ID: id, Values: vals}
		}
	case code == 2 && len(t) >= 2:
		if id, ok := ToInt64(t[1]); ok {
			return RemoveLine{ID: id}
		}
	case code == 6 && len(t) == 3:
		if ids, ok := toInt64Slice(t[2]); ok {
			return LinkLines{IDs: ids}
		}
	}
	return UnknownCommand{Raw: t}
}

func asValues(v any) (Values, bool) {
	switch x := v.(type) {
	case Values:
		return x, true
	case map[string]any:
		return Values(x), true
	}
	return nil, false
}

func toInt64Slice(v any) ([]int64, bool) {
	switch x := v.(type) {
	case []int64:
		return x, true
	case []any:
		out := make([]int64, 0, len(x))
		for _, item := range x {
			id, ok := ToInt64(item)
			if !ok {
				return nil, false
			}
			out = append(out, id)
		}
		return out, true
	}
	return nil, false
}

// ToInt64 coerces an identifier-like value into an int64.
// JSON numbers arrive as float64 and are accepted only when integral and
// within the int64 range.
func ToInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case LocalID:
		return int64(x), true
	case RemoteID:
		return int64(x), true
	case float64:
		if x != math.Trunc(x) || x < -(1<<63) || x >= 1<<63 {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}
