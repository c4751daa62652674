package gateway

import (
	"github.com/erp/salesync/internal/domain/replication"
)

// Command codes of the remote x2many write protocol
const (
	cmdCreate = 0
	cmdUpdate = 1
	cmdDelete = 2
	cmdSet    = 6
)

// encodeDomain converts a search domain into a list of
// [field, operator, value] triples. An empty domain matches every record.
func encodeDomain(d replication.Domain) []any {
	out := make([]any, 0, len(d))
	for _, c := range d {
		out = append(out, []any{c.Field, c.Operator, encodeValue(c.Value)})
	}
	return out
}

// encodeValues prepares a payload for the wire. Line commands become
// remote command tuples, recursively.
func encodeValues(v replication.Values) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = encodeValue(val)
	}
	return out
}

func encodeValue(val any) any {
	switch x := val.(type) {
	case replication.RemoteID:
		return int64(x)
	case replication.LocalID:
		return int64(x)
	case replication.Values:
		return encodeValues(x)
	case []replication.Command:
		return encodeCommands(x)
	case []replication.RemoteID:
		return remoteIDs(x)
	}
	return val
}

func encodeCommands(cmds []replication.Command) []any {
	out := make([]any, 0, len(cmds))
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case replication.AddLine:
			out = append(out, []any{cmdCreate, 0, encodeValues(c.Values)})
		case replication.UpdateLine:
			out = append(out, []any{cmdUpdate, c.ID, encodeValues(c.Values)})
		case replication.RemoveLine:
			out = append(out, []any{cmdDelete, c.ID, 0})
		case replication.LinkLines:
			ids := c.IDs
			if ids == nil {
				ids = []int64{}
			}
			out = append(out, []any{cmdSet, 0, ids})
		}
	}
	return out
}

func remoteIDs(ids []replication.RemoteID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
