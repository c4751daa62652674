package gateway

import (
	"fmt"
	"strings"

	"github.com/erp/salesync/internal/domain/replication"
)

// RPCError is an error returned by the remote system inside a JSON-RPC
// response. It unwraps to replication.ErrRemoteNotFound when the remote
// reports a missing record and to replication.ErrRemoteRejected otherwise.
type RPCError struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    RPCErrorData `json:"data"`

	Model  string `json:"-"`
	Method string `json:"-"`
}

// RPCErrorData carries the server-side exception
type RPCErrorData struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Debug   string `json:"debug"`
}

func (e *RPCError) Error() string {
	msg := e.Data.Message
	if msg == "" {
		msg = e.Message
	}
	return fmt.Sprintf("gateway: %s.%s: %s", e.Model, e.Method, msg)
}

// Unwrap maps the remote exception onto the replication taxonomy
func (e *RPCError) Unwrap() error {
	if e.NotFound() {
		return replication.ErrRemoteNotFound
	}
	return replication.ErrRemoteRejected
}

// NotFound reports whether the remote record no longer exists
func (e *RPCError) NotFound() bool {
	if strings.HasSuffix(e.Data.Name, "MissingError") {
		return true
	}
	msg := strings.ToLower(e.Data.Message + " " + e.Message)
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "has been deleted")
}

func unreachable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", replication.ErrGatewayUnreachable, fmt.Sprintf(format, args...))
}
