package replication

import (
	"errors"

	"github.com/erp/salesync/internal/domain/shared"
)

// Replication failure taxonomy
var (
	ErrConfigIncomplete    = errors.New("replication: sync configuration incomplete")
	ErrGatewayUnreachable  = errors.New("replication: remote system unreachable")
	ErrRemoteRejected      = errors.New("replication: remote system rejected the call")
	ErrRemoteNotFound      = errors.New("replication: remote record not found")
	ErrIdentityConflict    = errors.New("replication: identity already bound")
	ErrUnresolvedReference = errors.New("replication: referenced entity could not be resolved")
	ErrDependencyCycle     = errors.New("replication: cyclic dependency")
	ErrLookupOnly          = errors.New("replication: entity type is never created remotely")
)

// Local validation errors
var (
	ErrUnknownEntityType   = errors.New("replication: unknown entity type")
	ErrMalformedNaturalKey = errors.New("replication: malformed natural key")
	ErrRecordNotFound      = errors.New("replication: local record not found")
)

// Error codes for local constraint violations
const (
	CodeDuplicateName  = "ALREADY_EXISTS"
	CodeMalformedKey   = "INVALID_INPUT"
	CodeNestedOnly     = "INVALID_INPUT"
	CodeUnknownType    = "INVALID_INPUT"
	CodeRecordNotFound = "NOT_FOUND"
)

// NewDuplicateNameError reports a local uniqueness violation
func NewDuplicateNameError(t EntityType, name string) *shared.DomainError {
	return shared.NewDomainError(CodeDuplicateName, "a "+string(t)+" named \""+name+"\" already exists")
}

// NewInvalidPayloadError reports a payload rejected before any write
func NewInvalidPayloadError(err error) *shared.DomainError {
	return shared.WrapDomainError(CodeMalformedKey, err)
}

// IsDegradation reports whether err is a failure replication recovers
// from locally rather than surfacing to the caller.
func IsDegradation(err error) bool {
	return errors.Is(err, ErrConfigIncomplete) ||
		errors.Is(err, ErrGatewayUnreachable) ||
		errors.Is(err, ErrRemoteRejected) ||
		errors.Is(err, ErrRemoteNotFound)
}
