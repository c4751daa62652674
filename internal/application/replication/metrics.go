package replication

import "github.com/erp/salesync/internal/domain/replication"

// Operation names used in metrics
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpSync   = "sync"
)

// Outcomes of a per-record replication attempt
const (
	OutcomeCreated   = "created"
	OutcomeLinked    = "linked"
	OutcomeWritten   = "written"
	OutcomeUnlinked  = "unlinked"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeLocalOnly = "local_only"
)

// Reasons replication degraded to local-only
const (
	ReasonDisabled           = "disabled"
	ReasonConfigUnavailable  = "config_unavailable"
	ReasonConfigIncomplete   = "config_incomplete"
	ReasonGatewayUnreachable = "gateway_unreachable"
	ReasonLockUnavailable    = "lock_unavailable"
)

// Metrics receives replication outcomes
type Metrics interface {
	ObserveOutcome(t replication.EntityType, op, outcome string)
	ObserveDegraded(reason string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOutcome(replication.EntityType, string, string) {}
func (nopMetrics) ObserveDegraded(string)                                {}
