// Package models contains GORM persistence models that map to database tables.
// They are kept apart from domain entities so the domain stays free of ORM
// concerns; every model converts with ToDomain and FromDomain.
//
//   - base.go: BaseModel and AggregateModel
//   - replication.go: identity map, local records, config parameters
//   - commission.go: fiscal years, rules, records, activity, payouts
package models
