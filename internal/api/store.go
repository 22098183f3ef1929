package api

import "github.com/wellpulse/server/internal/services"

// Store is the union of the narrow per-service store interfaces, the
// surface a persistence backend must provide. The SQLite store in
// internal/db and the in-memory store here both implement it.
type Store interface {
	services.AuthStore
	services.AccountStore
	services.MembershipStore
	services.SurveyStore

	ListAudit() []services.AuditEntry
}

var _ Store = (*MemoryStore)(nil)
