package store

import "github.com/Millsondylan/quantum-risk-coach-sub004/internal/storage"

const (
	CollectionTrades         = "trades"
	CollectionPortfolios     = "portfolios"
	CollectionAccounts       = "accounts"
	CollectionUsers          = "users"
	CollectionJournalEntries = "journalEntries"
	CollectionSettings       = "settings"
	CollectionAISessions     = "aiSessions"
	CollectionAIStrategies   = "aiStrategies"
)

// Indexed document fields. Index names equal the field they cover.
const (
	FieldAccountID   = "accountId"
	FieldSymbol      = "symbol"
	FieldStatus      = "status"
	FieldEntryDate   = "entryDate"
	FieldUserID      = "userId"
	FieldPortfolioID = "portfolioId"
	FieldEmail       = "email"
	FieldDate        = "date"
)

func fieldIndexes(fields ...string) []storage.IndexSpec {
	out := make([]storage.IndexSpec, 0, len(fields))
	for _, field := range fields {
		out = append(out, storage.IndexSpec{Name: field, Field: field})
	}
	return out
}

// Schema is the versioned collection layout of the store. New steps are only
// ever appended.
func Schema() storage.Schema {
	return storage.Schema{Steps: []storage.SchemaStep{
		{
			Version:     1,
			Description: "trades, users, journal entries and settings",
			Collections: []storage.CollectionSpec{
				{Name: CollectionTrades, Indexes: fieldIndexes(FieldAccountID, FieldSymbol, FieldStatus, FieldEntryDate)},
				{Name: CollectionUsers, Indexes: fieldIndexes(FieldEmail)},
				{Name: CollectionJournalEntries, Indexes: fieldIndexes(FieldDate)},
				{Name: CollectionSettings},
			},
		},
		{
			Version:     2,
			Description: "portfolios and accounts",
			Collections: []storage.CollectionSpec{
				{Name: CollectionPortfolios, Indexes: fieldIndexes(FieldUserID)},
				{Name: CollectionAccounts, Indexes: fieldIndexes(FieldPortfolioID, FieldUserID)},
			},
		},
		{
			Version:     3,
			Description: "ai coach sessions and strategies",
			Collections: []storage.CollectionSpec{
				{Name: CollectionAISessions},
				{Name: CollectionAIStrategies},
			},
		},
	}}
}

// snapshotCollections is the order collections are exported and imported in.
var snapshotCollections = []string{
	CollectionTrades,
	CollectionPortfolios,
	CollectionAccounts,
	CollectionJournalEntries,
	CollectionUsers,
	CollectionAISessions,
	CollectionAIStrategies,
	CollectionSettings,
}
