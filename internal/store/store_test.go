package store

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTradeCreateGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	entry := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	exit := decimal.RequireFromString("1.1050")
	trade := &Trade{
		AccountID:  "a1",
		Symbol:     "EURUSD",
		Type:       TradeTypeLong,
		Side:       TradeSideSell,
		Status:     TradeStatusClosed,
		Quantity:   decimal.RequireFromString("10000"),
		EntryPrice: decimal.RequireFromString("1.1000"),
		ExitPrice:  &exit,
		EntryTime:  &entry,
		EntryDate:  "2024-03-04",
		Tags:       []string{"breakout"},
	}
	require.NoError(t, store.Trades.Create(ctx, trade))
	require.NotEmpty(t, trade.ID)
	require.False(t, trade.CreatedAt.IsZero())
	require.Equal(t, trade.CreatedAt, trade.UpdatedAt)

	loaded, err := store.Trades.Get(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, trade.ID, loaded.ID)
	require.Equal(t, "a1", loaded.AccountID)
	require.Equal(t, TradeTypeLong, loaded.Type)
	require.Equal(t, TradeSideSell, loaded.Side)
	require.Equal(t, TradeStatusClosed, loaded.Status)
	requireDecimal(t, "10000", loaded.Quantity)
	requireDecimal(t, "1.1", loaded.EntryPrice)
	require.NotNil(t, loaded.ExitPrice)
	requireDecimal(t, "1.105", *loaded.ExitPrice)
	require.True(t, entry.Equal(*loaded.EntryTime))
	require.Nil(t, loaded.StopLoss)
	require.Equal(t, []string{"breakout"}, loaded.Tags)
	require.True(t, trade.CreatedAt.Equal(loaded.CreatedAt))
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Portfolios.Create(ctx, &Portfolio{Meta: Meta{ID: "p1"}, Name: "Main", UserID: "u1"}))
	err := store.Portfolios.Create(ctx, &Portfolio{Meta: Meta{ID: "p1"}, Name: "Other", UserID: "u2"})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := store.Portfolios.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Main", all[0].Name)
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AIStrategies.Delete(ctx, "missing"))
	require.NoError(t, store.AIStrategies.Delete(ctx, "missing"))

	strategy := &AIStrategy{Name: "mean reversion", Rules: []string{"fade 2 sigma moves"}}
	require.NoError(t, store.AIStrategies.Create(ctx, strategy))
	require.NoError(t, store.AIStrategies.Delete(ctx, strategy.ID))
	require.NoError(t, store.AIStrategies.Delete(ctx, strategy.ID))

	_, err := store.AIStrategies.Get(ctx, strategy.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInvalidRecordsRejectedByFacade(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, store.Trades.Create(ctx, nil), storage.ErrInvalidRecord)
	require.ErrorIs(t, store.Trades.Update(ctx, &Trade{}), storage.ErrInvalidRecord)
	require.ErrorIs(t, store.Trades.BulkInsert(ctx, nil), storage.ErrInvalidRecord)
	require.ErrorIs(t, store.Settings.Create(ctx, &Setting{Value: []byte(`1`)}), storage.ErrInvalidRecord)
	require.ErrorIs(t, store.Settings.Set(ctx, " ", 1), storage.ErrInvalidRecord)

	_, err := store.Trades.GetAll(ctx, Filter{Value: "x"})
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
	_, err = store.Trades.Get(ctx, "")
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
}

func TestScenarioTradeByAccountIndex(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Trades.Create(ctx, &Trade{
		Meta:       Meta{ID: "t1"},
		AccountID:  "a1",
		Symbol:     "EURUSD",
		Status:     TradeStatusOpen,
		EntryPrice: decimal.RequireFromString("1.1000"),
	}))
	require.NoError(t, store.Trades.Create(ctx, &Trade{Meta: Meta{ID: "t2"}, AccountID: "a2", Symbol: "EURUSD", Status: TradeStatusOpen}))

	records, err := store.Engine().GetAllByIndex(ctx, CollectionTrades, FieldAccountID, "a1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "t1", records[0].ID)

	trades, err := store.Trades.ByAccount(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "t1", trades[0].ID)
	requireDecimal(t, "1.1", trades[0].EntryPrice)
}

func TestScenarioAccountUpdateRefreshesUpdatedAt(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Accounts.Create(ctx, &Account{Meta: Meta{ID: "acc1"}, Name: "Main", Balance: decimal.NewFromInt(1000)}))
	created, err := store.Accounts.Get(ctx, "acc1")
	require.NoError(t, err)

	require.NoError(t, store.Accounts.Update(ctx, &Account{Meta: Meta{ID: "acc1"}, Name: "Main", Balance: decimal.NewFromInt(1250)}))

	loaded, err := store.Accounts.Get(ctx, "acc1")
	require.NoError(t, err)
	requireDecimal(t, "1250", loaded.Balance)
	require.True(t, loaded.UpdatedAt.After(loaded.CreatedAt))
	require.True(t, created.CreatedAt.Equal(loaded.CreatedAt))
}

func TestScenarioBulkInsertTwice(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	batch := func() []Trade {
		return []Trade{
			{Meta: Meta{ID: "t1"}, AccountID: "a1", Symbol: "EURUSD", Status: TradeStatusOpen},
			{Meta: Meta{ID: "t2"}, AccountID: "a1", Symbol: "GBPUSD", Status: TradeStatusClosed},
			{Meta: Meta{ID: "t3"}, AccountID: "a2", Symbol: "USDJPY", Status: TradeStatusPending},
		}
	}
	require.NoError(t, store.Trades.BulkInsert(ctx, batch()))
	all, err := store.Trades.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	err = store.Trades.BulkInsert(ctx, batch())
	require.ErrorIs(t, err, storage.ErrTransactionAborted)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err = store.Trades.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestBulkInsertIsAtomic(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Trades.Create(ctx, &Trade{Meta: Meta{ID: "dup"}, Symbol: "XAUUSD"}))

	batch := []Trade{
		{Meta: Meta{ID: "n1"}, Symbol: "EURUSD"},
		{Meta: Meta{ID: "n2"}, Symbol: "EURUSD"},
		{Meta: Meta{ID: "dup"}, Symbol: "EURUSD"},
		{Meta: Meta{ID: "n3"}, Symbol: "EURUSD"},
	}
	err := store.Trades.BulkInsert(ctx, batch)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := store.Trades.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "dup", all[0].ID)
	require.Equal(t, "XAUUSD", all[0].Symbol)
}

func TestBulkInsertAssignsIDs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	batch := make([]JournalEntry, 25)
	for i := range batch {
		batch[i] = JournalEntry{Date: "2024-05-01", Content: fmt.Sprintf("note %d", i)}
	}
	require.NoError(t, store.Journal.BulkInsert(ctx, batch))

	seen := map[string]struct{}{}
	for _, entry := range batch {
		require.NotEmpty(t, entry.ID)
		require.False(t, entry.CreatedAt.IsZero())
		seen[entry.ID] = struct{}{}
	}
	require.Len(t, seen, len(batch))

	byDate, err := store.Journal.GetAll(ctx, Filter{Field: FieldDate, Value: "2024-05-01"})
	require.NoError(t, err)
	require.Len(t, byDate, len(batch))
}

func TestFilterIndexAndScanAgree(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	symbols := []string{"EURUSD", "GBPUSD", "EURUSD", "USDJPY"}
	sides := []TradeSide{TradeSideBuy, TradeSideSell, TradeSideSell, TradeSideBuy}
	for i := range symbols {
		require.NoError(t, store.Trades.Create(ctx, &Trade{
			AccountID: fmt.Sprintf("a%d", i%2),
			Symbol:    symbols[i],
			Side:      sides[i],
			Status:    TradeStatusOpen,
		}))
	}

	all, err := store.Trades.GetAll(ctx)
	require.NoError(t, err)

	cases := []Filter{
		{Field: FieldSymbol, Value: "EURUSD"},
		{Field: FieldAccountID, Value: "a1"},
		{Field: FieldStatus, Value: TradeStatusOpen},
		{Field: FieldStatus, Value: TradeStatusClosed},
		{Field: "side", Value: TradeSideSell},
		{Field: "side", Value: "buy"},
	}
	for _, f := range cases {
		filtered, err := store.Trades.GetAll(ctx, f)
		require.NoError(t, err)

		expected := []string{}
		for _, trade := range all {
			var actual string
			switch f.Field {
			case FieldSymbol:
				actual = trade.Symbol
			case FieldAccountID:
				actual = trade.AccountID
			case FieldStatus:
				actual = string(trade.Status)
			case "side":
				actual = string(trade.Side)
			}
			if actual == fmt.Sprint(f.Value) {
				expected = append(expected, trade.ID)
			}
		}
		require.ElementsMatchf(t, expected, tradeIDs(filtered), "filter %s=%v", f.Field, f.Value)
	}

	combined, err := store.Trades.GetAll(ctx, Filter{Field: "side", Value: TradeSideSell}, Filter{Field: FieldSymbol, Value: "EURUSD"})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	require.Equal(t, TradeSideSell, combined[0].Side)
	require.Equal(t, "EURUSD", combined[0].Symbol)
}

func TestReplaceUpdateUpsertsAndKeepsCreatedAt(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.Equal(t, ReplaceSemantics, store.Trades.Semantics())

	trade := &Trade{Meta: Meta{ID: "up1"}, Symbol: "EURUSD", Notes: "first"}
	require.NoError(t, store.Trades.Update(ctx, trade))
	inserted, err := store.Trades.Get(ctx, "up1")
	require.NoError(t, err)
	require.Equal(t, "first", inserted.Notes)

	replacement := &Trade{Meta: Meta{ID: "up1", Stamps: Stamps{CreatedAt: time.Unix(0, 0).UTC()}}, Symbol: "GBPUSD"}
	require.NoError(t, store.Trades.Update(ctx, replacement))

	loaded, err := store.Trades.Get(ctx, "up1")
	require.NoError(t, err)
	require.Equal(t, "GBPUSD", loaded.Symbol)
	require.Empty(t, loaded.Notes)
	require.True(t, inserted.CreatedAt.Equal(loaded.CreatedAt))
	require.True(t, loaded.UpdatedAt.After(loaded.CreatedAt))
}

func TestJournalUpdateMerges(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.Equal(t, MergeSemantics, store.Journal.Semantics())

	entry := &JournalEntry{Date: "2024-06-01", Title: "Monday", Content: "patient", Mood: "calm", Tags: []string{"fomc"}}
	require.NoError(t, store.Journal.Create(ctx, entry))

	patch := &JournalEntry{Meta: Meta{ID: entry.ID}, Mood: "anxious"}
	require.NoError(t, store.Journal.Update(ctx, patch))
	require.Equal(t, "Monday", patch.Title)

	loaded, err := store.Journal.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, "anxious", loaded.Mood)
	require.Equal(t, "patient", loaded.Content)
	require.Equal(t, "2024-06-01", loaded.Date)
	require.Equal(t, []string{"fomc"}, loaded.Tags)
	require.True(t, entry.CreatedAt.Equal(loaded.CreatedAt))
	require.True(t, loaded.UpdatedAt.After(loaded.CreatedAt))
}

func TestJournalUpdateMissingIsNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	err := store.Journal.Update(ctx, &JournalEntry{Meta: Meta{ID: "nope"}, Content: "x"})
	require.ErrorIs(t, err, storage.ErrNotFound)

	n, err := store.Journal.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSettingsValueAndSet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	type riskDefaults struct {
		MaxRiskPercent float64 `json:"maxRiskPercent"`
		Currency       string  `json:"currency"`
	}
	require.NoError(t, store.Settings.Set(ctx, "risk", riskDefaults{MaxRiskPercent: 1.5, Currency: "USD"}))

	var got riskDefaults
	require.NoError(t, store.Settings.Value(ctx, "risk", &got))
	require.Equal(t, riskDefaults{MaxRiskPercent: 1.5, Currency: "USD"}, got)

	require.NoError(t, store.Settings.Set(ctx, "risk", riskDefaults{MaxRiskPercent: 2, Currency: "EUR"}))
	require.NoError(t, store.Settings.Value(ctx, "risk", &got))
	require.Equal(t, "EUR", got.Currency)

	var theme string
	err := store.Settings.Value(ctx, "theme", &theme)
	require.ErrorIs(t, err, storage.ErrNotFound)

	all, err := store.Settings.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "risk", all[0].Key)
}

func TestUsersCurrentAndByEmail(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Users.Current(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	limit := decimal.NewFromInt(500)
	user := &User{
		Email:       "trader@example.com",
		Preferences: Preferences{Theme: "dark", Notifications: true, Currency: "USD", Timezone: "UTC"},
		Settings: UserSettings{
			APIKeys:       map[string]string{"openai": "sk-test"},
			TradingLimits: TradingLimits{MaxDailyLoss: &limit, MaxOpenTrades: 3},
		},
	}
	require.NoError(t, store.Users.Create(ctx, user))

	current, err := store.Users.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, user.ID, current.ID)
	require.Equal(t, "dark", current.Preferences.Theme)
	require.Equal(t, "sk-test", current.Settings.APIKeys["openai"])
	requireDecimal(t, "500", *current.Settings.TradingLimits.MaxDailyLoss)

	byEmail, err := store.Users.ByEmail(ctx, "trader@example.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, byEmail.ID)

	_, err = store.Users.ByEmail(ctx, "other@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountsByPortfolioAndSetBalance(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Accounts.Create(ctx, &Account{Meta: Meta{ID: "x1"}, Name: "A", PortfolioID: "p1"}))
	require.NoError(t, store.Accounts.Create(ctx, &Account{Meta: Meta{ID: "x2"}, Name: "B", PortfolioID: "p2"}))

	inP1, err := store.Accounts.ByPortfolio(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, inP1, 1)
	require.Equal(t, "x1", inP1[0].ID)

	updated, err := store.Accounts.SetBalance(ctx, "x1", decimal.RequireFromString("42.50"))
	require.NoError(t, err)
	requireDecimal(t, "42.5", updated.Balance)

	_, err = store.Accounts.SetBalance(ctx, "missing", decimal.Zero)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExportClearImportRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	seedStore(t, store)

	before, err := store.ExportAll(ctx)
	require.NoError(t, err)
	require.Equal(t, SnapshotFormatVersion, before.FormatVersion)
	require.Len(t, before.Trades, 2)
	require.Len(t, before.Users, 1)
	require.Len(t, before.Settings, 1)

	require.NoError(t, store.ClearAll(ctx))
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	for name, n := range stats {
		require.Zerof(t, n, "collection %s not empty", name)
	}

	result, err := store.ImportAll(ctx, before, ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, result.Trades.Created)
	require.Equal(t, 1, result.Settings.Created)

	after, err := store.ExportAll(ctx)
	require.NoError(t, err)
	require.Equal(t, tradeIDs(before.Trades), tradeIDs(after.Trades))
	require.Equal(t, len(before.Portfolios), len(after.Portfolios))
	require.Equal(t, len(before.Accounts), len(after.Accounts))
	require.Equal(t, len(before.JournalEntries), len(after.JournalEntries))
	require.Equal(t, len(before.AISessions), len(after.AISessions))
	require.Equal(t, len(before.AIStrategies), len(after.AIStrategies))
	require.Equal(t, before.Users[0].ID, after.Users[0].ID)
	require.True(t, before.Trades[0].CreatedAt.Equal(after.Trades[0].CreatedAt))
	require.Equal(t, before.Settings[0].Key, after.Settings[0].Key)
	require.JSONEq(t, string(before.Settings[0].Value), string(after.Settings[0].Value))
}

func TestImportOfEmptyExportIsNoop(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ClearAll(ctx))
	snap, err := store.ExportAll(ctx)
	require.NoError(t, err)

	result, err := store.ImportAll(ctx, snap, ImportOptions{})
	require.NoError(t, err)
	require.Zero(t, result.Total().Total())

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	for _, n := range stats {
		require.Zero(t, n)
	}
}

func TestImportAssignsMissingIDsAndTimestamps(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	snap := &Snapshot{
		FormatVersion: SnapshotFormatVersion,
		Trades:        []Trade{{Symbol: "EURUSD"}, {Meta: Meta{ID: "keep"}, Symbol: "GBPUSD"}},
	}
	result, err := store.ImportAll(ctx, snap, ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, result.Trades.Created)

	all, err := store.Trades.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, trade := range all {
		require.NotEmpty(t, trade.ID)
		require.False(t, trade.CreatedAt.IsZero())
	}
	_, err = store.Trades.Get(ctx, "keep")
	require.NoError(t, err)
}

func TestImportConflictModes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	incoming := func() *Snapshot {
		return &Snapshot{
			FormatVersion: SnapshotFormatVersion,
			Trades: []Trade{
				{Meta: Meta{ID: "t1"}, Symbol: "INCOMING"},
				{Meta: Meta{ID: "t9"}, Symbol: "NEW"},
			},
			Settings: []Setting{{Key: "theme", Value: []byte(`"light"`)}},
		}
	}
	seed := func(t *testing.T) *Store {
		store := newTestStore(t)
		require.NoError(t, store.Trades.Create(ctx, &Trade{Meta: Meta{ID: "t1"}, Symbol: "EXISTING"}))
		require.NoError(t, store.Settings.Set(ctx, "theme", "dark"))
		return store
	}

	t.Run("fail rolls back everything", func(t *testing.T) {
		t.Parallel()
		store := seed(t)
		_, err := store.ImportAll(ctx, incoming(), ImportOptions{OnConflict: ConflictModeFail})
		require.ErrorIs(t, err, storage.ErrDuplicateKey)
		require.ErrorIs(t, err, storage.ErrTransactionAborted)

		_, err = store.Trades.Get(ctx, "t9")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("skip keeps existing", func(t *testing.T) {
		t.Parallel()
		store := seed(t)
		result, err := store.ImportAll(ctx, incoming(), ImportOptions{OnConflict: ConflictModeSkip})
		require.NoError(t, err)
		require.Equal(t, ImportCounts{Created: 1, Skipped: 1}, result.Trades)
		require.Equal(t, ImportCounts{Skipped: 1}, result.Settings)

		t1, err := store.Trades.Get(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, "EXISTING", t1.Symbol)
	})

	t.Run("overwrite replaces existing", func(t *testing.T) {
		t.Parallel()
		store := seed(t)
		result, err := store.ImportAll(ctx, incoming(), ImportOptions{OnConflict: ConflictModeOverwrite})
		require.NoError(t, err)
		require.Equal(t, ImportCounts{Created: 1, Updated: 1}, result.Trades)

		t1, err := store.Trades.Get(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, "INCOMING", t1.Symbol)

		var theme string
		require.NoError(t, store.Settings.Value(ctx, "theme", &theme))
		require.Equal(t, "light", theme)
	})

	t.Run("rename keeps both", func(t *testing.T) {
		t.Parallel()
		store := seed(t)
		result, err := store.ImportAll(ctx, incoming(), ImportOptions{OnConflict: ConflictModeRename})
		require.NoError(t, err)
		require.Equal(t, ImportCounts{Created: 2}, result.Trades)

		n, err := store.Trades.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, n)

		var theme string
		require.NoError(t, store.Settings.Value(ctx, "theme-imported-1", &theme))
		require.Equal(t, "light", theme)
	})
}

func TestImportRejectsBadInput(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ImportAll(ctx, nil, ImportOptions{})
	require.ErrorIs(t, err, storage.ErrInvalidRecord)

	_, err = store.ImportAll(ctx, &Snapshot{FormatVersion: 99}, ImportOptions{})
	require.ErrorIs(t, err, storage.ErrInvalidRecord)

	_, err = store.ImportAll(ctx, &Snapshot{FormatVersion: SnapshotFormatVersion}, ImportOptions{OnConflict: "merge"})
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
}

func TestClearAllLeavesStoreWritable(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ClearAll(ctx))
	seedStore(t, store)
	require.NoError(t, store.ClearAll(ctx))
	require.NoError(t, store.ClearAll(ctx))

	require.NoError(t, store.Trades.Create(ctx, &Trade{Symbol: "EURUSD"}))
	n, err := store.Trades.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSnapshotEncodeDecodeFormats(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	seedStore(t, store)

	snap, err := store.ExportAll(ctx)
	require.NoError(t, err)

	for _, format := range []SnapshotFormat{FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		require.NoError(t, EncodeSnapshot(&buf, snap, format))
		if format == FormatJSON {
			require.True(t, strings.HasPrefix(buf.String(), "{"))
		} else {
			require.Contains(t, buf.String(), "formatVersion: 1")
		}

		decoded, err := DecodeSnapshot(&buf, format)
		require.NoErrorf(t, err, "format %s", format)
		require.Equal(t, snap.FormatVersion, decoded.FormatVersion)
		require.True(t, snap.ExportedAt.Equal(decoded.ExportedAt))
		require.Equal(t, tradeIDs(snap.Trades), tradeIDs(decoded.Trades))
		require.Equal(t, snap.JournalEntries[0].Date, decoded.JournalEntries[0].Date)
		requireDecimal(t, snap.Trades[0].EntryPrice.String(), decoded.Trades[0].EntryPrice)
		require.JSONEq(t, string(snap.Settings[0].Value), string(decoded.Settings[0].Value))
	}

	_, err = DecodeSnapshot(strings.NewReader("  "), FormatJSON)
	require.ErrorIs(t, err, storage.ErrInvalidRecord)

	_, err = ParseSnapshotFormat("xml")
	require.Error(t, err)
}

func TestULIDScheme(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), Options{
		Path:     filepath.Join(t.TempDir(), "ulid.db"),
		IDScheme: IDSchemeULID,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	ctx := context.Background()
	var ids []string
	for i := 0; i < 20; i++ {
		session := &AICoachSession{Title: fmt.Sprintf("session %d", i)}
		require.NoError(t, store.AISessions.Create(ctx, session))
		require.Len(t, session.ID, 26)
		ids = append(ids, session.ID)
	}
	require.True(t, sort.StringsAreSorted(ids))

	_, err = NewIDGenerator("snowflake")
	require.Error(t, err)
}

func TestOpenFailsForUnusablePath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Options{Path: ""})
	require.Error(t, err)
}

func TestSchemaDeclaresEveryCollection(t *testing.T) {
	t.Parallel()

	schema := Schema()
	require.NoError(t, schema.Validate())
	collections := schema.Collections()
	for _, name := range snapshotCollections {
		require.Containsf(t, collections, name, "collection %s", name)
	}
	require.Len(t, collections, len(snapshotCollections))
	require.Len(t, collections[CollectionTrades].Indexes, 4)
	require.Len(t, collections[CollectionAccounts].Indexes, 2)
}

func seedStore(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	user := &User{Meta: Meta{ID: "u1"}, Email: "seed@example.com"}
	require.NoError(t, store.Users.Create(ctx, user))
	portfolio := &Portfolio{Meta: Meta{ID: "p1"}, Name: "Main", UserID: user.ID, Color: "#00aaff"}
	require.NoError(t, store.Portfolios.Create(ctx, portfolio))
	account := &Account{Meta: Meta{ID: "a1"}, Name: "FTMO", Type: AccountTypeDemo, Balance: decimal.NewFromInt(100000), Currency: "USD", PortfolioID: portfolio.ID, UserID: user.ID}
	require.NoError(t, store.Accounts.Create(ctx, account))
	require.NoError(t, store.Trades.BulkInsert(ctx, []Trade{
		{Meta: Meta{ID: "t1"}, AccountID: account.ID, Symbol: "EURUSD", Status: TradeStatusOpen, EntryPrice: decimal.RequireFromString("1.1000"), Quantity: decimal.NewFromInt(1)},
		{Meta: Meta{ID: "t2"}, AccountID: account.ID, Symbol: "XAUUSD", Status: TradeStatusClosed, EntryPrice: decimal.RequireFromString("2350.5"), Quantity: decimal.NewFromInt(2)},
	}))
	require.NoError(t, store.Journal.Create(ctx, &JournalEntry{Date: "2024-01-02", Content: "stuck to the plan", Mood: "calm"}))
	require.NoError(t, store.AISessions.Create(ctx, &AICoachSession{Title: "review", Messages: []AIMessage{{Role: "user", Content: "how did I do?"}}}))
	require.NoError(t, store.AIStrategies.Create(ctx, &AIStrategy{Name: "london breakout"}))
	require.NoError(t, store.Settings.Set(ctx, "dashboard", map[string]any{"widgets": []string{"pnl", "winrate"}}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "store.db")})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func tradeIDs(trades []Trade) []string {
	out := make([]string, 0, len(trades))
	for _, trade := range trades {
		out = append(out, trade.ID)
	}
	return out
}
