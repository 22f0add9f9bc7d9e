package store

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Stamps are the store-assigned timestamps carried by every document.
type Stamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Stamps) timestamps() *Stamps { return s }

// Meta is embedded by every id-keyed document.
type Meta struct {
	ID string `json:"id"`
	Stamps
}

func (m *Meta) documentKey() string       { return m.ID }
func (m *Meta) setDocumentKey(key string) { m.ID = key }

type TradeStatus string

const (
	TradeStatusOpen      TradeStatus = "open"
	TradeStatusClosed    TradeStatus = "closed"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusPending   TradeStatus = "pending"
)

type TradeType string

const (
	TradeTypeLong  TradeType = "long"
	TradeTypeShort TradeType = "short"
)

type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is one executed or planned position. Type and Side are independent
// caller-supplied attributes; neither is derived from the other.
type Trade struct {
	Meta
	AccountID  string           `json:"accountId"`
	Symbol     string           `json:"symbol"`
	Type       TradeType        `json:"type,omitempty"`
	Side       TradeSide        `json:"side,omitempty"`
	Status     TradeStatus      `json:"status"`
	Quantity   decimal.Decimal  `json:"quantity"`
	EntryPrice decimal.Decimal  `json:"entryPrice"`
	ExitPrice  *decimal.Decimal `json:"exitPrice,omitempty"`
	StopLoss   *decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit *decimal.Decimal `json:"takeProfit,omitempty"`
	Fees       *decimal.Decimal `json:"fees,omitempty"`
	ProfitLoss *decimal.Decimal `json:"profitLoss,omitempty"`
	EntryTime  *time.Time       `json:"entryTime,omitempty"`
	ExitTime   *time.Time       `json:"exitTime,omitempty"`
	EntryDate  string           `json:"entryDate,omitempty"`
	Strategy   string           `json:"strategy,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
}

type Portfolio struct {
	Meta
	Name        string `json:"name"`
	UserID      string `json:"userId"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

type AccountType string

const (
	AccountTypeLive  AccountType = "live"
	AccountTypeDemo  AccountType = "demo"
	AccountTypePaper AccountType = "paper"
)

type Account struct {
	Meta
	Name        string          `json:"name"`
	Type        AccountType     `json:"type,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency,omitempty"`
	Broker      string          `json:"broker,omitempty"`
	PortfolioID string          `json:"portfolioId,omitempty"`
	UserID      string          `json:"userId,omitempty"`
}

type Preferences struct {
	Theme         string `json:"theme,omitempty"`
	Notifications bool   `json:"notifications"`
	Currency      string `json:"currency,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

type TradingLimits struct {
	MaxDailyLoss    *decimal.Decimal `json:"maxDailyLoss,omitempty"`
	MaxPositionSize *decimal.Decimal `json:"maxPositionSize,omitempty"`
	RiskPerTrade    *decimal.Decimal `json:"riskPerTrade,omitempty"`
	MaxOpenTrades   int              `json:"maxOpenTrades,omitempty"`
}

type UserSettings struct {
	APIKeys       map[string]string `json:"apiKeys,omitempty"`
	TradingLimits TradingLimits     `json:"tradingLimits"`
}

type User struct {
	Meta
	Email       string       `json:"email"`
	Name        string       `json:"name,omitempty"`
	Preferences Preferences  `json:"preferences"`
	Settings    UserSettings `json:"settings"`
}

// JournalEntry fields are all omitted when empty so that an update carries
// only the fields the caller set.
type JournalEntry struct {
	Meta
	Date     string   `json:"date,omitempty"`
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content,omitempty"`
	Mood     string   `json:"mood,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	TradeIDs []string `json:"tradeIds,omitempty"`
}

// Setting is keyed by its name rather than a generated id.
type Setting struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	Stamps
}

func (s *Setting) documentKey() string       { return s.Key }
func (s *Setting) setDocumentKey(key string) { s.Key = key }

type AIMessage struct {
	Role    string     `json:"role"`
	Content string     `json:"content"`
	At      *time.Time `json:"at,omitempty"`
}

type AICoachSession struct {
	Meta
	Title    string          `json:"title,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Model    string          `json:"model,omitempty"`
	Messages []AIMessage     `json:"messages,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type AIStrategy struct {
	Meta
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Rules       []string        `json:"rules,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}
