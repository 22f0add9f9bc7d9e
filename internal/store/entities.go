package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/storage"
	"github.com/shopspring/decimal"
)

type TradeRepository struct {
	*Repository[Trade, *Trade]
}

func (r *TradeRepository) ByAccount(ctx context.Context, accountID string) ([]Trade, error) {
	return r.GetAll(ctx, Filter{Field: FieldAccountID, Value: accountID})
}

func (r *TradeRepository) ByStatus(ctx context.Context, status TradeStatus) ([]Trade, error) {
	return r.GetAll(ctx, Filter{Field: FieldStatus, Value: status})
}

type AccountRepository struct {
	*Repository[Account, *Account]
}

func (r *AccountRepository) ByPortfolio(ctx context.Context, portfolioID string) ([]Account, error) {
	return r.GetAll(ctx, Filter{Field: FieldPortfolioID, Value: portfolioID})
}

// SetBalance replaces the stored balance of an existing account.
func (r *AccountRepository) SetBalance(ctx context.Context, id string, balance decimal.Decimal) (*Account, error) {
	account, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	account.Balance = balance
	if err := r.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

type UserRepository struct {
	*Repository[User, *User]
}

// Current returns the installation's user: the first one by id.
func (r *UserRepository) Current(ctx context.Context) (*User, error) {
	users, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("current user: %w", storage.ErrNotFound)
	}
	return &users[0], nil
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*User, error) {
	users, err := r.GetAll(ctx, Filter{Field: FieldEmail, Value: strings.TrimSpace(email)})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
	}
	return &users[0], nil
}

// SettingRepository stores arbitrary JSON values by name.
type SettingRepository struct {
	*Repository[Setting, *Setting]
}

// Set stores value under key, replacing any previous value.
func (r *SettingRepository) Set(ctx context.Context, key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("set setting: %w: empty key", storage.ErrInvalidRecord)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w: %v", key, storage.ErrInvalidRecord, err)
	}
	return r.Update(ctx, &Setting{Key: key, Value: raw})
}

// Value decodes the value stored under key into dst.
func (r *SettingRepository) Value(ctx context.Context, key string, dst any) error {
	setting, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(setting.Value, dst); err != nil {
		return fmt.Errorf("decode setting %s: %w", key, err)
	}
	return nil
}
