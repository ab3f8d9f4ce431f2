package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/starford/pledge/internal/apperr"
	"github.com/starford/pledge/internal/models"
)

// Balance returns the value balance of address; unknown accounts hold zero.
func (t *txn) Balance(address string) (uint64, error) {
	var bal int64
	err := t.queryRow(`SELECT balance FROM accounts WHERE address = ?`, address).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: get balance: %w", err)
	}
	return uint64(bal), nil
}

func (t *txn) setBalance(address string, bal uint64) error {
	v, err := dbAmount(bal)
	if err != nil {
		return err
	}
	if _, err := t.exec(`INSERT INTO accounts (address, balance) VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET balance = excluded.balance`, address, v); err != nil {
		return fmt.Errorf("store: set balance: %w", err)
	}
	return nil
}

// Credit adds amount to address. Administrative funding only.
func (t *txn) Credit(address string, amount uint64) error {
	if address == "" || amount == 0 {
		return fmt.Errorf("%w: credit needs an address and a positive amount", apperr.ErrInvalidInput)
	}
	bal, err := t.Balance(address)
	if err != nil {
		return err
	}
	if bal > math.MaxInt64-amount {
		return fmt.Errorf("%w: balance overflow", apperr.ErrInvalidInput)
	}
	return t.setBalance(address, bal+amount)
}

// Transfer moves amount from one account to another. The authorizer must
// own the source account.
func (t *txn) Transfer(from, to string, amount uint64, authorizer string) error {
	if amount == 0 || from == "" || to == "" {
		return fmt.Errorf("%w: transfer needs both accounts and a positive amount", apperr.ErrInvalidInput)
	}
	if authorizer != from {
		return fmt.Errorf("%w: %s cannot move funds of %s", apperr.ErrUnauthorized, authorizer, from)
	}
	src, err := t.Balance(from)
	if err != nil {
		return err
	}
	if src < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", apperr.ErrInsufficientFunds, from, src, amount)
	}
	if from == to {
		return nil
	}
	dst, err := t.Balance(to)
	if err != nil {
		return err
	}
	if dst > math.MaxInt64-amount {
		return fmt.Errorf("%w: balance overflow", apperr.ErrInvalidInput)
	}
	if err := t.setBalance(from, src-amount); err != nil {
		return err
	}
	return t.setBalance(to, dst+amount)
}

// AssetOwner returns the current holder of a non-fungible asset.
func (t *txn) AssetOwner(asset string) (string, error) {
	var owner string
	err := t.queryRow(`SELECT owner FROM assets WHERE asset = ?`, asset).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: asset %s", apperr.ErrNotFound, asset)
	}
	if err != nil {
		return "", fmt.Errorf("store: get asset: %w", err)
	}
	return owner, nil
}

// MintAsset creates a non-fungible asset held by owner.
func (t *txn) MintAsset(asset, owner string) error {
	if asset == "" || owner == "" {
		return fmt.Errorf("%w: mint needs an asset and an owner", apperr.ErrInvalidInput)
	}
	_, err := t.exec(`INSERT INTO assets (asset, owner) VALUES (?, ?)`, asset, owner)
	if isConstraint(err) {
		return fmt.Errorf("%w: asset %s", apperr.ErrAlreadyExists, asset)
	}
	if err != nil {
		return fmt.Errorf("store: mint asset: %w", err)
	}
	return nil
}

// TransferAsset moves the single unit of asset from one holder to another.
// The authorizer must be the current holder.
func (t *txn) TransferAsset(asset, from, to, authorizer string) error {
	if to == "" {
		return fmt.Errorf("%w: asset transfer needs a recipient", apperr.ErrInvalidInput)
	}
	if authorizer != from {
		return fmt.Errorf("%w: %s cannot move assets of %s", apperr.ErrUnauthorized, authorizer, from)
	}
	owner, err := t.AssetOwner(asset)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: %s does not hold asset %s", apperr.ErrInsufficientFunds, from, asset)
	}
	if _, err := t.exec(`UPDATE assets SET owner = ? WHERE asset = ?`, to, asset); err != nil {
		return fmt.Errorf("store: transfer asset: %w", err)
	}
	return nil
}

// AppendEvent records a committed-with-the-transaction event.
func (t *txn) AppendEvent(e models.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("store: encode event: %w", err)
	}
	if _, err := t.exec(`INSERT INTO events (id, type, data, occurred_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Type, string(data), e.OccurredAt); err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (t *txn) RecentEvents(limit int) ([]models.Event, error) {
	rows, err := t.query(`SELECT id, type, data, occurred_at FROM events ORDER BY seq DESC LIMIT ?`, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	defer rows.Close()

	out := []models.Event{}
	for rows.Next() {
		var e models.Event
		var data string
		if err := rows.Scan(&e.ID, &e.Type, &data, &e.OccurredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("store: decode event %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
