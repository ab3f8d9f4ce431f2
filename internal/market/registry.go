package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/pledge/internal/apperr"
	"github.com/starford/pledge/internal/models"
	"github.com/starford/pledge/internal/store"
)

// Initialize creates the protocol registry. The authority must sign.
func (e *Engine) Initialize(ctx context.Context, signers Signers, authority, treasury string) (*models.Protocol, error) {
	if authority == "" || treasury == "" {
		return nil, fmt.Errorf("%w: authority and treasury are required", apperr.ErrInvalidInput)
	}
	if err := requireSigners(signers, authority); err != nil {
		return nil, err
	}
	p := &models.Protocol{
		Authority:  authority,
		Treasury:   treasury,
		FeeRateBps: e.params.FeeRateBps,
	}
	err := e.run(ctx, "initialize", func(o *op) error {
		return o.tx.CreateProtocol(p)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("market: protocol initialized",
		slog.String("authority", authority),
		slog.String("treasury", treasury),
		slog.Int("fee_rate_bps", int(p.FeeRateBps)))
	return p, nil
}

// Protocol returns the registry record.
func (e *Engine) Protocol(ctx context.Context) (*models.Protocol, error) {
	var p *models.Protocol
	err := e.view(ctx, func(tx store.Tx) (err error) {
		p, err = tx.Protocol()
		return err
	})
	return p, err
}

func requireAuthority(tx store.Tx, signers Signers) (*models.Protocol, error) {
	p, err := tx.Protocol()
	if err != nil {
		return nil, err
	}
	if err := requireSigners(signers, p.Authority); err != nil {
		return nil, err
	}
	return p, nil
}

// Credit funds an account in the stable unit. Authority only.
func (e *Engine) Credit(ctx context.Context, signers Signers, address string, amount uint64) (uint64, error) {
	var bal uint64
	err := e.run(ctx, "credit", func(o *op) error {
		if _, err := requireAuthority(o.tx, signers); err != nil {
			return err
		}
		if err := o.tx.Credit(address, amount); err != nil {
			return err
		}
		var err error
		bal, err = o.tx.Balance(address)
		return err
	})
	return bal, err
}

// MintAsset registers a non-fungible asset held by owner. Authority only.
func (e *Engine) MintAsset(ctx context.Context, signers Signers, asset, owner string) error {
	return e.run(ctx, "mint_asset", func(o *op) error {
		if _, err := requireAuthority(o.tx, signers); err != nil {
			return err
		}
		return o.tx.MintAsset(asset, owner)
	})
}
