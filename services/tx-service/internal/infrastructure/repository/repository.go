package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/postgres"
)

// Repo journals pending actions in Postgres.
type Repo struct {
	pg *postgres.Postgres
}

func NewActionRepo(pg *postgres.Postgres) domain.ActionRepository {
	return &Repo{pg: pg}
}

func (r *Repo) Create(ctx context.Context, action *domain.PendingAction) error {
	_, err := r.pg.GetClient().ExecContext(ctx, CreateActionQuery,
		action.ID, action.Account, action.TrackID, action.Action, action.Request.String(),
		action.Wallet, action.TxHash, action.Status, action.GasPrice, action.Error,
		action.CreatedAt, action.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return domain.ErrActionInFlight
		}
		return fmt.Errorf("insert pending action: %w", err)
	}
	return nil
}

func (r *Repo) UpdateTxHash(ctx context.Context, id string, txHash string, gasPrice string) error {
	_, err := r.pg.GetClient().ExecContext(ctx, UpdateTxHashQuery, txHash, gasPrice, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update tx hash: %w", err)
	}
	return nil
}

func (r *Repo) UpdateStatus(ctx context.Context, id string, status domain.ActionStatus, errMsg *string) error {
	_, err := r.pg.GetClient().ExecContext(ctx, UpdateStatusQuery, status, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*domain.PendingAction, error) {
	action, err := scanAction(r.pg.GetClient().QueryRowContext(ctx, GetByIDQuery, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrActionNotFound
		}
		return nil, fmt.Errorf("get pending action: %w", err)
	}
	return action, nil
}

func (r *Repo) ListInFlight(ctx context.Context, account string) ([]*domain.PendingAction, error) {
	rows, err := r.pg.GetClient().QueryContext(ctx, ListInFlightQuery, account)
	if err != nil {
		return nil, fmt.Errorf("list in-flight actions: %w", err)
	}
	defer rows.Close()

	var actions []*domain.PendingAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending actions: %w", err)
	}
	return actions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(s scanner) (*domain.PendingAction, error) {
	var action domain.PendingAction
	var request string

	err := s.Scan(
		&action.ID, &action.Account, &action.TrackID, &action.Action, &request,
		&action.Wallet, &action.TxHash, &action.Status, &action.GasPrice, &action.Error,
		&action.CreatedAt, &action.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	action.Request = domain.ParsePendingRequest(request)
	return &action, nil
}
