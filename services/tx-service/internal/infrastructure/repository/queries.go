package repository

const (
	CreateActionQuery = `
		INSERT INTO pending_actions (
			action_id, account, track_id, action, request, wallet,
			tx_hash, status, gas_price, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	UpdateTxHashQuery = `
		UPDATE pending_actions
		SET tx_hash = $1, gas_price = $2, updated_at = $3
		WHERE action_id = $4
	`

	UpdateStatusQuery = `
		UPDATE pending_actions
		SET status = $1, error = $2, updated_at = $3
		WHERE action_id = $4
	`

	GetByIDQuery = `
		SELECT action_id, account, track_id, action, request, wallet,
			   tx_hash, status, gas_price, error, created_at, updated_at
		FROM pending_actions
		WHERE action_id = $1
	`

	ListInFlightQuery = `
		SELECT action_id, account, track_id, action, request, wallet,
			   tx_hash, status, gas_price, error, created_at, updated_at
		FROM pending_actions
		WHERE account = $1 AND status = 'submitted'
		ORDER BY created_at
	`
)
