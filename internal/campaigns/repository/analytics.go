package repository

import (
	"context"

	"github.com/google/uuid"
)

// StatusCounts is recipients grouped by delivery status.
type StatusCounts map[string]int

// ErrorCounts is failed/bounced recipients grouped by error code.
type ErrorCounts map[string]int

// CountByStatus rolls up a campaign's recipients per delivery status.
func (r *Repository) CountByStatus(ctx context.Context, campaignID uuid.UUID) (StatusCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT delivery_status, count(*)
		FROM campaign_recipients
		WHERE campaign_id = $1
		GROUP BY delivery_status
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(StatusCounts)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountByErrorCode rolls up failed and bounced recipients per error code.
func (r *Repository) CountByErrorCode(ctx context.Context, campaignID uuid.UUID) (ErrorCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(error_code, 'unknown'), count(*)
		FROM campaign_recipients
		WHERE campaign_id = $1 AND delivery_status IN ('failed', 'bounced')
		GROUP BY 1
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(ErrorCounts)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		counts[code] = n
	}
	return counts, rows.Err()
}
