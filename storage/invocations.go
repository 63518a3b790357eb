package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Invocation is one finished pipeline run
type Invocation struct {
	ID           int64     `json:"id"`
	InvocationID string    `json:"invocationId"`
	Timestamp    time.Time `json:"timestamp"`
	Mode         string    `json:"mode"`
	Profile      string    `json:"profile"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	CaptureMs    int64     `json:"captureMs"`
	TransformMs  int64     `json:"transformMs"`
	ApplyMs      int64     `json:"applyMs"`
	TotalMs      int64     `json:"totalMs"`
	InputChars   int       `json:"inputChars"`
	OutputChars  int       `json:"outputChars"`
	InputText    string    `json:"inputText,omitempty"`
	OutputText   string    `json:"outputText,omitempty"`
	Success      bool      `json:"success"`
	FailedStage  string    `json:"failedStage,omitempty"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// SaveInvocation saves an invocation and sets its ID
func (db *DB) SaveInvocation(ctx context.Context, inv *Invocation) error {
	query := `
		INSERT INTO invocations (
			invocation_id, mode, profile, provider, model,
			capture_ms, transform_ms, apply_ms, total_ms,
			input_chars, output_chars, input_text, output_text,
			success, failed_stage, error_kind, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.conn.ExecContext(ctx, query,
		inv.InvocationID, inv.Mode, inv.Profile, inv.Provider, inv.Model,
		inv.CaptureMs, inv.TransformMs, inv.ApplyMs, inv.TotalMs,
		inv.InputChars, inv.OutputChars, nullable(inv.InputText), nullable(inv.OutputText),
		inv.Success, nullable(inv.FailedStage), nullable(inv.ErrorKind), nullable(inv.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to save invocation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	inv.ID = id
	return nil
}

// GetInvocations retrieves invocations newest first with pagination
func (db *DB) GetInvocations(ctx context.Context, limit, offset int) ([]Invocation, error) {
	query := `
		SELECT
			id, invocation_id, timestamp, mode, profile, provider, model,
			capture_ms, transform_ms, apply_ms, total_ms,
			input_chars, output_chars, input_text, output_text,
			success, failed_stage, error_kind, error_message
		FROM invocations
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer rows.Close()

	invocations := []Invocation{}
	for rows.Next() {
		var inv Invocation
		var inputText, outputText, failedStage, errorKind, errorMessage sql.NullString

		err := rows.Scan(
			&inv.ID, &inv.InvocationID, &inv.Timestamp, &inv.Mode, &inv.Profile, &inv.Provider, &inv.Model,
			&inv.CaptureMs, &inv.TransformMs, &inv.ApplyMs, &inv.TotalMs,
			&inv.InputChars, &inv.OutputChars, &inputText, &outputText,
			&inv.Success, &failedStage, &errorKind, &errorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}

		inv.InputText = inputText.String
		inv.OutputText = outputText.String
		inv.FailedStage = failedStage.String
		inv.ErrorKind = errorKind.String
		inv.ErrorMessage = errorMessage.String

		invocations = append(invocations, inv)
	}

	return invocations, rows.Err()
}

// DeleteInvocation deletes an invocation by ID
func (db *DB) DeleteInvocation(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM invocations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invocation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("invocation %d: %w", id, ErrNotFound)
	}

	return nil
}

// GetInvocationCount returns the total number of invocations
func (db *DB) GetInvocationCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM invocations").Scan(&count)
	return count, err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
