package storage

import (
	"context"
	"unicode/utf8"

	"markestedt/tokenspark/pipeline"
)

// Recorder saves finished pipeline invocations according to the history settings
type Recorder struct {
	db       *DB
	settings pipeline.Settings
}

// NewRecorder creates a recorder writing to db
func NewRecorder(db *DB, settings pipeline.Settings) *Recorder {
	return &Recorder{db: db, settings: settings}
}

// Record implements pipeline.Recorder
func (r *Recorder) Record(ctx context.Context, inv pipeline.Invocation) error {
	history := r.settings.Current().History
	if !history.Enabled {
		return nil
	}
	rec := FromPipeline(inv, history.StoreText)
	return r.db.SaveInvocation(ctx, &rec)
}

// FromPipeline converts an invocation. Text bodies are kept only when storeText is set.
func FromPipeline(inv pipeline.Invocation, storeText bool) Invocation {
	rec := Invocation{
		InvocationID: inv.ID,
		Mode:         inv.Mode.String(),
		Profile:      inv.Profile,
		Provider:     inv.Provider,
		Model:        inv.Model,
		CaptureMs:    inv.CaptureTime.Milliseconds(),
		TransformMs:  inv.TransformTime.Milliseconds(),
		ApplyMs:      inv.ApplyTime.Milliseconds(),
		TotalMs:      inv.Total.Milliseconds(),
		InputChars:   utf8.RuneCountInString(inv.Captured),
		OutputChars:  utf8.RuneCountInString(inv.Result),
		Success:      inv.Failure == nil,
	}
	if storeText {
		rec.InputText = inv.Captured
		rec.OutputText = inv.Result
	}
	if inv.Failure != nil {
		rec.FailedStage = inv.FailedIn.String()
		rec.ErrorKind = inv.Failure.Kind.String()
		rec.ErrorMessage = inv.Failure.Message()
	}
	return rec
}
