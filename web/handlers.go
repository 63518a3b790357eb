package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"markestedt/tokenspark/config"
	"markestedt/tokenspark/pipeline"
	"markestedt/tokenspark/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// queryInt reads a positive integer parameter, falling back to def
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// invocationSummary is the status view of the last invocation
type invocationSummary struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	Profile     string    `json:"profile"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Outcome     string    `json:"outcome"`
	FailedStage string    `json:"failedStage,omitempty"`
	Error       string    `json:"error,omitempty"`
	TotalMs     int64     `json:"totalMs"`
	StartedAt   time.Time `json:"startedAt"`
}

func summarize(inv pipeline.Invocation) *invocationSummary {
	sum := &invocationSummary{
		ID:        inv.ID,
		Mode:      inv.Mode.String(),
		Profile:   inv.Profile,
		Provider:  inv.Provider,
		Model:     inv.Model,
		Outcome:   inv.Outcome(),
		TotalMs:   inv.Total.Milliseconds(),
		StartedAt: inv.StartedAt,
	}
	if inv.Failure != nil {
		sum.FailedStage = inv.FailedIn.String()
		sum.Error = inv.Failure.Message()
	}
	return sum
}

// handleStatus returns the current pipeline stage and the last invocation
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Stage   string             `json:"stage"`
		Label   string             `json:"label,omitempty"`
		Busy    bool               `json:"busy"`
		Clients int                `json:"clients"`
		Last    *invocationSummary `json:"last"`
	}{
		Stage:   pipeline.Idle.String(),
		Clients: s.hub.Connected(),
	}

	if o := s.orchestrator(); o != nil {
		stage := o.Stage()
		resp.Stage = stage.String()
		resp.Label = stage.Label()
		resp.Busy = stage != pipeline.Idle
		if last, ok := o.Last(); ok {
			resp.Last = summarize(last)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleInvoke starts an invocation. A busy pipeline answers 409, the
// trigger is not queued.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	o := s.orchestrator()
	if o == nil {
		http.Error(w, "Pipeline not ready", http.StatusServiceUnavailable)
		return
	}

	mode, err := pipeline.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile := r.URL.Query().Get("profile")
	if profile != "" {
		if _, ok := s.store.Current().Profile(profile); !ok {
			http.Error(w, "Unknown profile", http.StatusBadRequest)
			return
		}
	}

	if !o.InvokeProfile(mode, profile) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "busy"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "mode": mode.String()})
}

type profileView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// handleGetConfig returns the current configuration
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Current()

	hasKey := false
	if s.secrets != nil {
		_, ok, err := s.secrets.LoadSecret()
		if err != nil {
			slog.Warn("Failed to read API key", "error", err)
		}
		hasKey = ok
	}

	profiles := make([]profileView, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profiles = append(profiles, profileView{ID: p.ID, Name: p.Name, Active: p.ID == cfg.ActiveProfile})
	}

	// Sanitized: the key itself never leaves the secret store
	sanitized := struct {
		ActiveProfile  string        `json:"activeProfile"`
		Profiles       []profileView `json:"profiles"`
		ReplaceHotkey  string        `json:"replaceHotkey"`
		DisplayHotkey  string        `json:"displayHotkey"`
		Provider       string        `json:"provider"`
		BaseURL        string        `json:"baseUrl"`
		Model          string        `json:"model"`
		MaxTokens      int           `json:"maxTokens"`
		Temperature    float64       `json:"temperature"`
		TimeoutSeconds float64       `json:"timeoutSeconds"`
		HasAPIKey      bool          `json:"hasApiKey"`
		Notifications  bool          `json:"notifications"`
		HistoryEnabled bool          `json:"historyEnabled"`
		StoreText      bool          `json:"storeText"`
		WebPort        int           `json:"webPort"`
	}{
		ActiveProfile:  cfg.ActiveProfile,
		Profiles:       profiles,
		ReplaceHotkey:  cfg.Hotkeys.Replace,
		DisplayHotkey:  cfg.Hotkeys.Display,
		Provider:       cfg.API.Provider,
		BaseURL:        cfg.API.BaseURL,
		Model:          cfg.API.Model,
		MaxTokens:      cfg.API.MaxTokens,
		Temperature:    cfg.API.Temperature,
		TimeoutSeconds: cfg.API.TimeoutSeconds,
		HasAPIKey:      hasKey,
		Notifications:  cfg.Notifications.Enabled,
		HistoryEnabled: cfg.History.Enabled,
		StoreText:      cfg.History.StoreText,
		WebPort:        cfg.Web.Port,
	}

	writeJSON(w, http.StatusOK, sanitized)
}

// handlePutConfig updates the settings a running daemon picks up on the
// next invocation. Hotkeys and the port need a restart and are not editable here.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActiveProfile  *string  `json:"activeProfile"`
		Provider       *string  `json:"provider"`
		BaseURL        *string  `json:"baseUrl"`
		Model          *string  `json:"model"`
		MaxTokens      *int     `json:"maxTokens"`
		Temperature    *float64 `json:"temperature"`
		TimeoutSeconds *float64 `json:"timeoutSeconds"`
		Notifications  *bool    `json:"notifications"`
		StoreText      *bool    `json:"storeText"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var invalid error
	err := s.store.Update(func(c *config.Config) error {
		if req.ActiveProfile != nil {
			if err := c.SetActive(*req.ActiveProfile); err != nil {
				invalid = err
				return err
			}
		}
		if req.Provider != nil {
			c.API.Provider = *req.Provider
		}
		if req.BaseURL != nil {
			c.API.BaseURL = *req.BaseURL
		}
		if req.Model != nil {
			c.API.Model = *req.Model
		}
		if req.MaxTokens != nil {
			c.API.MaxTokens = *req.MaxTokens
		}
		if req.Temperature != nil {
			c.API.Temperature = *req.Temperature
		}
		if req.TimeoutSeconds != nil {
			c.API.TimeoutSeconds = *req.TimeoutSeconds
		}
		if req.Notifications != nil {
			c.Notifications.Enabled = *req.Notifications
		}
		if req.StoreText != nil {
			c.History.StoreText = *req.StoreText
		}
		if err := c.API.Validate(); err != nil {
			invalid = err
			return err
		}
		return nil
	})
	if invalid != nil {
		http.Error(w, invalid.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("Failed to save config", "error", err)
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) historyAvailable(w http.ResponseWriter) bool {
	if s.db == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// handleStats returns statistics for the last ?days= days
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.historyAvailable(w) {
		return
	}
	ctx := r.Context()
	days := queryInt(r, "days", 7)

	overall, err := s.db.GetOverallStats(ctx, days)
	if err != nil {
		slog.Error("Failed to get overall stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	daily, err := s.db.GetDailyStats(ctx, days)
	if err != nil {
		slog.Error("Failed to get daily stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	provider, err := s.db.GetProviderStats(ctx, days)
	if err != nil {
		slog.Error("Failed to get provider stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	failures, err := s.db.GetFailureStats(ctx, days)
	if err != nil {
		slog.Error("Failed to get failure stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"overall":  overall,
		"daily":    daily,
		"provider": provider,
		"failures": failures,
	})
}

// handleGetHistory returns paginated invocation history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyAvailable(w) {
		return
	}
	ctx := r.Context()

	limit := queryInt(r, "limit", 50)
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil && o >= 0 {
			offset = o
		}
	}

	invocations, err := s.db.GetInvocations(ctx, limit, offset)
	if err != nil {
		slog.Error("Failed to get invocations", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	total, err := s.db.GetInvocationCount(ctx)
	if err != nil {
		slog.Error("Failed to get invocation count", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"invocations": invocations,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

// handleDeleteHistory deletes an invocation by ID
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyAvailable(w) {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	if err := s.db.DeleteInvocation(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Invocation not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to delete invocation", "error", err, "id", id)
		http.Error(w, "Failed to delete invocation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>TokenSpark result</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 48rem; color: #222; }
h2 { font-size: 1rem; color: #666; margin-top: 2rem; }
pre { white-space: pre-wrap; background: #f5f5f5; padding: 1rem; border-radius: 6px; }
button { margin-top: .5rem; }
</style>
</head>
<body>
<h1>TokenSpark</h1>
{{if .}}
<h2>Result</h2>
<pre id="result">{{.Result}}</pre>
<button onclick="navigator.clipboard.writeText(document.getElementById('result').innerText)">Copy</button>
<h2>Original</h2>
<pre>{{.Original}}</pre>
{{else}}
<p>No result yet. Select some text and use the display hotkey.</p>
{{end}}
</body>
</html>
`))

// handleResult renders the latest Display-mode result
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := resultPage.Execute(w, s.latestResult()); err != nil {
		slog.Error("Failed to render result page", "error", err)
	}
}
