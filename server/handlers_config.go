package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robostem/matchjump/backend/kv"
	"github.com/robostem/matchjump/backend/stream"
	"github.com/robostem/matchjump/backend/streamsync"
)

const cfgPrefix = "cfg:"

// safeKeys are the settings that may be overridden at runtime; secrets are
// never exposed here. Each validates its value.
var safeKeys = map[string]func(string) bool{
	"MISMATCH_MAX_DAYS":    positiveInt,
	"SINGLE_DAY_LABEL":     func(v string) bool { return v != "" },
	"SYNC_DETECT_TIMEOUT":  validDuration,
	"PER_DIVISION_STREAMS": validBool,
	"HISTORY_MAX_ENTRIES":  positiveInt,
	"HISTORY_MAX_AGE_DAYS": positiveInt,
}

func positiveInt(v string) bool {
	n, err := strconv.Atoi(v)
	return err == nil && n > 0
}

func validDuration(v string) bool {
	_, ok := parseDuration(v)
	return ok
}

func validBool(v string) bool {
	_, err := strconv.ParseBool(v)
	return err == nil
}

// parseDuration accepts Go durations or a bare number of seconds.
func parseDuration(v string) (time.Duration, bool) {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(v)
	return d, err == nil && d > 0
}

// configDefaults returns the loaded value of every safe key.
func (h *Handlers) configDefaults() map[string]string {
	return map[string]string{
		"MISMATCH_MAX_DAYS":    strconv.Itoa(h.cfg.MismatchMaxDays),
		"SINGLE_DAY_LABEL":     h.cfg.SingleDayLabel,
		"SYNC_DETECT_TIMEOUT":  h.cfg.SyncDetectTimeout.String(),
		"PER_DIVISION_STREAMS": strconv.FormatBool(h.cfg.PerDivisionStreams),
		"HISTORY_MAX_ENTRIES":  strconv.Itoa(h.cfg.HistoryMaxEntries),
		"HISTORY_MAX_AGE_DAYS": strconv.Itoa(int(h.cfg.HistoryMaxAge / (24 * time.Hour))),
	}
}

// cfgGet returns the kv override for key (cfg: prefix) or the loaded value.
func (h *Handlers) cfgGet(ctx context.Context, key string) string {
	return kv.GetOr(ctx, h.deps.KV, cfgPrefix+key, h.configDefaults()[key])
}

// sessionOptions builds session and layout options from config plus overrides.
func (h *Handlers) sessionOptions(ctx context.Context) (streamsync.Options, stream.Options) {
	maxDays, _ := strconv.Atoi(h.cfgGet(ctx, "MISMATCH_MAX_DAYS"))
	timeout, _ := parseDuration(h.cfgGet(ctx, "SYNC_DETECT_TIMEOUT"))
	perDiv, _ := strconv.ParseBool(h.cfgGet(ctx, "PER_DIVISION_STREAMS"))
	return streamsync.Options{
			Metadata:        h.deps.Metadata,
			Discoverer:      h.deps.Discoverer,
			MaxMismatchDays: maxDays,
			DetectTimeout:   timeout,
		}, stream.Options{
			SingleDayLabel: h.cfgGet(ctx, "SINGLE_DAY_LABEL"),
			PerDivision:    perDiv,
		}
}

// HandleConfig handles GET and PUT requests for safe configuration keys.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		out := make(map[string]string, len(safeKeys))
		for k := range safeKeys {
			out[k] = h.cfgGet(r.Context(), k)
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPut:
		var body map[string]string
		if !decodeJSON(w, r, &body) {
			return
		}
		keys := make([]string, 0, len(body))
		for k := range body {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var rejected []string
		for _, k := range keys {
			valid, ok := safeKeys[k]
			v := strings.TrimSpace(body[k])
			if !ok {
				continue
			}
			if v == "" {
				if err := h.deps.KV.Delete(r.Context(), cfgPrefix+k); err != nil {
					slog.Error("failed to clear config", slog.String("key", k), slog.Any("err", err))
					http.Error(w, "failed to update config", http.StatusInternalServerError)
					return
				}
				continue
			}
			if !valid(v) {
				rejected = append(rejected, k)
				continue
			}
			if err := h.deps.KV.Set(r.Context(), cfgPrefix+k, v); err != nil {
				slog.Error("failed to update config", slog.String("key", k), slog.Any("err", err))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		if len(rejected) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid values", "keys": rejected})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
