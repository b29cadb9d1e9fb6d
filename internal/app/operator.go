package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	operatorOffsetKey  = "telegram:operator:last_update_id"
	operatorHedgeLimit = 5
)

// Thresholds are the decision and alert limits an operator may override at runtime.
type Thresholds struct {
	Ratio     decimal.Decimal `json:"ratio_threshold"`
	Delta     decimal.Decimal `json:"delta_threshold"`
	Deviation decimal.Decimal `json:"deviation_threshold"`
}

func (t Thresholds) Equal(other Thresholds) bool {
	return t.Ratio.Equal(other.Ratio) && t.Delta.Equal(other.Delta) && t.Deviation.Equal(other.Deviation)
}

func (t Thresholds) String() string {
	return fmt.Sprintf("ratio_threshold=%s delta_threshold=%s deviation_threshold=%s", t.Ratio, t.Delta, t.Deviation)
}

type operatorMeta struct {
	UpdateID int64
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

type operatorAuditEvent struct {
	UpdateID         int64       `json:"update_id"`
	Time             time.Time   `json:"time"`
	Action           string      `json:"action"`
	Command          string      `json:"command"`
	UserID           int64       `json:"user_id"`
	Username         string      `json:"username,omitempty"`
	ChatID           int64       `json:"chat_id"`
	PausedBefore     bool        `json:"paused_before"`
	PausedAfter      bool        `json:"paused_after"`
	ThresholdsBefore *Thresholds `json:"thresholds_before,omitempty"`
	ThresholdsAfter  *Thresholds `json:"thresholds_after,omitempty"`
}

func (a *App) startOperator(ctx context.Context) {
	if a.cfg == nil || a.alerts == nil || a.log == nil {
		return
	}
	if !a.cfg.Telegram.OperatorEnabled {
		return
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	go a.operatorLoop(ctx, chatID, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, chatID int64, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.alerts.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.Chat == nil || msg.From == nil {
		return
	}
	if msg.Chat.ID != chatID {
		return
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return
		}
	}
	cmd, args, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp, err := a.handleOperatorCommand(ctx, cmd, args, meta)
	if err != nil {
		resp = fmt.Sprintf("command failed: %v", err)
	}
	if resp == "" {
		return
	}
	if err := a.alerts.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

// parseOperatorCommand splits "/cmd@bot arg..." into a lowercase command and args.
func parseOperatorCommand(text string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), fields[1:], true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, args []string, meta operatorMeta) (string, error) {
	switch cmd {
	case "status":
		return a.operatorStatus(), nil
	case "pause":
		before := a.isPaused()
		after := a.setPaused(true)
		a.auditOperatorEvent(ctx, meta.event("pause", before, after))
		if before {
			return "hedging already paused", nil
		}
		return "hedging paused; monitoring continues", nil
	case "resume":
		before := a.isPaused()
		after := a.setPaused(false)
		a.auditOperatorEvent(ctx, meta.event("resume", before, after))
		if !before {
			return "hedging already active", nil
		}
		return "hedging resumed", nil
	case "thresholds":
		return a.handleThresholdsCommand(ctx, args, meta)
	case "hedges":
		return a.recentHedges(ctx)
	default:
		return operatorHelpText(), nil
	}
}

func (m operatorMeta) event(action string, pausedBefore, pausedAfter bool) operatorAuditEvent {
	return operatorAuditEvent{
		UpdateID:     m.UpdateID,
		Time:         time.Now().UTC(),
		Action:       action,
		Command:      m.Raw,
		UserID:       m.UserID,
		Username:     m.Username,
		ChatID:       m.ChatID,
		PausedBefore: pausedBefore,
		PausedAfter:  pausedAfter,
	}
}

func (a *App) handleThresholdsCommand(ctx context.Context, args []string, meta operatorMeta) (string, error) {
	if len(args) == 0 || strings.EqualFold(args[0], "show") {
		return a.thresholdsStatus(), nil
	}
	paused := a.isPaused()
	switch strings.ToLower(args[0]) {
	case "reset":
		event := meta.event("thresholds_reset", paused, paused)
		event.ThresholdsBefore = a.thresholdOverrideSnapshot()
		a.setThresholdOverride(nil)
		a.auditOperatorEvent(ctx, event)
		return "threshold override cleared", nil
	case "set":
		overrides, err := parseThresholdOverrides(args[1:])
		if err != nil {
			return "", err
		}
		next, err := applyThresholdOverrides(a.thresholds(), overrides)
		if err != nil {
			return "", err
		}
		event := meta.event("thresholds_set", paused, paused)
		event.ThresholdsBefore = a.thresholdOverrideSnapshot()
		if next.Equal(a.configuredThresholds()) {
			a.setThresholdOverride(nil)
		} else {
			a.setThresholdOverride(&next)
		}
		event.ThresholdsAfter = a.thresholdOverrideSnapshot()
		a.auditOperatorEvent(ctx, event)
		return "thresholds updated: " + next.String(), nil
	default:
		return "", errors.New("unknown thresholds command: use /thresholds show|set|reset")
	}
}

func parseThresholdOverrides(args []string) (map[string]decimal.Decimal, error) {
	if len(args) == 0 {
		return nil, errors.New("thresholds set requires key=value pairs")
	}
	out := make(map[string]decimal.Decimal, len(args))
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		if !ok || key == "" || val == "" {
			return nil, fmt.Errorf("invalid threshold setting: %s", arg)
		}
		parsed, err := decimal.NewFromString(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = parsed
	}
	return out, nil
}

func applyThresholdOverrides(base Thresholds, overrides map[string]decimal.Decimal) (Thresholds, error) {
	next := base
	for key, val := range overrides {
		switch key {
		case "ratio_threshold":
			if !val.IsPositive() {
				return Thresholds{}, errors.New("ratio_threshold must be > 0")
			}
			next.Ratio = val
		case "delta_threshold":
			if !val.IsPositive() {
				return Thresholds{}, errors.New("delta_threshold must be > 0")
			}
			next.Delta = val
		case "deviation_threshold":
			if val.IsNegative() {
				return Thresholds{}, errors.New("deviation_threshold must be >= 0")
			}
			next.Deviation = val
		default:
			return Thresholds{}, fmt.Errorf("unknown threshold key: %s", key)
		}
	}
	return next, nil
}

func (a *App) operatorStatus() string {
	a.mu.Lock()
	snap := a.lastSnapshot
	lastHedge := a.notify.LastHedgeAt
	a.mu.Unlock()

	lines := []string{fmt.Sprintf("paused: %t", a.isPaused())}
	if snap == nil {
		lines = append(lines, "no snapshot yet")
	} else {
		lines = append(lines,
			fmt.Sprintf("block: %d", snap.BlockNumber),
			fmt.Sprintf("base_delta: %s %s (ratio %s)", snap.BaseDelta.StringFixed(4), a.cfg.Strategy.BaseAsset, snap.BaseDeltaRatio.StringFixed(4)),
			fmt.Sprintf("amm_base: %s usdt: %s", snap.AMMBaseAmount.StringFixed(4), snap.AMMUSDTAmount.StringFixed(2)),
			fmt.Sprintf("futures_position: %s", snap.FuturesPosition.String()),
			fmt.Sprintf("total_value_usdt: %s", snap.TotalValueUSDT.StringFixed(2)),
		)
	}
	if line := a.fundingLine(); line != "" {
		lines = append(lines, line)
	}
	last := "n/a"
	if !lastHedge.IsZero() {
		last = lastHedge.UTC().Format(time.RFC3339)
	}
	lines = append(lines,
		"last_hedge: "+last,
		fmt.Sprintf("hedge_cooldown_active: %t", a.hedgeCooldownActive(a.now().UTC())),
		fmt.Sprintf("threshold_override_active: %t", a.thresholdOverrideSnapshot() != nil),
	)
	return strings.Join(lines, "\n")
}

func (a *App) recentHedges(ctx context.Context) (string, error) {
	if a.store == nil {
		return "hedge log unavailable", nil
	}
	records, err := a.store.RecentHedges(ctx, operatorHedgeLimit)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "no hedges recorded", nil
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, formatHedgeRecord(rec))
	}
	return strings.Join(lines, "\n"), nil
}

func formatHedgeRecord(rec state.HedgeRecord) string {
	line := fmt.Sprintf("%s %s %s %s", rec.Time.UTC().Format(time.RFC3339), rec.Kind, rec.Quantity, rec.Symbol)
	switch {
	case rec.DryRun:
		line += " dry-run"
	case rec.Error != "":
		line += " failed: " + rec.Error
	default:
		line += fmt.Sprintf(" %s@%s order %s", rec.Side, rec.Price, rec.OrderID)
	}
	return line
}

func (a *App) thresholdsStatus() string {
	lines := []string{"thresholds effective: " + a.thresholds().String()}
	if override := a.thresholdOverrideSnapshot(); override != nil {
		lines = append(lines, "thresholds override: "+override.String())
	} else {
		lines = append(lines, "thresholds override: none")
	}
	return strings.Join(lines, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - latest snapshot and hedge state",
		"/pause - stop placing hedge orders",
		"/resume - resume hedge orders",
		"/hedges - recent hedge actions",
		"/thresholds show - show active thresholds",
		"/thresholds set key=value ... - override (keys: ratio_threshold, delta_threshold, deviation_threshold)",
		"/thresholds reset - clear threshold override",
	}, "\n")
}

func (a *App) isPaused() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.paused
}

func (a *App) setPaused(paused bool) bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.paused = paused
	return a.paused
}

func (a *App) configuredThresholds() Thresholds {
	return Thresholds{
		Ratio:     a.cfg.Strategy.RatioThreshold,
		Delta:     a.cfg.Strategy.DeltaThreshold,
		Deviation: a.cfg.Notify.DeviationThreshold,
	}
}

func (a *App) thresholds() Thresholds {
	if override := a.thresholdOverrideSnapshot(); override != nil {
		return *override
	}
	return a.configuredThresholds()
}

func (a *App) thresholdOverrideSnapshot() *Thresholds {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	if a.thresholdOverride == nil {
		return nil
	}
	out := *a.thresholdOverride
	return &out
}

func (a *App) setThresholdOverride(t *Thresholds) {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.thresholdOverride = t
}

func (a *App) logOperatorError(err error) {
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	if a.store == nil {
		return 0
	}
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	if a.store == nil {
		return
	}
	_ = a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10))
}

func (a *App) auditOperatorEvent(ctx context.Context, event operatorAuditEvent) {
	if a.store == nil {
		return
	}
	key := fmt.Sprintf("ops:audit:%d:%d", time.Now().UTC().UnixNano(), event.UpdateID)
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = a.store.Set(ctx, key, string(payload))
}
