package store

import (
	"encoding/json"

	"github.com/stockwatch/stockwatch/internal/notifications"
	"github.com/stockwatch/stockwatch/internal/stock"
)

// UserSettings is the canonical per-user settings document stored in
// user_settings.settings.
type UserSettings struct {
	GlobalLowStockThreshold int                    `json:"globalLowStockThreshold"`
	NotificationSettings    notifications.Settings `json:"notificationSettings"`
}

// DefaultUserSettings returns the document used when none is stored.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		GlobalLowStockThreshold: stock.DefaultGlobalThreshold,
		NotificationSettings:    notifications.DefaultSettings(),
	}
}

// DecodeUserSettings parses a settings document leniently. Each field is
// decoded on its own; a missing, null or mistyped field keeps its default,
// and a document that is not a JSON object yields all defaults.
func DecodeUserSettings(raw []byte) UserSettings {
	out := DefaultUserSettings()
	if len(raw) == 0 {
		return out
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return out
	}

	if v, ok := doc["globalLowStockThreshold"]; ok {
		var n stock.Number
		if err := json.Unmarshal(v, &n); err == nil && n.Present() {
			out.GlobalLowStockThreshold = n.Int()
		}
	}

	var ns map[string]json.RawMessage
	if v, ok := doc["notificationSettings"]; ok && json.Unmarshal(v, &ns) == nil {
		s := &out.NotificationSettings
		decodeBool(ns, "enabled", &s.Enabled)
		decodeBool(ns, "lowStockEnabled", &s.LowStockEnabled)
		decodeBool(ns, "outOfStockEnabled", &s.OutOfStockEnabled)
		if v, ok := ns["interval"]; ok {
			var n stock.Number
			if err := json.Unmarshal(v, &n); err == nil && n.Present() {
				s.Interval = n.Int()
			}
		}
	}
	out.NotificationSettings = out.NotificationSettings.Normalize()
	return out
}

func decodeBool(doc map[string]json.RawMessage, key string, dst *bool) {
	v, ok := doc[key]
	if !ok {
		return
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		*dst = b
	}
}
