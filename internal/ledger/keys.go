package ledger

import (
	"fmt"
	"strings"
	"time"
)

const (
	customerPrefix     = "cust"
	notificationPrefix = "sms"
	settingsKey        = "settings"
)

func CustomerKey(mobile string) string {
	return fmt.Sprintf("%s/%s", customerPrefix, mobile)
}

func CustomerPrefix() string {
	return customerPrefix + "/"
}

func MobileFromKey(key string) string {
	return strings.TrimPrefix(key, CustomerPrefix())
}

func SettingsKey() string {
	return settingsKey
}

// NotificationKey orders log entries by timestamp, then id.
func NotificationKey(timestamp time.Time, id string) string {
	return fmt.Sprintf("%s/%s/%s", notificationPrefix, formatTimestamp(timestamp), id)
}

func NotificationPrefix() string {
	return notificationPrefix + "/"
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "0000000000000000000"
	}
	return fmt.Sprintf("%019d", ts.UnixNano())
}
