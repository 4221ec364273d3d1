package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderIDPrefix = "order_"

// NewOrderID returns a candidate order id: creation time in milliseconds plus
// 12 random hex digits. Callers still check the store before using it.
func NewOrderID() string {
	return FormatOrderID(time.Now(), RandomSuffix())
}

func FormatOrderID(t time.Time, suffix string) string {
	return orderIDPrefix + strconv.FormatInt(t.UnixMilli(), 10) + "_" + suffix
}

func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// IsValidOrderID accepts ids shaped like FormatOrderID output. It guards
// public endpoints from arbitrary strings before they reach the gateway.
func IsValidOrderID(id string) bool {
	rest, ok := strings.CutPrefix(id, orderIDPrefix)
	if !ok {
		return false
	}
	ts, suffix, ok := strings.Cut(rest, "_")
	if !ok || ts == "" || suffix == "" || len(suffix) > 32 {
		return false
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		return false
	}
	for _, r := range suffix {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}
