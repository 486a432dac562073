package providers

import (
	"strings"
	"time"

	"flightsync/internal/models"
)

// remarkKeywords is checked in order; the first match wins. Cancellation
// comes first because boards often append "cancelled" to a delay remark.
// Only completed forms count: "預計起飛 08:10" is still on_time.
var remarkKeywords = []struct {
	keywords []string
	status   models.Status
}{
	{[]string{"cancel", "取消"}, models.StatusCancelled},
	{[]string{"delay", "延誤", "延遲"}, models.StatusDelayed},
	{[]string{"departed", "took off", "airborne", "已起飛", "已離站"}, models.StatusDeparted},
	{[]string{"arrived", "landed", "已抵達", "已到達", "已到站"}, models.StatusArrived},
}

// ParseRemark maps a free-text board remark (English or Chinese) to a status.
// Unrecognized remarks are on_time.
func ParseRemark(remark string) models.Status {
	r := strings.ToLower(strings.TrimSpace(remark))
	if r == "" {
		return models.StatusOnTime
	}
	for _, entry := range remarkKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(r, kw) {
				return entry.status
			}
		}
	}
	return models.ParseStatus(r)
}

// TaipeiLocation returns Asia/Taipei, or a fixed UTC+8 zone when the tz
// database is unavailable
func TaipeiLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}
