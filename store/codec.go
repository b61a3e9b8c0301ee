package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"portfolio-analytics/model"
)

// encodeValue renders a field value into its storage string form.
// Scalars keep a human-readable encoding so atomic increments work on
// numeric fields; everything else is JSON.
func encodeValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode field value: %w", err)
		}
		return string(b), nil
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// decodeUser rebuilds a user record from its stored field map.
func decodeUser(userID string, fields map[string]string) (*model.User, error) {
	u := &model.User{UserID: userID}

	for k, v := range fields {
		switch {
		case k == FieldUserID:
			// Key is authoritative.
		case k == FieldFirstVisit:
			u.FirstVisit = parseTime(v)
		case k == FieldLastVisit:
			u.LastVisit = parseTime(v)
		case k == FieldTotalVisits:
			u.TotalVisits = parseInt(v)
		case k == FieldTotalInteractions:
			u.TotalInteractions = parseInt(v)
		case k == FieldDevice:
			var d model.DeviceInfo
			if err := json.Unmarshal([]byte(v), &d); err != nil {
				return nil, fmt.Errorf("decode device for %s: %w", userID, err)
			}
			u.Device = &d
		case strings.HasPrefix(k, PrefixInteractions):
			var lc model.LinkClick
			if err := json.Unmarshal([]byte(v), &lc); err != nil {
				return nil, fmt.Errorf("decode interaction %s for %s: %w", k, userID, err)
			}
			if u.Interactions == nil {
				u.Interactions = make(map[string]*model.LinkClick)
			}
			u.Interactions[strings.TrimPrefix(k, PrefixInteractions)] = &lc
		case strings.HasPrefix(k, PrefixTopCategories):
			if u.TopCategories == nil {
				u.TopCategories = make(map[string]int64)
			}
			u.TopCategories[strings.TrimPrefix(k, PrefixTopCategories)] = parseInt(v)
		case strings.HasPrefix(k, PrefixTopActions):
			if u.TopActions == nil {
				u.TopActions = make(map[string]int64)
			}
			u.TopActions[strings.TrimPrefix(k, PrefixTopActions)] = parseInt(v)
		case strings.HasPrefix(k, PrefixFavoriteContent):
			if u.FavoriteContent == nil {
				u.FavoriteContent = make(map[string]int64)
			}
			u.FavoriteContent[strings.TrimPrefix(k, PrefixFavoriteContent)] = parseInt(v)
		}
	}

	return u, nil
}

// decodeAggregate rebuilds a URL aggregate from its stored field map.
func decodeAggregate(urlHash string, fields map[string]string) *model.LinkAggregate {
	agg := &model.LinkAggregate{URLHash: urlHash}

	for k, v := range fields {
		switch k {
		case FieldURL:
			agg.URL = v
		case FieldTitle:
			agg.Title = v
		case FieldTotalClicks:
			agg.TotalClicks = parseInt(v)
		case FieldUniqueUsers:
			agg.UniqueUsers = parseInt(v)
		case FieldAvgClicksPerUser:
			agg.AvgClicksPerUser = parseFloat(v)
		case FieldFirstClick:
			agg.FirstClick = parseTime(v)
		case FieldLastClick:
			agg.LastClick = parseTime(v)
		case FieldCreatedAt:
			agg.CreatedAt = parseTime(v)
		case FieldUpdatedAt:
			agg.UpdatedAt = parseTime(v)
		}
	}

	return agg
}
