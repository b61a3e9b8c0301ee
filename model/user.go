package model

import "time"

// DeviceInfo is the normalized device descriptor captured once per user.
// It is set on the user record the first time it is observed and never
// overwritten afterwards.
type DeviceInfo struct {
	Type     string            `json:"deviceType"` // mobile, desktop, tablet, unknown
	AppName  string            `json:"appName"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LinkClick is the per-user click record for a single external URL,
// keyed in User.Interactions by the URL fingerprint.
type LinkClick struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Count      int64     `json:"count"`
	FirstClick time.Time `json:"firstClick"`
	LastClick  time.Time `json:"lastClick"`
}

// ReferralAttribution records which referral source brought a visit.
type ReferralAttribution struct {
	Hash      string    `json:"hash"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandEntry is one terminal or AI chat command in the user's history.
// Response is omitted for plain terminal commands without output capture.
type CommandEntry struct {
	Command   string      `json:"command"`
	Kind      CommandKind `json:"type"`
	Response  string      `json:"response,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// User is the per-client analytics record. One exists per pseudonymous
// user id, created lazily on the first tracked visit.
type User struct {
	UserID            string                `json:"userId"`
	FirstVisit        time.Time             `json:"firstVisit"`
	LastVisit         time.Time             `json:"lastVisit"`
	TotalVisits       int64                 `json:"totalVisits"`
	Device            *DeviceInfo           `json:"device,omitempty"`
	TotalInteractions int64                 `json:"totalInteractions"`
	TopCategories     map[string]int64      `json:"topCategories,omitempty"`
	TopActions        map[string]int64      `json:"topActions,omitempty"`
	FavoriteContent   map[string]int64      `json:"favoriteContent,omitempty"`
	Interactions      map[string]*LinkClick `json:"interactions,omitempty"`
}

// Clone returns a copy safe to mutate without affecting cached instances.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Device != nil {
		d := *u.Device
		c.Device = &d
	}
	c.TopCategories = cloneCounters(u.TopCategories)
	c.TopActions = cloneCounters(u.TopActions)
	c.FavoriteContent = cloneCounters(u.FavoriteContent)
	if u.Interactions != nil {
		c.Interactions = make(map[string]*LinkClick, len(u.Interactions))
		for k, v := range u.Interactions {
			lc := *v
			c.Interactions[k] = &lc
		}
	}
	return &c
}

func cloneCounters(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	c := make(map[string]int64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// ReferralSource is a resolved "hash -> human label" referral mapping.
type ReferralSource struct {
	Hash string `json:"hash"`
	Name string `json:"name"`
}
