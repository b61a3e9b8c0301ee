package model

import "time"

// LinkAggregate is the cross-user aggregate for one distinct external URL,
// keyed by the URL fingerprint. FirstClick and CreatedAt are set at
// creation and never overwritten; Title is last-write-wins.
type LinkAggregate struct {
	URLHash          string    `json:"urlHash"`
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	TotalClicks      int64     `json:"totalClicks"`
	UniqueUsers      int64     `json:"uniqueUsers"`
	AvgClicksPerUser float64   `json:"avgClicksPerUser"`
	FirstClick       time.Time `json:"firstClick"`
	LastClick        time.Time `json:"lastClick"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
