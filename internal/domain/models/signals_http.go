package models

// Query parameters for the status endpoints.

type RecentSignalsRequest struct {
	Limit      int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
	Instrument string `query:"instrument" json:"instrument" validate:"omitempty,max=32"`
}

type RecentTradesRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}
