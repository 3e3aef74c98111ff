package models

import "time"

// Direction of a binary option order.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

func (d Direction) String() string {
	if d == DirectionNone {
		return "NONE"
	}
	return string(d)
}

// Signal is a qualifying direction produced by the evaluator.
type Signal struct {
	ID         string            `json:"id"`
	Instrument string            `json:"instrument"`
	Direction  Direction         `json:"direction"`
	Snapshot   IndicatorSnapshot `json:"snapshot"`
	FiredAt    time.Time         `json:"fired_at"`
}
