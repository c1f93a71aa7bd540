package models

import "time"

// TemperatureRecord is a body temperature reading in degrees Celsius
type TemperatureRecord struct {
	ID          int64
	PersonID    int64
	PersonName  string
	Temperature float64
	CreatedAt   time.Time
	CreatedBy   *int64
	UpdatedBy   *int64
	UpdatedAt   time.Time
}

// Day returns the calendar day of the reading as YYYY-MM-DD
func (r *TemperatureRecord) Day() string {
	return r.CreatedAt.Format(DateLayout)
}

// DateLayout is the layout used for calendar dates in forms and storage
const DateLayout = "2006-01-02"
