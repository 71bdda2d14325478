package domain

// Breakdown is the raw-event view of a link's clicks over a day range.
type Breakdown struct {
	Total            int64
	UniqueVisitors   int64
	Devices          map[string]int64
	Browsers         map[string]int64
	OperatingSystems map[string]int64
	Countries        map[string]int64
	Hourly           [24]int64
	// Weekday is indexed by time.Weekday, Sunday first, in UTC
	Weekday [7]int64
}

// Share is one labelled slice of a breakdown with its percentage of the total.
type Share struct {
	Label   string  `json:"label"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}
