package events

// NewEvent carries the six fields collected by the add-event dialogue.
type NewEvent struct {
	Summary     string
	LongURL     string
	Location    string
	Description string
	DateStart   string
	DateEnd     string
}

// EventRef is one entry of the event list.
type EventRef struct {
	ID      int64  `db:"id"`
	Summary string `db:"summary"`
	LongURL string `db:"long_url"`
}

// EventLink is what the user gets back after opening an event.
type EventLink struct {
	Summary string `db:"summary"`
	LongURL string `db:"long_url"`
}

// UsageStat reports how often an event link was opened.
type UsageStat struct {
	Summary    string `db:"summary"`
	UsageCount int64  `db:"usage_count"`
}

// HashedURL reports how often a shortened link was resolved.
type HashedURL struct {
	HashValue  string `db:"hash_value"`
	UsageCount int64  `db:"usage_count"`
}

// Encoder derives the public hash of a freshly inserted row id.
type Encoder interface {
	Encode(id int64) (string, error)
}
