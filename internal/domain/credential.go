package domain

// Credential is one upstream API key together with its daily usage state.
// Secret values come from the environment and are never persisted; only the
// stable name and the per-day counters go to the database.
type Credential struct {
	Name            string
	Secret          string
	CallsMadeToday  int
	IsFailedToday   bool
	LastFailedDate  string // YYYY-MM-DD in the reference timezone
	DailyUsePercent float64
}

// CredentialStatus is the persisted slice of a Credential. LastUsedDate
// scopes the counters: state written on an earlier day is stale and must be
// zeroed when loaded.
type CredentialStatus struct {
	Name            string
	CallsMadeToday  int
	IsFailedToday   bool
	LastFailedDate  string
	LastUsedDate    string
	DailyUsePercent float64
}

// PoolSummary reports the rotator state for diagnostics.
type PoolSummary struct {
	TotalKeys     int                `json:"total_keys"`
	AvailableKeys int                `json:"available_keys"`
	FailedToday   int                `json:"failed_today"`
	LastResetDate string             `json:"last_reset_date"`
	Keys          []CredentialStatus `json:"keys"`
}
