package models

// CheckTarget identifies one server URL to probe.
type CheckTarget struct {
	StreamID    string `json:"streamId"`
	StreamTitle string `json:"streamTitle"`
	ServerID    string `json:"serverId"`
	ServerName  string `json:"serverName"`
	URL         string `json:"url"`
}

// HealthCheckResult is the outcome of probing one CheckTarget.
type HealthCheckResult struct {
	StreamID    string `json:"streamId"`
	StreamTitle string `json:"streamTitle"`
	ServerID    string `json:"serverId"`
	ServerName  string `json:"serverName"`
	Status      string `json:"status"`
	StatusCode  *int   `json:"statusCode,omitempty"`
	Error       string `json:"error,omitempty"`
	CheckTime   string `json:"checkTime"`
}

// HealthStats aggregates a set of results. WorkingRate is a percentage
// with one decimal place, e.g. "87.5".
type HealthStats struct {
	Total       int    `json:"total"`
	Working     int    `json:"working"`
	Broken      int    `json:"broken"`
	WorkingRate string `json:"workingRate"`
}

// CheckSummary describes the scope of a check-all run.
type CheckSummary struct {
	TotalStreams int    `json:"totalStreams"`
	TotalServers int    `json:"totalServers"`
	CheckedAt    string `json:"checkedAt"`
}

// CheckReport is the response body of a check-all run.
type CheckReport struct {
	Results []HealthCheckResult `json:"results"`
	Stats   HealthStats         `json:"stats"`
	Summary CheckSummary        `json:"summary"`
}

// TimeLayout is the ISO-8601 form used for check timestamps,
// e.g. "2024-05-01T12:00:00.000Z".
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"
