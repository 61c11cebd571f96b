package strava

import (
	"fmt"
	"slices"
	"time"
)

type Athlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	City      string `json:"city"`
	Country   string `json:"country"`
}

func (a Athlete) Name() string {
	if a.FirstName == "" && a.LastName == "" {
		return a.Username
	}
	return a.FirstName + " " + a.LastName
}

// Activity is the summary representation returned by /athlete/activities.
type Activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	AverageHeartrate   float64   `json:"average_heartrate,omitempty"`
	MaxHeartrate       float64   `json:"max_heartrate,omitempty"`
	AverageWatts       float64   `json:"average_watts,omitempty"`
	Kilojoules         float64   `json:"kilojoules,omitempty"`
	HasHeartrate       bool      `json:"has_heartrate"`
	Manual             bool      `json:"manual"`
}

// StreamTypes are the series requested for every activity, in export order.
var StreamTypes = []string{
	"time",
	"distance",
	"latlng",
	"altitude",
	"velocity_smooth",
	"heartrate",
	"cadence",
	"watts",
	"temp",
	"moving",
	"grade_smooth",
}

// Stream is one time series of an activity. Data holds float64 values for
// most types, [2]float64 pairs for latlng and bools for moving, exactly as
// decoded from JSON.
type Stream struct {
	Type         string `json:"type,omitempty"`
	SeriesType   string `json:"series_type"`
	OriginalSize int    `json:"original_size"`
	Resolution   string `json:"resolution"`
	Data         []any  `json:"data"`
}

// StreamSet maps stream type to stream, as returned with key_by_type=true.
type StreamSet map[string]Stream

// Len is the number of samples in the longest stream.
func (s StreamSet) Len() int {
	n := 0
	for _, st := range s {
		if len(st.Data) > n {
			n = len(st.Data)
		}
	}
	return n
}

// Ordered returns the stream types present in s, following StreamTypes and
// then any unknown types sorted by name.
func (s StreamSet) Ordered() []string {
	var types []string
	seen := make(map[string]bool, len(s))
	for _, t := range StreamTypes {
		if _, ok := s[t]; ok {
			types = append(types, t)
			seen[t] = true
		}
	}
	var extra []string
	for t := range s {
		if !seen[t] {
			extra = append(extra, t)
		}
	}
	slices.Sort(extra)
	return append(types, extra...)
}

// APIError is a non-2xx response from the Strava API.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Errors     []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
	} `json:"errors"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("strava api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("strava api: status %d: %s", e.StatusCode, e.Message)
}
