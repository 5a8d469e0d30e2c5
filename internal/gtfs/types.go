package gtfs

import "time"

// WeatherGroup is the coarse classification of an OpenWeatherMap
// condition code.
type WeatherGroup string

const (
	WeatherThunderstorm WeatherGroup = "Thunderstorm"
	WeatherDrizzle      WeatherGroup = "Drizzle"
	WeatherRain         WeatherGroup = "Rain"
	WeatherSnow         WeatherGroup = "Snow"
	WeatherAtmosphere   WeatherGroup = "Atmosphere"
	WeatherClear        WeatherGroup = "Clear"
	WeatherClouds       WeatherGroup = "Clouds"
	WeatherUnknown      WeatherGroup = "Unknown"
)

// Key is the natural identity of one scheduled or observed stop visit.
type Key struct {
	TripID       string
	StartDate    string // service day, YYYYMMDD
	StopSequence int
	StopID       string
}

// ScheduledStopEvent is one reference stop visit produced by the schedule
// import. Rows are replaced wholesale on each import and never mutated.
type ScheduledStopEvent struct {
	Key
	RouteID       string
	StopName      string
	RouteLongName string
	ArrivalTime   time.Time
	DepartureTime time.Time
	Lat           float64
	Lon           float64
}

// Observation is the latest real-time state for one stop visit. Arrival
// and departure are nil until a real update carries them; nil is distinct
// from any concrete instant.
type Observation struct {
	Key
	ArrivalTime        *time.Time
	DepartureTime      *time.Time
	Weather            *WeatherGroup
	WeatherDescription string
	TemperatureC       *float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReconciledDiff is one observation joined to its scheduled counterpart,
// with per-leg delays resolved under the sentinel policy. Fully rebuilt on
// every reconciliation pass.
type ReconciledDiff struct {
	Key
	RouteID            string
	RouteLongName      string
	StopName           string
	ScheduledArrival   time.Time
	ScheduledDeparture time.Time
	ActualArrival      time.Time
	ActualDeparture    time.Time
	ArrivalDelayMin    float64
	DepartureDelayMin  float64
	CombinedDelayMin   float64
	DayType            string
	TimeOfDay          string
	Weather            *WeatherGroup
	WeatherDescription string
	TemperatureC       *float64
	Lat                float64
	Lon                float64
}

// RouteStat summarizes the combined delays of one route's current
// reconciled rows. Delays are in minutes; positive means late.
type RouteStat struct {
	RouteLongName     string
	AverageDelay      float64
	StandardDeviation float64
	MostDelayed       float64
	MostEarly         float64
}
