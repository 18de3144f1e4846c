package models

// TrackedInstrument is the discovered metadata for a single streamable
// instrument. Collections of these are replaced wholesale on refresh and are
// never mutated in place while streaming.
type TrackedInstrument struct {
	AssetID  string
	EventID  string
	Title    string
	Category string
	Volume   float64
}
