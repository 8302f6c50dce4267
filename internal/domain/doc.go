// Package domain models the precipitation nowcast feed and the rain-warning
// decision data derived from it.
//
// # Data Source
//
// The nowcast originates from the MET Norway nowcast product (met.no), which
// a Home Assistant integration exposes as a JSON attribute on a sensor
// entity. The attribute holds an array of forecast points at roughly 5-minute
// resolution over a ~90-minute horizon:
//
//	[
//	  {"datetime": "2025-01-01T12:00:00Z", "precipitation": 0.0},
//	  {"datetime": "2025-01-01T12:05:00Z", "precipitation": 0.5},
//	  ...
//	]
//
// # Conventions
//
// Timestamps:
//
//	RFC 3339 / ISO-8601. MET.no emits a literal "Z" UTC suffix; some
//	integrations rewrite it as an explicit "+00:00" offset. Both forms parse
//	to the same instant. A point with a missing or blank datetime is kept in
//	the slice with a zero Time and skipped by the rain scan, matching the
//	feed's occasional padding entries.
//
// Precipitation:
//
//	Millimetres expected in the point's interval. The field is optional in
//	the wire format; a missing value means "no rain", not an error, and
//	parses as 0.
//
// Ordering:
//
//	The feed is time-ordered. The rain scan relies on this to stop at the
//	first point past the look-ahead window instead of scanning the full
//	array.
//
// # Decision records
//
// Evaluation captures one pass through the warning pipeline (trigger, rain
// scan outcome, opening states, cooldown snapshot) for the debug log and the
// audit stream. WarningEvent is the serialized audit record published after a
// notification is dispatched.
package domain
