package config

import (
	"encoding/json"
	"time"

	"github.com/jmylchreest/loopcast/pkg/duration"
)

// Duration is a config value written the way people write durations:
// "3s", "2 minutes", "1d" and "00:01:30" all decode. JSON also accepts
// integer nanoseconds.
type Duration time.Duration

// Duration converts d back to a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return duration.Format(d.Duration()) }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := duration.Parse(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var ns int64
	if json.Unmarshal(data, &ns) == nil {
		*d = Duration(ns)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(text))
}
