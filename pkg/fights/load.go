package fights

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/biter777/countries"
)

type wireFight struct {
	ID              string  `json:"id"`
	Date            string  `json:"date"`
	DurationSeconds float64 `json:"duration_seconds"`
	Method          string  `json:"method"`
	Result          string  `json:"result"`
	OpponentID      string  `json:"opponent_id"`
	OpponentName    string  `json:"opponent_name"`
	EventName       string  `json:"event_name"`
	FinishRound     int     `json:"finish_round,omitempty"`
	FinishRoundTime string  `json:"finish_round_time,omitempty"`
	ExternalURL     string  `json:"external_url,omitempty"`
	Division        string  `json:"division,omitempty"`
	OpponentCountry string  `json:"opponent_country,omitempty"`
	HeadshotURL     string  `json:"headshot_url,omitempty"`
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// Load decodes a JSON array of fights.
func Load(r io.Reader) ([]Fight, error) {
	var raw []wireFight
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode fights: %w", err)
	}
	out := make([]Fight, 0, len(raw))
	for i, w := range raw {
		date, err := parseDate(w.Date)
		if err != nil {
			return nil, fmt.Errorf("fight %d (%s): %w", i, w.ID, err)
		}
		res, err := ParseResult(w.Result)
		if err != nil {
			return nil, fmt.Errorf("fight %d (%s): %w", i, w.ID, err)
		}
		out = append(out, Fight{
			ID:              w.ID,
			Date:            date,
			DurationSeconds: w.DurationSeconds,
			Method:          ParseMethod(w.Method),
			Result:          res,
			OpponentID:      w.OpponentID,
			OpponentName:    w.OpponentName,
			EventName:       w.EventName,
			FinishRound:     w.FinishRound,
			FinishRoundTime: w.FinishRoundTime,
			ExternalURL:     w.ExternalURL,
			Division:        w.Division,
			OpponentCountry: w.OpponentCountry,
			HeadshotURL:     w.HeadshotURL,
		})
	}
	return out, nil
}

// LoadFile reads fights from a JSON file.
func LoadFile(path string) ([]Fight, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// LoadDensityFile reads a JSON density grid: {"cols":N,"rows":M,"buckets":[{"i":..,"j":..,"count":..}]}.
func LoadDensityFile(path string) (DensityGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return DensityGrid{}, err
	}
	defer f.Close()
	var g DensityGrid
	if err := json.NewDecoder(f).Decode(&g); err != nil {
		return DensityGrid{}, fmt.Errorf("failed to decode density grid: %w", err)
	}
	return g, nil
}

// CountryName resolves an ISO country code for display, falling back to the
// code itself.
func CountryName(code string) string {
	if code == "" {
		return ""
	}
	c := countries.ByName(code)
	if c == countries.Unknown {
		return code
	}
	return c.String()
}
