package weather

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Data is the last successfully fetched observation.
type Data struct {
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	TempMin     float64   `json:"temp_min"`
	TempMax     float64   `json:"temp_max"`
	Humidity    uint8     `json:"humidity"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Location    string    `json:"location"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Default is shown before the first successful fetch.
func Default() Data {
	return Data{
		Description: "N/A",
		Icon:        "01d",
		Location:    "Unknown",
	}
}

type response struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  uint8   `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Name string `json:"name"`
}

func (r *response) data(at time.Time) Data {
	d := Data{
		Temperature: r.Main.Temp,
		FeelsLike:   r.Main.FeelsLike,
		TempMin:     r.Main.TempMin,
		TempMax:     r.Main.TempMax,
		Humidity:    r.Main.Humidity,
		Description: "Unknown",
		Icon:        "01d",
		Location:    r.Name,
		FetchedAt:   at,
	}

	if len(r.Weather) > 0 {
		d.Description = capitalize(r.Weather[0].Description)
		d.Icon = r.Weather[0].Icon
	}

	return d
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}

	return string(unicode.ToUpper(r)) + s[size:]
}

// unquote strips surrounding whitespace and quote characters left behind by
// settings storage.
func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
