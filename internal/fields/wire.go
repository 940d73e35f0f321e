package fields

import "strings"

// Provider response shapes. Only the members used here are decoded.

type link struct {
	Rel string `json:"rel"`
	URI string `json:"uri"`
}

type links []link

func (l links) next() string {
	for _, lk := range l {
		if lk.Rel == "nextPage" {
			return lk.URI
		}
	}
	return ""
}

type fieldPage struct {
	Links  links       `json:"links"`
	Values []fieldItem `json:"values"`
}

type fieldItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

type boundaryPage struct {
	Links  links          `json:"links"`
	Values []boundaryItem `json:"values"`
}

type boundaryItem struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Active        bool           `json:"active"`
	Archived      bool           `json:"archived"`
	Multipolygons []multipolygon `json:"multipolygons"`
}

type multipolygon struct {
	Rings []ring `json:"rings"`
}

type ring struct {
	Type   string  `json:"type"`
	Points []point `json:"points"`
}

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// exterior reports whether r outlines the field rather than a hole.
func (r ring) exterior() bool {
	return r.Type == "" || strings.EqualFold(r.Type, "exterior")
}
