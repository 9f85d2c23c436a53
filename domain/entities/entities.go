package entities

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Rating is a hotel score. The backend sends numbers, but some sources emit
// strings such as "4.5" or "N/A"; unparseable values decode as zero.
type Rating float64

// UnmarshalJSON implements json.Unmarshaler
func (r *Rating) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*r = Rating(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*r = 0
		return nil
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		*r = Rating(f)
		return nil
	}
	*r = 0
	return nil
}

// Hotel is one ranked item of an assistant reply
type Hotel struct {
	Name     string `json:"name" yaml:"name"`
	Rating   Rating `json:"rating,omitempty" yaml:"rating"`
	Location string `json:"location,omitempty" yaml:"location"`
	Price    string `json:"price,omitempty" yaml:"price"`
	URL      string `json:"url,omitempty" yaml:"url"`
}

// AssistantReply is what the UI renders for one assistant turn
type AssistantReply struct {
	Text   string  `json:"text"`
	Hotels []Hotel `json:"hotels,omitempty"`
	Intent string  `json:"intent,omitempty"`
	Action string  `json:"action,omitempty"`
}

// HasHotels reports whether the reply carries ranked items to render as a list
func (r AssistantReply) HasHotels() bool {
	return len(r.Hotels) > 0
}

// Validate validates the hotel data
func (h *Hotel) Validate() error {
	if h.Name == "" {
		return errors.New("name is required")
	}
	return nil
}
