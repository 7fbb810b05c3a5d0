package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when a page payload does not have the
// expected shape. It fails the whole page.
var ErrMalformedPayload = errors.New("malformed payload")

// PriceMode selects where each record's price is read from.
type PriceMode int

const (
	// PriceFromFirstAd gives every record on a page the price of the first
	// ad. This matches the historical scraper output already persisted.
	PriceFromFirstAd PriceMode = iota

	// PriceFromOwnAd reads each record's price from its own ad.
	PriceFromOwnAd
)

// String implements fmt.Stringer.
func (m PriceMode) String() string {
	switch m {
	case PriceFromFirstAd:
		return "first-ad"
	case PriceFromOwnAd:
		return "own-ad"
	default:
		return "unknown"
	}
}

// DetailKeys are the keys read from each ad's detail object, in record order.
var DetailKeys = []string{
	"url", "title", "time", "year", "mileage",
	"location", "description", "image", "modified_date",
}

// Payload is the decoded body of one search page.
type Payload struct {
	Data *PayloadData `json:"data"`
}

// PayloadData wraps the ads list.
type PayloadData struct {
	Ads []Ad `json:"ads"`
}

// Ad is one entry of data.ads. Values are kept raw so that numbers and
// strings are both accepted as text.
type Ad struct {
	Detail map[string]json.RawMessage `json:"detail"`
	Price  map[string]json.RawMessage `json:"price"`
}

// Decode parses a page body.
func Decode(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// ExtractJSON decodes body and extracts its records.
func ExtractJSON(body []byte, mode PriceMode) ([]CarRecord, error) {
	p, err := Decode(body)
	if err != nil {
		return nil, err
	}
	return Extract(p, mode)
}

// Extract builds one CarRecord per ad, in payload order.
// It has no side effects and is safe for concurrent use.
func Extract(p *Payload, mode PriceMode) ([]CarRecord, error) {
	if p == nil || p.Data == nil || p.Data.Ads == nil {
		return nil, fmt.Errorf("%w: data.ads missing", ErrMalformedPayload)
	}
	ads := p.Data.Ads

	var firstPrice string
	if mode == PriceFromFirstAd && len(ads) > 0 {
		price, err := adPrice(ads[0], 0)
		if err != nil {
			return nil, err
		}
		firstPrice = price
	}

	records := make([]CarRecord, 0, len(ads))
	for i, ad := range ads {
		if ad.Detail == nil {
			return nil, fmt.Errorf("%w: ad %d: detail missing", ErrMalformedPayload, i)
		}

		values := make([]string, len(DetailKeys))
		for k, key := range DetailKeys {
			raw, ok := ad.Detail[key]
			if !ok {
				return nil, fmt.Errorf("%w: ad %d: detail.%s missing", ErrMalformedPayload, i, key)
			}
			v, err := text(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: ad %d: detail.%s: %v", ErrMalformedPayload, i, key, err)
			}
			values[k] = v
		}

		price := firstPrice
		if mode == PriceFromOwnAd {
			var err error
			if price, err = adPrice(ad, i); err != nil {
				return nil, err
			}
		}

		records = append(records, CarRecord{
			URL:          values[0],
			Title:        values[1],
			Time:         values[2],
			Year:         values[3],
			Mileage:      values[4],
			Location:     values[5],
			Description:  values[6],
			Image:        values[7],
			ModifiedDate: values[8],
			Price:        price,
		})
	}

	return records, nil
}

func adPrice(ad Ad, i int) (string, error) {
	if ad.Price == nil {
		return "", fmt.Errorf("%w: ad %d: price missing", ErrMalformedPayload, i)
	}
	raw, ok := ad.Price["price"]
	if !ok {
		return "", fmt.Errorf("%w: ad %d: price.price missing", ErrMalformedPayload, i)
	}
	v, err := text(raw)
	if err != nil {
		return "", fmt.Errorf("%w: ad %d: price.price: %v", ErrMalformedPayload, i, err)
	}
	return v, nil
}

// text renders a raw JSON scalar as a string. JSON null becomes "".
func text(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return "", nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case raw[0] == '{' || raw[0] == '[':
		return "", errors.New("not a scalar")
	default:
		return string(raw), nil
	}
}
