package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"time"

	"github.com/domainsale/forsale/model"
)

// Schema failure reasons, reported inside SchemaError
const (
	ReasonMalformedJSON    = "malformed JSON"
	ReasonNotAnObject      = "top-level value is not a single JSON object"
	ReasonUnknownKey       = "unknown key"
	ReasonBadPattern       = "bad pattern"
	ReasonDisallowedScheme = "disallowed scheme"
	ReasonSizeExceeded     = "size exceeded"
)

// SchemaError describes why a candidate record failed validation
type SchemaError struct {
	Reason string
	Detail string
}

func (e *SchemaError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}

	return e.Reason + ": " + e.Detail
}

// pricePattern is CUR:AMOUNT, a three-letter uppercase currency code, a colon
// and a non-negative decimal amount
// nolint:gochecknoglobals
var pricePattern = regexp.MustCompile(`^[A-Z]{3}:[0-9]+(\.[0-9]+)?$`)

// rawPayload is the closed schema. Key membership is checked exactly and
// case-sensitively before any value is decoded - the primary defense against
// payload smuggling. Pointers distinguish "absent" from "empty".
type rawPayload struct {
	Price   *string
	URL     *string
	Contact *string
	Expires *string
}

// Validate parses the candidate's content as exactly one JSON object against
// the closed schema and validates every present field. There is no permissive
// mode: anything that does not conform exactly fails with a SchemaError.
func Validate(candidate model.CandidateRecord) (*model.SalePayload, error) {
	if len(candidate.Content)+len(candidate.VersionTag) > MaxRecordBytes {
		return nil, &SchemaError{Reason: ReasonSizeExceeded}
	}

	raw, err := decodeStrict(candidate.Content)
	if err != nil {
		return nil, err
	}

	payload := &model.SalePayload{}

	if raw.Price != nil {
		if !pricePattern.MatchString(*raw.Price) {
			return nil, &SchemaError{Reason: ReasonBadPattern, Detail: "price must match CUR:AMOUNT"}
		}

		payload.Price = *raw.Price
	}

	if raw.URL != nil {
		if err := checkURI(*raw.URL, "https"); err != nil {
			return nil, err
		}

		payload.URL = *raw.URL
	}

	if raw.Contact != nil {
		if err := checkURI(*raw.Contact, "mailto"); err != nil {
			return nil, err
		}

		payload.Contact = *raw.Contact
	}

	if raw.Expires != nil {
		expiresAt, err := time.Parse("2006-01-02", *raw.Expires)
		if err != nil {
			return nil, &SchemaError{Reason: ReasonBadPattern, Detail: "expires must be an ISO-8601 date"}
		}

		payload.Expires = *raw.Expires
		payload.ExpiresAt = expiresAt
	}

	return payload, nil
}

// decodeStrict decodes the content as exactly one JSON object with no unknown
// keys, no trailing bytes and no second value
func decodeStrict(content []byte) (*rawPayload, error) {
	decoder := json.NewDecoder(bytes.NewReader(content))

	token, err := decoder.Token()
	if err != nil {
		return nil, &SchemaError{Reason: ReasonMalformedJSON, Detail: err.Error()}
	}

	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, &SchemaError{Reason: ReasonNotAnObject}
	}

	// re-decode from the start now that the top-level shape is known
	decoder = json.NewDecoder(bytes.NewReader(content))

	var fields map[string]json.RawMessage
	if err := decoder.Decode(&fields); err != nil {
		return nil, &SchemaError{Reason: ReasonMalformedJSON, Detail: err.Error()}
	}

	// anything after the object (a second value, trailing bytes) fails closed
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, &SchemaError{Reason: ReasonNotAnObject, Detail: "trailing data after JSON object"}
	}

	raw := &rawPayload{}

	// the struct decoder matches field names case-insensitively and would
	// turn "Price" into a recognized key; membership must be exact
	targets := map[string]**string{
		"price":   &raw.Price,
		"url":     &raw.URL,
		"contact": &raw.Contact,
		"expires": &raw.Expires,
	}

	for key, value := range fields {
		target, known := targets[key]
		if !known {
			return nil, &SchemaError{Reason: ReasonUnknownKey, Detail: key}
		}

		var decoded string
		if err := json.Unmarshal(value, &decoded); err != nil {
			return nil, &SchemaError{Reason: ReasonBadPattern, Detail: key + " must be a string"}
		}

		*target = &decoded
	}

	return raw, nil
}

// checkURI requires an absolute URI with exactly the passed scheme. tel:,
// javascript:, data: and everything else is rejected.
func checkURI(value, scheme string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return &SchemaError{Reason: ReasonBadPattern, Detail: fmt.Sprintf("invalid URI: %v", err)}
	}

	if parsed.Scheme != scheme {
		return &SchemaError{
			Reason: ReasonDisallowedScheme,
			Detail: fmt.Sprintf("scheme must be %q", scheme),
		}
	}

	if scheme == "https" && parsed.Host == "" {
		return &SchemaError{Reason: ReasonBadPattern, Detail: "https URL must contain a host"}
	}

	if scheme == "mailto" && parsed.Opaque == "" {
		return &SchemaError{Reason: ReasonBadPattern, Detail: "mailto URI must contain an address"}
	}

	return nil
}
