package model

import (
	"time"
)

// Source channels that can contribute to a sale decision
const (
	SourceDNS  = "dns"
	SourceRDAP = "rdap"
)

// ErrorKind classifies every non-fatal problem a lookup can encounter.
// The names are part of the wire contract and must not change.
type ErrorKind int

const (
	ErrorKindInvalidDomain ErrorKind = iota
	ErrorKindTimeout
	ErrorKindNxDomain
	ErrorKindResolutionError
	ErrorKindDnssecValidationError
	ErrorKindSchemaError
	ErrorKindRdapUnreachable
	ErrorKindOfferExpired
)

// nolint:gochecknoglobals
var errorKindNames = map[ErrorKind]string{
	ErrorKindInvalidDomain:         "InvalidDomain",
	ErrorKindTimeout:               "Timeout",
	ErrorKindNxDomain:              "NxDomain",
	ErrorKindResolutionError:       "ResolutionError",
	ErrorKindDnssecValidationError: "DnssecValidationError",
	ErrorKindSchemaError:           "SchemaError",
	ErrorKindRdapUnreachable:       "RdapUnreachable",
	ErrorKindOfferExpired:          "OfferExpired",
}

// String implements `fmt.Stringer`
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}

	return "Unknown"
}

// MarshalText implements `encoding.TextMarshaler`
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// LookupError is one recorded problem: the wire-visible kind plus a
// diagnostic detail which is logged but not serialized.
type LookupError struct {
	Kind   ErrorKind
	Detail string
}

func (e LookupError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}

	return e.Kind.String() + ": " + e.Detail
}

// MarshalJSON serializes only the error kind, per the response contract
func (e LookupError) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.Kind.String() + `"`), nil
}

// TXTRecord is one raw TXT string of the answer with its record TTL
type TXTRecord struct {
	Content string
	TTL     uint32
}

// RawAnswer is the DNS response for the `_for-sale` TXT query. It is produced
// by the resolver and consumed only by the record selector.
type RawAnswer struct {
	// Records holds the TXT strings in DNS answer order
	Records []TXTRecord
	// Authenticated is true only if the full DNSSEC chain of trust verified
	Authenticated bool
	// Rcode of the upstream response
	Rcode int
}

// CandidateRecord is one TXT string that passed version-tag and size selection
type CandidateRecord struct {
	VersionTag string
	Content    []byte
	SourceTTL  uint32
}

// SalePayload is the validated structured content of one candidate record.
// All fields are optional; empty string means absent.
type SalePayload struct {
	Price   string
	URL     string
	Contact string
	Expires string
	// ExpiresAt is the parsed Expires date, zero if absent
	ExpiresAt time.Time
}

// RdapResult is the outcome of the RDAP cross-check. An unreachable registry
// is a missing signal, not a failure.
type RdapResult struct {
	TagPresent bool
	Reachable  bool
}

// SaleResponse is the public, immutable result of a lookup
type SaleResponse struct {
	Domain  string        `json:"domain"`
	ForSale bool          `json:"forSale"`
	Price   string        `json:"price,omitempty"`
	URL     string        `json:"url,omitempty"`
	Contact string        `json:"contact,omitempty"`
	Expires string        `json:"expires,omitempty"`
	Source  []string      `json:"source,omitempty"`
	Errors  []LookupError `json:"errors,omitempty"`
}

// HasError returns true if an error of the given kind was recorded
func (r *SaleResponse) HasError(kind ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}

	return false
}

// ErrorKinds returns the recorded error kinds in order
func (r *SaleResponse) ErrorKinds() []ErrorKind {
	result := make([]ErrorKind, len(r.Errors))
	for i, e := range r.Errors {
		result[i] = e.Kind
	}

	return result
}
