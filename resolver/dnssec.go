package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/domainsale/forsale/log"
)

// ErrDnssecValidation indicates the chain of trust could not be verified.
// An unsigned answer produces this error as well.
var ErrDnssecValidation = errors.New("dnssec validation failed")

const (
	// defaultMaxQueries bounds the upstream queries one validation may issue
	defaultMaxQueries = 30

	// defaultClockSkew is the signature time window tolerance, matching the
	// Unbound/BIND default (RFC 6781 §4.1.2)
	defaultClockSkew = time.Hour

	dnskeyProtocolValue = 3 // RFC 4034 §2.1.2
)

// Root KSK trust anchors from IANA.
// Source: https://data.iana.org/root-anchors/root-anchors.xml
// nolint:gochecknoglobals
var defaultRootTrustAnchors = []string{
	// KSK-2017, key tag 20326
	". 172800 IN DNSKEY 257 3 8 " +
		"AwEAAaz/tAm8yTn4Mfeh5eyI96WSVexTBAvkMgJzkKTOiW1vkIbzxeF3+/4RgWOq7HrxRixHlFlExOLAJr5emLvN7SWXgnLh4+B5xQlNVz8Og8k" +
		"vArMtNROxVQuCaSnIDdD5LKyWbRd2n9WGe2R8PzgCmr3EgVLrjyBxWezF0jLHwVN8efS3rCj/EWgvIWgb9tarpVUDK/b58Da+sqqls3eNbuv7pr" +
		"+eoZG+SrDK6nWeL3c6H5Apxz7LjVc1uTIdsIXxuOLYA4/ilBmSVIzuDWfdRUfhHdY6+cn8HFRm+2hM8AnXGXws9555KrUB5qihylGa8subX2Nn6" +
		"UwNR1AkUTV74bU=",
	// KSK-2024, key tag 38696
	". 172800 IN DNSKEY 257 3 8 " +
		"AwEAAa96jeuknZlaeSrvyAJj6ZHv28hhOKkx3rLGXVaC6rXTsDc449/cidltpkyGwCJNnOAlFNKF2jBosZBU5eeHspaQWOmOElZsjICMQMC3aeH" +
		"bGiShvZsx4wMYSjH8e7Vrhbu6irwCzVBApESjbUdpWWmEnhathWu1jo+siFUiRAAxm9qyJNg/wOZqqzL/dL/q8PkcRU5oUKEpUge71M3ej2/7CP" +
		"qpdVwuMoTvoB+ZOT4YeGyxMvHmbrxlFzGOHOijtzN+u1TQNatX2XBuzZNQ1K+s2CXkPIZo7s6JgZyvaBevYtxPvYLw4z9mR7K2vaF18UYH9Z9GN" +
		"UUeayffKC73PYc=",
}

// ChainValidator verifies DNSSEC chains of trust: RRSIG over the answer,
// DNSKEY of the signer zone, DS records walked up to a configured trust
// anchor. It does not implement recursion; DNSKEY/DS lookups go through the
// same upstream as the original query.
type ChainValidator struct {
	exchanger  Exchanger
	anchors    []*dns.DNSKEY
	maxQueries int
	clockSkew  time.Duration
	logger     *logrus.Entry
}

// NewChainValidator creates a validator with the passed trust anchors in
// DNSKEY zone file format. Empty anchors means the IANA root KSKs.
func NewChainValidator(exchanger Exchanger, anchorStrings []string) (*ChainValidator, error) {
	if len(anchorStrings) == 0 {
		anchorStrings = defaultRootTrustAnchors
	}

	anchors := make([]*dns.DNSKEY, 0, len(anchorStrings))

	for _, anchorStr := range anchorStrings {
		rr, err := dns.NewRR(anchorStr)
		if err != nil {
			return nil, fmt.Errorf("can't parse trust anchor: %w", err)
		}

		dnskey, ok := rr.(*dns.DNSKEY)
		if !ok {
			return nil, errors.New("trust anchor is not a DNSKEY record")
		}

		if dnskey.Flags&dns.SEP == 0 {
			return nil, errors.New("trust anchor is not a KSK (SEP flag not set)")
		}

		anchors = append(anchors, dnskey)
	}

	return &ChainValidator{
		exchanger:  exchanger,
		anchors:    anchors,
		maxQueries: defaultMaxQueries,
		clockSkew:  defaultClockSkew,
		logger:     log.PrefixedLog("dnssec"),
	}, nil
}

// Validate verifies all RRsets in the answer section of the response.
// It returns nil only if every RRset is covered by a valid RRSIG whose key is
// anchored via an unbroken DS chain. Missing signatures, a broken chain and
// an unsigned zone all fail.
func (v *ChainValidator) Validate(ctx context.Context, response *dns.Msg, qname string) error {
	session := &chainSession{
		validator: v,
		budget:    v.maxQueries,
		zoneKeys:  make(map[string][]*dns.DNSKEY),
	}

	rrsets := groupRRsets(response.Answer)
	if len(rrsets) == 0 {
		return errors.New("response contains no validatable RRsets")
	}

	sigs := extractRRSIGs(response.Answer)
	if len(sigs) == 0 {
		return fmt.Errorf("answer for %s is unsigned", log.EscapeInput(qname))
	}

	for key, rrset := range rrsets {
		matching := findMatchingRRSIGs(sigs, key.name, key.rrType)
		if len(matching) == 0 {
			return fmt.Errorf("no RRSIG covers %s type %s", log.EscapeInput(key.name), dns.TypeToString[key.rrType])
		}

		if err := session.verifyRRset(ctx, rrset, matching); err != nil {
			return err
		}
	}

	v.logger.Debugf("chain of trust verified for %s", log.EscapeInput(qname))

	return nil
}

// chainSession holds per-validation state: the query budget and the zones
// whose DNSKEY RRset already verified during this validation
type chainSession struct {
	validator *ChainValidator
	budget    int
	zoneKeys  map[string][]*dns.DNSKEY
}

func (s *chainSession) verifyRRset(ctx context.Context, rrset []dns.RR, sigs []*dns.RRSIG) error {
	name := dns.Fqdn(rrset[0].Header().Name)

	var lastErr error

	for _, sig := range sigs {
		// RFC 4035 §5.3.1: the signer must be the zone or a parent of it
		if !dns.IsSubDomain(sig.SignerName, name) {
			continue
		}

		if err := s.validator.checkTimeWindow(sig); err != nil {
			lastErr = err

			continue
		}

		keys, err := s.validatedZoneKeys(ctx, sig.SignerName)
		if err != nil {
			lastErr = err

			continue
		}

		key := findMatchingDNSKEY(keys, sig.KeyTag, sig.Algorithm)
		if key == nil {
			lastErr = fmt.Errorf("no DNSKEY with tag %d and algorithm %d in zone %s",
				sig.KeyTag, sig.Algorithm, log.EscapeInput(sig.SignerName))

			continue
		}

		if err := sig.Verify(key, rrset); err != nil {
			lastErr = fmt.Errorf("signature verification failed for %s: %w", log.EscapeInput(name), err)

			continue
		}

		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no usable RRSIG for %s", log.EscapeInput(name))
	}

	return lastErr
}

// validatedZoneKeys returns the DNSKEY RRset of the zone after verifying it:
// the RRset must be self-signed by a key that is either a configured trust
// anchor (root) or matches a validated DS record in the parent zone.
func (s *chainSession) validatedZoneKeys(ctx context.Context, zone string) ([]*dns.DNSKEY, error) {
	zone = strings.ToLower(dns.Fqdn(zone))

	if keys, ok := s.zoneKeys[zone]; ok {
		return keys, nil
	}

	response, err := s.query(ctx, zone, dns.TypeDNSKEY)
	if err != nil {
		return nil, err
	}

	keys := typedRecords[*dns.DNSKEY](response.Answer)
	if len(keys) == 0 {
		return nil, fmt.Errorf("zone %s has no DNSKEY records", log.EscapeInput(zone))
	}

	trusted, err := s.trustedKeys(ctx, zone, keys)
	if err != nil {
		return nil, err
	}

	rrset := make([]dns.RR, len(keys))
	for i, key := range keys {
		rrset[i] = key
	}

	sigs := findMatchingRRSIGs(extractRRSIGs(response.Answer), zone, dns.TypeDNSKEY)

	for _, sig := range sigs {
		if s.validator.checkTimeWindow(sig) != nil {
			continue
		}

		key := findMatchingDNSKEY(trusted, sig.KeyTag, sig.Algorithm)
		if key == nil {
			continue
		}

		if sig.Verify(key, rrset) == nil {
			s.zoneKeys[zone] = keys

			return keys, nil
		}
	}

	return nil, fmt.Errorf("DNSKEY RRset of %s could not be verified against a trusted key", log.EscapeInput(zone))
}

// trustedKeys filters the zone's DNSKEYs down to those anchored in the chain
// of trust: matched against the configured anchors for the root, or against a
// validated DS record of the parent for every other zone
func (s *chainSession) trustedKeys(ctx context.Context, zone string, keys []*dns.DNSKEY) ([]*dns.DNSKEY, error) {
	if zone == "." {
		var trusted []*dns.DNSKEY

		for _, key := range keys {
			for _, anchor := range s.validator.anchors {
				if key.KeyTag() == anchor.KeyTag() &&
					key.Algorithm == anchor.Algorithm &&
					key.PublicKey == anchor.PublicKey {
					trusted = append(trusted, key)
				}
			}
		}

		if len(trusted) == 0 {
			return nil, errors.New("root DNSKEY RRset does not contain a configured trust anchor")
		}

		return trusted, nil
	}

	dsSet, err := s.validatedDSRecords(ctx, zone)
	if err != nil {
		return nil, err
	}

	var trusted []*dns.DNSKEY

	for _, key := range keys {
		for _, ds := range dsSet {
			if key.KeyTag() != ds.KeyTag || key.Algorithm != ds.Algorithm {
				continue
			}

			computed := key.ToDS(ds.DigestType)
			if computed != nil && strings.EqualFold(computed.Digest, ds.Digest) {
				trusted = append(trusted, key)
			}
		}
	}

	if len(trusted) == 0 {
		return nil, fmt.Errorf("no DNSKEY of %s matches a validated DS record", log.EscapeInput(zone))
	}

	return trusted, nil
}

// validatedDSRecords fetches the DS RRset of the zone and verifies its
// signature with the parent zone's validated keys. A delegation without DS
// records breaks the chain; per policy this is a validation failure, not a
// downgrade to "insecure".
func (s *chainSession) validatedDSRecords(ctx context.Context, zone string) ([]*dns.DS, error) {
	response, err := s.query(ctx, zone, dns.TypeDS)
	if err != nil {
		return nil, err
	}

	dsSet := typedRecords[*dns.DS](response.Answer)
	if len(dsSet) == 0 {
		return nil, fmt.Errorf("no DS records for %s: delegation is not signed", log.EscapeInput(zone))
	}

	sigs := findMatchingRRSIGs(extractRRSIGs(response.Answer), zone, dns.TypeDS)
	if len(sigs) == 0 {
		return nil, fmt.Errorf("DS RRset of %s is unsigned", log.EscapeInput(zone))
	}

	rrset := make([]dns.RR, len(dsSet))
	for i, ds := range dsSet {
		rrset[i] = ds
	}

	var lastErr error

	for _, sig := range sigs {
		// DS records live in the parent zone, so the signer must be a real
		// ancestor of the delegated zone
		if sig.SignerName == dns.Fqdn(zone) || !dns.IsSubDomain(sig.SignerName, zone) {
			continue
		}

		if err := s.validator.checkTimeWindow(sig); err != nil {
			lastErr = err

			continue
		}

		keys, err := s.validatedZoneKeys(ctx, sig.SignerName)
		if err != nil {
			lastErr = err

			continue
		}

		key := findMatchingDNSKEY(keys, sig.KeyTag, sig.Algorithm)
		if key == nil {
			continue
		}

		if err := sig.Verify(key, rrset); err != nil {
			lastErr = err

			continue
		}

		return dsSet, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("DS RRset of %s could not be verified", log.EscapeInput(zone))
	}

	return nil, lastErr
}

func (s *chainSession) query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	if s.budget <= 0 {
		return nil, fmt.Errorf("upstream query budget exhausted (max %d per validation)", s.validator.maxQueries)
	}
	s.budget--

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.SetEdns0(ednsUDPSize, true)

	response, err := s.validator.exchanger.Exchange(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("upstream query for %s %s failed: %w",
			log.EscapeInput(name), dns.TypeToString[qtype], err)
	}

	return response, nil
}

// checkTimeWindow validates the RRSIG inception/expiration against the current
// time with bounded clock skew tolerance
func (v *ChainValidator) checkTimeWindow(sig *dns.RRSIG) error {
	now := time.Now().Unix()
	tolerance := int64(v.clockSkew.Seconds())

	if now < int64(sig.Inception)-tolerance {
		return fmt.Errorf("signature not yet valid (inception %d)", sig.Inception)
	}

	if now > int64(sig.Expiration)+tolerance {
		return fmt.Errorf("signature expired (expiration %d)", sig.Expiration)
	}

	return nil
}

// rrsetKey uniquely identifies an RRset by owner name and type
type rrsetKey struct {
	name   string
	rrType uint16
}

// groupRRsets groups RRs by owner name and type, excluding RRSIGs.
// Per RFC 4035 every RRset must be validated separately.
func groupRRsets(rrs []dns.RR) map[rrsetKey][]dns.RR {
	rrsets := make(map[rrsetKey][]dns.RR)

	for _, rr := range rrs {
		if _, isSig := rr.(*dns.RRSIG); !isSig {
			key := rrsetKey{
				name:   strings.ToLower(dns.Fqdn(rr.Header().Name)),
				rrType: rr.Header().Rrtype,
			}
			rrsets[key] = append(rrsets[key], rr)
		}
	}

	return rrsets
}

func extractRRSIGs(rrs []dns.RR) []*dns.RRSIG {
	return typedRecords[*dns.RRSIG](rrs)
}

// findMatchingRRSIGs returns the RRSIGs whose owner name and covered type
// match the RRset
func findMatchingRRSIGs(sigs []*dns.RRSIG, ownerName string, rrType uint16) []*dns.RRSIG {
	ownerName = strings.ToLower(dns.Fqdn(ownerName))

	var matching []*dns.RRSIG

	for _, sig := range sigs {
		if sig.TypeCovered == rrType && strings.ToLower(dns.Fqdn(sig.Header().Name)) == ownerName {
			matching = append(matching, sig)
		}
	}

	return matching
}

// findMatchingDNSKEY finds the DNSKEY matching key tag and algorithm.
// RFC 4034 §2.1.2: the protocol field MUST be 3.
func findMatchingDNSKEY(keys []*dns.DNSKEY, keyTag uint16, algorithm uint8) *dns.DNSKEY {
	for _, key := range keys {
		if key.Protocol != dnskeyProtocolValue {
			continue
		}

		if key.KeyTag() == keyTag && key.Algorithm == algorithm {
			return key
		}
	}

	return nil
}

func typedRecords[T dns.RR](rrs []dns.RR) []T {
	var result []T

	for _, rr := range rrs {
		if typed, ok := rr.(T); ok {
			result = append(result, typed)
		}
	}

	return result
}
