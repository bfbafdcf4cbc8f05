// Package helpertest contains test utilities shared between suites.
package helpertest

import (
	"context"
	"crypto"
	"fmt"
	"sync"
	"time"

	"github.com/miekg/dns"
)

const (
	keyBits   = 256
	recordTTL = 300
)

// SignedZone is a minimal DNSSEC-signed zone for tests: one KSK signing
// everything in the zone
type SignedZone struct {
	Name string
	KSK  *dns.DNSKEY

	signer crypto.Signer
}

// NewSignedZone generates a zone with a fresh ECDSA P-256 KSK
func NewSignedZone(name string) *SignedZone {
	name = dns.Fqdn(name)

	ksk := &dns.DNSKEY{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypeDNSKEY,
			Class:  dns.ClassINET,
			Ttl:    recordTTL,
		},
		Flags:     dns.ZONE | dns.SEP,
		Protocol:  3,
		Algorithm: dns.ECDSAP256SHA256,
	}

	priv, err := ksk.Generate(keyBits)
	if err != nil {
		panic(err)
	}

	return &SignedZone{
		Name:   name,
		KSK:    ksk,
		signer: priv.(crypto.Signer),
	}
}

// TrustAnchor returns the KSK in zone file format, usable as a validator
// trust anchor
func (z *SignedZone) TrustAnchor() string {
	return z.KSK.String()
}

// Sign creates a valid RRSIG over the passed RRset
func (z *SignedZone) Sign(rrset []dns.RR) *dns.RRSIG {
	sig := &dns.RRSIG{
		Inception:  uint32(time.Now().Add(-time.Hour).Unix()),
		Expiration: uint32(time.Now().Add(time.Hour).Unix()),
		KeyTag:     z.KSK.KeyTag(),
		SignerName: z.Name,
		Algorithm:  z.KSK.Algorithm,
	}

	if err := sig.Sign(z.signer, rrset); err != nil {
		panic(err)
	}

	return sig
}

// SignExpired creates an RRSIG whose validity window lies in the past
func (z *SignedZone) SignExpired(rrset []dns.RR) *dns.RRSIG {
	sig := &dns.RRSIG{
		Inception:  uint32(time.Now().Add(-48 * time.Hour).Unix()),
		Expiration: uint32(time.Now().Add(-24 * time.Hour).Unix()),
		KeyTag:     z.KSK.KeyTag(),
		SignerName: z.Name,
		Algorithm:  z.KSK.Algorithm,
	}

	if err := sig.Sign(z.signer, rrset); err != nil {
		panic(err)
	}

	return sig
}

// DNSKEYResponse builds the signed DNSKEY answer of the zone
func (z *SignedZone) DNSKEYResponse() *dns.Msg {
	rrset := []dns.RR{z.KSK}

	msg := new(dns.Msg)
	msg.SetQuestion(z.Name, dns.TypeDNSKEY)
	msg.Response = true
	msg.Answer = append(rrset, z.Sign(rrset))

	return msg
}

// DS returns the DS record of the zone for use in its parent
func (z *SignedZone) DS() *dns.DS {
	ds := z.KSK.ToDS(dns.SHA256)
	ds.Hdr.Ttl = recordTTL

	return ds
}

// DSResponse builds the child's DS answer, signed by this (the parent) zone
func (z *SignedZone) DSResponse(child *SignedZone) *dns.Msg {
	rrset := []dns.RR{child.DS()}

	msg := new(dns.Msg)
	msg.SetQuestion(child.Name, dns.TypeDS)
	msg.Response = true
	msg.Answer = append(rrset, z.Sign(rrset))

	return msg
}

// TXTRecord builds one TXT resource record owned by the passed name
func TXTRecord(name string, content ...string) *dns.TXT {
	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(name),
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    recordTTL,
		},
		Txt: content,
	}
}

// TXTResponse builds a signed TXT answer for the passed owner name
func (z *SignedZone) TXTResponse(name string, contents ...string) *dns.Msg {
	name = dns.Fqdn(name)

	rrset := make([]dns.RR, 0, len(contents))
	for _, content := range contents {
		rrset = append(rrset, TXTRecord(name, content))
	}

	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeTXT)
	msg.Response = true
	msg.Answer = append(rrset, z.Sign(rrset))

	return msg
}

// MockExchanger answers DNS queries from a fixed response table and counts
// every received question
type MockExchanger struct {
	mu        sync.Mutex
	responses map[string]*dns.Msg
	calls     []dns.Question

	// Err, if set, is returned for every exchange
	Err error
}

// NewMockExchanger creates an empty exchanger
func NewMockExchanger() *MockExchanger {
	return &MockExchanger{responses: make(map[string]*dns.Msg)}
}

func exchangeKey(name string, qtype uint16) string {
	return fmt.Sprintf("%s/%s", dns.Fqdn(name), dns.TypeToString[qtype])
}

// On registers the response for one question
func (m *MockExchanger) On(name string, qtype uint16, response *dns.Msg) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[exchangeKey(name, qtype)] = response
}

// Exchange implements resolver.Exchanger
func (m *MockExchanger) Exchange(_ context.Context, msg *dns.Msg) (*dns.Msg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	question := msg.Question[0]
	m.calls = append(m.calls, question)

	if m.Err != nil {
		return nil, m.Err
	}

	if response, ok := m.responses[exchangeKey(question.Name, question.Qtype)]; ok {
		result := response.Copy()
		result.SetRcode(msg, response.Rcode)
		result.Answer = response.Answer

		return result, nil
	}

	// unknown name: NXDOMAIN
	response := new(dns.Msg)
	response.SetRcode(msg, dns.RcodeNameError)

	return response, nil
}

// Calls returns all received questions
func (m *MockExchanger) Calls() []dns.Question {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]dns.Question(nil), m.calls...)
}

// CallCount returns the number of queries received for the passed question
func (m *MockExchanger) CallCount(name string, qtype uint16) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0

	for _, q := range m.calls {
		if dns.Fqdn(name) == q.Name && q.Qtype == qtype {
			count++
		}
	}

	return count
}
