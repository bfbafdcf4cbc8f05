package util

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// AnswerToString creates a short representation of an answer section for logs
func AnswerToString(answer []dns.RR) string {
	answers := make([]string, len(answer))

	for i, record := range answer {
		switch v := record.(type) {
		case *dns.TXT:
			answers[i] = fmt.Sprintf("TXT (%d strings)", len(v.Txt))
		case *dns.RRSIG:
			answers[i] = fmt.Sprintf("RRSIG (covers %s)", dns.TypeToString[v.TypeCovered])
		default:
			answers[i] = dns.TypeToString[record.Header().Rrtype]
		}
	}

	return strings.Join(answers, ", ")
}
