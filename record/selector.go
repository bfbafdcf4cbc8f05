// Package record turns raw TXT answer content into a validated sale payload.
// Everything here runs over fully untrusted, attacker-controlled bytes.
package record

import (
	"strings"

	"github.com/domainsale/forsale/model"
)

const (
	// VersionTag is the exact, case-sensitive prefix a conformant record
	// must begin with
	VersionTag = "v=FORSALE1;"

	// MaxRecordBytes is the maximum total octet length of one record
	MaxRecordBytes = 255
)

// Select filters the answer's TXT strings down to candidate records: only
// strings starting with the exact version tag and not exceeding the size cap
// are retained, in DNS answer order. Select never fails; an empty result
// means "no sale signal", not an error. Picking a winner among multiple
// conformant records is the validator's concern, not selection's.
func Select(answer *model.RawAnswer) []model.CandidateRecord {
	if answer == nil {
		return nil
	}

	var candidates []model.CandidateRecord

	for _, txt := range answer.Records {
		if !strings.HasPrefix(txt.Content, VersionTag) {
			continue
		}

		if len(txt.Content) > MaxRecordBytes {
			continue
		}

		candidates = append(candidates, model.CandidateRecord{
			VersionTag: VersionTag,
			Content:    []byte(txt.Content[len(VersionTag):]),
			SourceTTL:  txt.TTL,
		})
	}

	return candidates
}
