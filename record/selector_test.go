package record

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/domainsale/forsale/model"
)

func rawAnswer(contents ...string) *model.RawAnswer {
	answer := &model.RawAnswer{Authenticated: true}

	for _, content := range contents {
		answer.Records = append(answer.Records, model.TXTRecord{Content: content, TTL: 300})
	}

	return answer
}

var _ = Describe("Select", func() {
	When("the answer is nil", func() {
		It("returns no candidates", func() {
			Expect(Select(nil)).Should(BeEmpty())
		})
	})

	When("the answer contains no TXT records", func() {
		It("returns no candidates", func() {
			Expect(Select(rawAnswer())).Should(BeEmpty())
		})
	})

	When("records carry the version tag", func() {
		It("keeps them in answer order with the tag stripped", func() {
			candidates := Select(rawAnswer(
				VersionTag+`{"price":"USD:1"}`,
				"some unrelated verification token",
				VersionTag+`{"price":"USD:2"}`,
			))

			Expect(candidates).Should(HaveLen(2))
			Expect(string(candidates[0].Content)).Should(Equal(`{"price":"USD:1"}`))
			Expect(string(candidates[1].Content)).Should(Equal(`{"price":"USD:2"}`))
		})

		It("carries the record TTL", func() {
			answer := &model.RawAnswer{Records: []model.TXTRecord{
				{Content: VersionTag + "{}", TTL: 1234},
			}}

			candidates := Select(answer)

			Expect(candidates).Should(HaveLen(1))
			Expect(candidates[0].SourceTTL).Should(Equal(uint32(1234)))
		})
	})

	When("the tag differs in case or spacing", func() {
		It("skips the record", func() {
			candidates := Select(rawAnswer(
				"V=FORSALE1;{}",
				"v=forsale1;{}",
				" v=FORSALE1;{}",
				"v=FORSALE2;{}",
			))

			Expect(candidates).Should(BeEmpty())
		})
	})

	When("a record exceeds the size cap", func() {
		It("skips only the oversized record", func() {
			oversized := VersionTag + strings.Repeat("a", MaxRecordBytes)

			candidates := Select(rawAnswer(oversized, VersionTag+"{}"))

			Expect(candidates).Should(HaveLen(1))
			Expect(string(candidates[0].Content)).Should(Equal("{}"))
		})

		It("keeps a record of exactly the maximum size", func() {
			content := VersionTag + strings.Repeat("a", MaxRecordBytes-len(VersionTag))

			Expect(Select(rawAnswer(content))).Should(HaveLen(1))
		})
	})
})
