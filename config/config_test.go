package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var configPath string

	writeConfig := func(content string) {
		GinkgoHelper()
		Expect(os.WriteFile(configPath, []byte(content), 0o600)).Should(Succeed())
	}

	BeforeEach(func() {
		configPath = filepath.Join(GinkgoT().TempDir(), "config.yml")
	})

	Describe("NewConfig", func() {
		It("applies all defaults", func() {
			cfg := NewConfig()

			Expect(cfg.Upstream).Should(Equal("1.1.1.1:53"))
			Expect(cfg.HTTPPort).Should(Equal(uint16(4000)))
			Expect(cfg.Lookup.EnableRDAPCheck).Should(BeFalse())
			Expect(cfg.Lookup.RDAPOnlyConfirms).Should(BeFalse())
			Expect(cfg.Lookup.CacheTTL.ToDuration()).Should(Equal(300 * time.Second))
			Expect(cfg.Lookup.Timeout.ToDuration()).Should(Equal(5 * time.Second))
		})
	})

	Describe("LoadConfig", func() {
		When("the file does not exist", func() {
			It("falls back to defaults if not mandatory", func() {
				cfg, err := LoadConfig(configPath, false)

				Expect(err).Should(Succeed())
				Expect(cfg.Upstream).Should(Equal("1.1.1.1:53"))
			})

			It("fails if mandatory", func() {
				_, err := LoadConfig(configPath, true)

				Expect(err).Should(HaveOccurred())
			})
		})

		When("the file is valid", func() {
			It("overrides the defaults", func() {
				writeConfig(`
upstream: 9.9.9.9:53
httpPort: 8080
lookup:
  enableRdapCheck: true
  cacheTTL: 60
  timeout: 2s
`)

				cfg, err := LoadConfig(configPath, true)

				Expect(err).Should(Succeed())
				Expect(cfg.Upstream).Should(Equal("9.9.9.9:53"))
				Expect(cfg.HTTPPort).Should(Equal(uint16(8080)))
				Expect(cfg.Lookup.EnableRDAPCheck).Should(BeTrue())
				Expect(cfg.Lookup.CacheTTL.ToDuration()).Should(Equal(time.Minute))
				Expect(cfg.Lookup.Timeout.ToDuration()).Should(Equal(2 * time.Second))
			})
		})

		When("the file contains an unknown key", func() {
			It("fails", func() {
				writeConfig("upstraem: 9.9.9.9:53\n")

				_, err := LoadConfig(configPath, true)

				Expect(err).Should(HaveOccurred())
				Expect(err.Error()).Should(ContainSubstring("wrong file structure"))
			})
		})

		When("the upstream is not host:port", func() {
			It("fails validation", func() {
				writeConfig("upstream: 1.1.1.1\n")

				_, err := LoadConfig(configPath, true)

				Expect(err).Should(HaveOccurred())
				Expect(err.Error()).Should(ContainSubstring("upstream must be host:port"))
			})
		})

		When("the lookup timeout is zero", func() {
			It("fails validation", func() {
				writeConfig("lookup:\n  timeout: 0\n")

				_, err := LoadConfig(configPath, true)

				Expect(err).Should(HaveOccurred())
				Expect(err.Error()).Should(ContainSubstring("timeout must be above zero"))
			})
		})
	})
})
