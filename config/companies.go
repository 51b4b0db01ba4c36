package config

import (
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Company is one registered group company. Documents are assigned to a
// company when its tax id (or tax-id root) appears in the extracted
// text; the tax ids double as password candidates for protected PDFs.
type Company struct {
	TaxID  string `yaml:"taxId"` // digits only, 14 chars
	Name   string `yaml:"name"`
	Code   string `yaml:"code"` // short code used in reports
	Sector string `yaml:"sector"`
}

var (
	companiesOnce sync.Once
	companies     []Company
)

// Built-in registry, overridable via FISCALFLOW_COMPANIES (yaml list).
var defaultCompanies = []Company{
	{TaxID: "38323227000140", Name: "CSC GESTAO INTEGRADA S/A", Code: "CSC", Sector: "ADM"},
	{TaxID: "01766744000184", Name: "RBC REDE BRASILEIRA DE COMUNICACAO LTDA", Code: "RBC", Sector: "OPS"},
	{TaxID: "33960847000177", Name: "ATIVE TELECOMUNICACOES S.A.", Code: "ATV", Sector: "OPS"},
	{TaxID: "38323245000122", Name: "EXATA TELCO S.A.", Code: "EXT", Sector: "OPS"},
	{TaxID: "22442682000125", Name: "DIVCABO SERVICOS EM TELECOM EIRELI", Code: "DVC", Sector: "OPS"},
}

// GetCompanies returns the company registry.
func GetCompanies() []Company {
	companiesOnce.Do(func() {
		companies = defaultCompanies

		path := envOr("FISCALFLOW_COMPANIES", "")
		if path == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: can't read company registry %s: %v", path, err)
			return
		}
		var loaded []Company
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			log.Printf("Warning: can't parse company registry %s: %v", path, err)
			return
		}
		if len(loaded) > 0 {
			companies = loaded
		}
	})
	return companies
}

// PasswordCandidates derives the candidate passwords tried on protected
// PDFs: each registered tax id in full plus its 4, 5 and 8-digit
// prefixes (the 8-digit root is a common issuer choice).
func PasswordCandidates() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, c := range GetCompanies() {
		id := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, c.TaxID)
		add(id)
		for _, n := range []int{4, 5, 8} {
			if len(id) >= n {
				add(id[:n])
			}
		}
	}
	return out
}

// FindCompany scans text for a registered company tax-id root and
// returns the match, or nil.
func FindCompany(text string) *Company {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return ' '
	}, text)
	compact := strings.ReplaceAll(digits, " ", "")

	list := GetCompanies()
	for i := range list {
		c := &list[i]
		if len(c.TaxID) < 8 {
			continue
		}
		if strings.Contains(compact, c.TaxID) || strings.Contains(compact, c.TaxID[:8]) {
			return c
		}
	}
	return nil
}
