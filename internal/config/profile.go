package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile validation errors.
var (
	ErrMissingInstitutionCode     = errors.New("institution code is required")
	ErrInvalidCodePattern         = errors.New("code_patterns entry is not a valid regular expression")
	ErrNoRelationshipMarkers      = errors.New("relationships needs at least one conjunction and one disjunction")
	ErrInvalidDefaultRelationship = errors.New("relationships.default must be AND or OR")
	ErrAgreementMissingInput      = errors.New("agreement needs a url or a file")
	ErrAgreementMissingName       = errors.New("agreement name is required")
)

// Institution describes one side of an articulation agreement. Subject
// prefixes and code patterns are conventions observed on the target site,
// not verified ground truth.
type Institution struct {
	Code            string   `yaml:"code"`
	Name            string   `yaml:"name"`
	Aliases         []string `yaml:"aliases"`
	HeaderKeywords  []string `yaml:"header_keywords"`
	SubjectPrefixes []string `yaml:"subject_prefixes"`
	CodePatterns    []string `yaml:"code_patterns"`

	patterns []*regexp.Regexp
}

// Keywords returns every word that identifies this institution in a header.
func (i *Institution) Keywords() []string {
	out := make([]string, 0, len(i.HeaderKeywords)+len(i.Aliases)+1)
	if i.Name != "" {
		out = append(out, i.Name)
	}
	out = append(out, i.Aliases...)
	return append(out, i.HeaderKeywords...)
}

// MatchesCode reports whether a canonical course code looks like it belongs
// to this institution.
func (i *Institution) MatchesCode(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return false
	}
	subject := code
	if idx := strings.IndexByte(code, ' '); idx > 0 {
		subject = code[:idx]
	}
	for _, p := range i.SubjectPrefixes {
		if strings.EqualFold(p, subject) {
			return true
		}
	}
	for _, re := range i.patterns {
		if re.MatchString(code) {
			return true
		}
	}
	return false
}

func (i *Institution) compile() error {
	i.patterns = i.patterns[:0]
	for _, p := range i.CodePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidCodePattern, p)
		}
		i.patterns = append(i.patterns, re)
	}
	return nil
}

type Relationships struct {
	Conjunctions []string `yaml:"conjunctions"`
	Disjunctions []string `yaml:"disjunctions"`
	CommaMeansOr bool     `yaml:"comma_means_or"`
	Default      string   `yaml:"default"`
}

// Agreement is one page the sweeper extracts on every pass.
type Agreement struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	File string `yaml:"file"`
	Kind string `yaml:"kind"`
}

type Profile struct {
	Source                Institution   `yaml:"source"`
	Dest                  Institution   `yaml:"dest"`
	Relationships         Relationships `yaml:"relationships"`
	NoArticulationPhrases []string      `yaml:"no_articulation_phrases"`
	Agreements            []Agreement   `yaml:"agreements"`
}

// DefaultProfile carries the De Anza College to UC Berkeley conventions.
func DefaultProfile() *Profile {
	p := &Profile{
		Source: Institution{
			Code:           "DAC",
			Name:           "De Anza College",
			Aliases:        []string{"De Anza"},
			HeaderKeywords: []string{"college", "sending", "community"},
			SubjectPrefixes: []string{
				"ENGL", "HIST", "PSYC", "POLI", "BIOL", "PHYS", "CIS", "ESL",
				"ELEN", "EWRT", "READ", "SOC", "PHIL", "ANTH", "ARTS", "MUSI",
			},
			CodePatterns: []string{`^[A-Z]{2,} \d+[A-Z]{1,2}$`},
		},
		Dest: Institution{
			Code:           "UCB",
			Name:           "University of California, Berkeley",
			Aliases:        []string{"UC Berkeley", "Berkeley"},
			HeaderKeywords: []string{"university", "receiving"},
			SubjectPrefixes: []string{
				"COMPSCI", "ENGLISH", "ELENG", "EECS", "STAT", "PSYCH", "POLSCI",
				"HISTORY", "PHYSICS", "CHEM", "ASTRON", "BIOLOGY", "MCELLBI",
				"INTEGBI", "DATA", "ECON", "PHILOS", "SOCIOL", "ANTHRO",
			},
		},
		Relationships: Relationships{
			Conjunctions: []string{"and", "plus", "both", "all", "together", "with", "&"},
			Disjunctions: []string{"or", "either", "one of", "any of", "/"},
			CommaMeansOr: true,
			Default:      "OR",
		},
		NoArticulationPhrases: []string{
			"no course articulated",
			"not articulated",
			"no comparable course",
			"no articulation",
		},
	}
	// Patterns above are static and known to compile.
	_ = p.Validate()
	return p
}

// LoadProfile reads a YAML profile over DefaultProfile. Keys absent from the
// file keep their defaults; lists present in the file replace the defaults.
// An empty path returns the defaults.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile validation failed: %w", err)
	}
	return p, nil
}

func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Source.Code) == "" {
		return fmt.Errorf("%w: source", ErrMissingInstitutionCode)
	}
	if strings.TrimSpace(p.Dest.Code) == "" {
		return fmt.Errorf("%w: dest", ErrMissingInstitutionCode)
	}
	if err := p.Source.compile(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := p.Dest.compile(); err != nil {
		return fmt.Errorf("dest: %w", err)
	}

	if len(p.Relationships.Conjunctions) == 0 || len(p.Relationships.Disjunctions) == 0 {
		return ErrNoRelationshipMarkers
	}
	p.Relationships.Default = strings.ToUpper(strings.TrimSpace(p.Relationships.Default))
	if p.Relationships.Default == "" {
		p.Relationships.Default = "OR"
	}
	if p.Relationships.Default != "AND" && p.Relationships.Default != "OR" {
		return ErrInvalidDefaultRelationship
	}

	for i, a := range p.Agreements {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("%w: agreements[%d]", ErrAgreementMissingName, i)
		}
		if a.URL == "" && a.File == "" {
			return fmt.Errorf("%w: agreements[%d]", ErrAgreementMissingInput, i)
		}
	}
	return nil
}
