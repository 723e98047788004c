package agent

import (
	"strings"
	"time"

	"github.com/kingrea/market-lattice/internal/research"
)

// VendorQuery asks for the top Count vendors in Category.
type VendorQuery struct {
	Category string `json:"category"`
	Count    int    `json:"n"`
	Region   string `json:"country_or_region,omitempty"`
}

// ContactEmail is a published vendor address.
type ContactEmail struct {
	Email       string `json:"email"`
	Description string `json:"description,omitempty"`
}

// PhoneNumber is a published vendor number.
type PhoneNumber struct {
	Number      string `json:"number"`
	Description string `json:"description,omitempty"`
}

// Vendor is one discovered supplier.
type Vendor struct {
	Name            string         `json:"name"`
	Website         string         `json:"website"`
	Description     string         `json:"description"`
	Justification   string         `json:"justification"`
	ContactEmails   []ContactEmail `json:"contact_emails,omitempty"`
	PhoneNumbers    []PhoneNumber  `json:"phone_numbers,omitempty"`
	CountriesServed []string       `json:"countries_served,omitempty"`
}

// VendorList is the vendor discovery output.
type VendorList struct {
	Vendors []Vendor `json:"vendor_list"`
}

// Empty reports whether discovery found nothing usable.
func (l *VendorList) Empty() bool {
	return l == nil || len(l.Vendors) == 0
}

// FactorQuery scopes a market factor analysis.
type FactorQuery struct {
	Category string `json:"category"`
	Region   string `json:"country_or_region,omitempty"`
}

// FactorSection is one dimension of a factor analysis.
type FactorSection struct {
	Summary     string            `json:"summary,omitempty"`
	Points      []string          `json:"points,omitempty"`
	Indicators  map[string]string `json:"indicators,omitempty"`
	KeyInsights []string          `json:"key_insights,omitempty"`
}

func (s FactorSection) empty() bool {
	return strings.TrimSpace(s.Summary) == "" && len(s.Points) == 0 && len(s.KeyInsights) == 0 && len(s.Indicators) == 0
}

// PESTLEAnalysis covers political, economic, social, technological, legal
// and environmental factors.
type PESTLEAnalysis struct {
	Category         string        `json:"category"`
	Region           string        `json:"region,omitempty"`
	Political        FactorSection `json:"political"`
	Economic         FactorSection `json:"economic"`
	Social           FactorSection `json:"social"`
	Technological    FactorSection `json:"technological"`
	Legal            FactorSection `json:"legal"`
	Environmental    FactorSection `json:"environmental"`
	ExecutiveSummary string        `json:"executive_summary,omitempty"`
	Sources          []string      `json:"sources,omitempty"`
}

// Sections returns the six factors in PESTLE order.
func (a *PESTLEAnalysis) Sections() []NamedSection {
	return []NamedSection{
		{"Political", a.Political},
		{"Economic", a.Economic},
		{"Social", a.Social},
		{"Technological", a.Technological},
		{"Legal", a.Legal},
		{"Environmental", a.Environmental},
	}
}

// Empty reports whether the analysis carries no content at all.
func (a *PESTLEAnalysis) Empty() bool {
	if a == nil {
		return true
	}
	for _, s := range a.Sections() {
		if !s.Section.empty() {
			return false
		}
	}
	return strings.TrimSpace(a.ExecutiveSummary) == ""
}

// NamedSection pairs a section with its heading.
type NamedSection struct {
	Name    string
	Section FactorSection
}

// Force is one of Porter's five forces.
type Force struct {
	Level       string   `json:"level,omitempty"`
	Points      []string `json:"points,omitempty"`
	KeyInsights []string `json:"key_insights,omitempty"`
}

func (f Force) empty() bool {
	return strings.TrimSpace(f.Level) == "" && len(f.Points) == 0 && len(f.KeyInsights) == 0
}

// PortersAnalysis is a Five Forces assessment of the category.
type PortersAnalysis struct {
	Category          string   `json:"category"`
	Region            string   `json:"region,omitempty"`
	NewEntrants       Force    `json:"threat_of_new_entrants"`
	SupplierPower     Force    `json:"bargaining_power_suppliers"`
	BuyerPower        Force    `json:"bargaining_power_buyers"`
	Substitutes       Force    `json:"threat_of_substitutes"`
	Rivalry           Force    `json:"competitive_rivalry"`
	OverallAssessment string   `json:"overall_assessment,omitempty"`
	Sources           []string `json:"sources,omitempty"`
}

// Forces returns the five forces in canonical order.
func (a *PortersAnalysis) Forces() []NamedForce {
	return []NamedForce{
		{"Threat of New Entrants", a.NewEntrants},
		{"Bargaining Power of Suppliers", a.SupplierPower},
		{"Bargaining Power of Buyers", a.BuyerPower},
		{"Threat of Substitutes", a.Substitutes},
		{"Competitive Rivalry", a.Rivalry},
	}
}

// NamedForce pairs a force with its heading.
type NamedForce struct {
	Name  string
	Force Force
}

// Empty reports whether the analysis carries no content at all.
func (a *PortersAnalysis) Empty() bool {
	if a == nil {
		return true
	}
	for _, f := range a.Forces() {
		if !f.Force.empty() {
			return false
		}
	}
	return strings.TrimSpace(a.OverallAssessment) == ""
}

// DeepDiveQuery asks for a SWOT assessment of one vendor.
type DeepDiveQuery struct {
	Vendor   Vendor          `json:"vendor"`
	Category string          `json:"category"`
	Region   string          `json:"country_or_region,omitempty"`
	Evidence []research.Page `json:"evidence,omitempty"`
}

// Quadrant is one SWOT quadrant.
type Quadrant struct {
	Points      []string `json:"points,omitempty"`
	KeyInsights []string `json:"key_insights,omitempty"`
	Confidence  string   `json:"confidence_level,omitempty"`
}

// SWOTAnalysis is the deep-dive output for one vendor.
type SWOTAnalysis struct {
	VendorName    string   `json:"vendor_name"`
	VendorWebsite string   `json:"vendor_website,omitempty"`
	Strengths     Quadrant `json:"strengths"`
	Weaknesses    Quadrant `json:"weaknesses"`
	Opportunities Quadrant `json:"opportunities"`
	Threats       Quadrant `json:"threats"`
	Summary       string   `json:"summary,omitempty"`
	Sources       []string `json:"sources,omitempty"`
}

// SynthesisQuery carries every prior stage output into the questionnaire
// step.
type SynthesisQuery struct {
	Category      string           `json:"category"`
	Region        string           `json:"region,omitempty"`
	QuestionCount int              `json:"question_count"`
	Vendors       []Vendor         `json:"vendor_list"`
	PESTLE        *PESTLEAnalysis  `json:"pestle_analysis,omitempty"`
	Porters       *PortersAnalysis `json:"porters_analysis,omitempty"`
	SWOT          []SWOTAnalysis   `json:"swot_analyses"`
}

// Question is one RFP question.
type Question struct {
	Section            string   `json:"section"`
	Prompt             string   `json:"prompt"`
	Rationale          string   `json:"rationale,omitempty"`
	ReferencedInsights []string `json:"referenced_insights,omitempty"`
}

// Section groups related questions.
type Section struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// QuestionSet is the synthesized RFP questionnaire.
type QuestionSet struct {
	Category       string    `json:"category"`
	Region         string    `json:"region,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Sections       []Section `json:"sections"`
	TotalQuestions int       `json:"total_questions"`
}

// Count returns the number of questions across all sections.
func (q *QuestionSet) Count() int {
	if q == nil {
		return 0
	}
	n := 0
	for _, s := range q.Sections {
		n += len(s.Questions)
	}
	return n
}

// Empty reports whether the set has no questions.
func (q *QuestionSet) Empty() bool {
	return q.Count() == 0
}
