package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/kingrea/market-lattice/internal/agent"
	"github.com/kingrea/market-lattice/internal/pipeline"
)

const notAvailable = "N/A"

type doc struct {
	strings.Builder
}

func (d *doc) line(format string, args ...any) {
	fmt.Fprintf(d, format, args...)
	d.WriteString("\n")
}

func (d *doc) blank() { d.WriteString("\n") }

func (d *doc) header(title, category, region string) {
	d.line("# %s", title)
	d.blank()
	d.line("**Category:** %s", category)
	if region != "" {
		d.line("**Region:** %s", region)
	}
}

func (d *doc) bullets(title string, items []string) {
	if len(items) == 0 {
		return
	}
	d.line("**%s:**", title)
	for _, item := range items {
		d.line("- %s", strings.TrimSpace(item))
	}
	d.blank()
}

func (d *doc) sources(items []string) {
	if len(items) == 0 {
		return
	}
	d.line("## Sources")
	d.blank()
	for i, src := range items {
		d.line("%d. %s", i+1, src)
	}
	d.blank()
}

func (d *doc) bytes() []byte { return []byte(d.String()) }

// VendorReport renders the vendor discovery table and details.
func VendorReport(list *agent.VendorList, category, region string) []byte {
	var d doc
	d.header("Vendor Discovery Report", category, region)
	var vendors []agent.Vendor
	if list != nil {
		vendors = list.Vendors
	}
	d.line("**Total Vendors Found:** %d", len(vendors))
	d.blank()
	d.line("## Vendor List")
	d.blank()
	d.line("| # | Company Name | Website | Contact | Regions Served |")
	d.line("|---|-------------|---------|---------|----------------|")
	for i, v := range vendors {
		d.line("| %d | %s | %s | %s | %s |", i+1, cell(v.Name), cell(v.Website), cell(firstEmail(v)), cell(regions(v.CountriesServed)))
	}
	d.blank()
	d.line("## Vendor Details")
	d.blank()
	for i, v := range vendors {
		d.line("### %d. %s", i+1, orDefault(v.Name, "Unknown"))
		d.blank()
		if v.Description != "" {
			d.line("**Description:** %s", v.Description)
			d.blank()
		}
		if v.Justification != "" {
			d.line("**Why selected:** %s", v.Justification)
			d.blank()
		}
		for _, e := range v.ContactEmails {
			d.line("- Email: %s", strings.TrimSpace(e.Email+" "+parenthesize(e.Description)))
		}
		for _, p := range v.PhoneNumbers {
			d.line("- Phone: %s", strings.TrimSpace(p.Number+" "+parenthesize(p.Description)))
		}
		d.line("---")
		d.blank()
	}
	return d.bytes()
}

// PESTLEReport renders the six-factor analysis.
func PESTLEReport(a *agent.PESTLEAnalysis, category, region string) []byte {
	var d doc
	d.header("PESTLE Analysis", category, region)
	d.blank()
	if a == nil {
		d.line("_No analysis produced._")
		return d.bytes()
	}
	if a.ExecutiveSummary != "" {
		d.line("## Executive Summary")
		d.blank()
		d.line("%s", a.ExecutiveSummary)
		d.blank()
	}
	for _, s := range a.Sections() {
		d.line("## %s Factors", s.Name)
		d.blank()
		if s.Section.Summary != "" {
			d.line("%s", s.Section.Summary)
			d.blank()
		}
		d.bullets("Factors", s.Section.Points)
		if len(s.Section.Indicators) > 0 {
			d.line("**Indicators:**")
			for _, key := range sortedKeys(s.Section.Indicators) {
				d.line("- %s: %s", key, s.Section.Indicators[key])
			}
			d.blank()
		}
		d.bullets("Key Insights", s.Section.KeyInsights)
	}
	d.sources(a.Sources)
	return d.bytes()
}

// PortersReport renders the five forces assessment.
func PortersReport(a *agent.PortersAnalysis, category, region string) []byte {
	var d doc
	d.header("Porter's Five Forces Analysis", category, region)
	d.blank()
	if a == nil {
		d.line("_No analysis produced._")
		return d.bytes()
	}
	d.line("| Force | Level |")
	d.line("|-------|-------|")
	for _, f := range a.Forces() {
		d.line("| %s | %s |", f.Name, cell(f.Force.Level))
	}
	d.blank()
	for _, f := range a.Forces() {
		d.line("## %s", f.Name)
		d.blank()
		d.bullets("Analysis", f.Force.Points)
		d.bullets("Key Insights", f.Force.KeyInsights)
	}
	if a.OverallAssessment != "" {
		d.line("## Overall Assessment")
		d.blank()
		d.line("%s", a.OverallAssessment)
		d.blank()
	}
	d.sources(a.Sources)
	return d.bytes()
}

// SWOTReport renders every successful deep dive and lists the failures.
func SWOTReport(batch *pipeline.DeepDiveBatch, category, region string) []byte {
	var d doc
	d.header("SWOT Analyses", category, region)
	if batch == nil {
		d.blank()
		d.line("_No deep dives were run._")
		return d.bytes()
	}
	d.line("**Vendors Analyzed:** %d of %d", batch.Succeeded(), batch.Total())
	if batch.Cached > 0 {
		d.line("**Served From Cache:** %d", batch.Cached)
	}
	d.blank()
	for _, s := range batch.Analyses {
		d.line("## %s", orDefault(s.VendorName, "Unknown vendor"))
		d.blank()
		if s.VendorWebsite != "" {
			d.line("**Website:** %s", s.VendorWebsite)
			d.blank()
		}
		if s.Summary != "" {
			d.line("%s", s.Summary)
			d.blank()
		}
		for _, q := range []struct {
			name string
			quad agent.Quadrant
		}{
			{"Strengths", s.Strengths},
			{"Weaknesses", s.Weaknesses},
			{"Opportunities", s.Opportunities},
			{"Threats", s.Threats},
		} {
			d.line("### %s", q.name)
			if q.quad.Confidence != "" {
				d.line("_Confidence: %s_", q.quad.Confidence)
			}
			d.blank()
			for _, p := range q.quad.Points {
				d.line("- %s", p)
			}
			d.blank()
			d.bullets("Key Insights", q.quad.KeyInsights)
		}
		d.sources(s.Sources)
	}
	if len(batch.Failures) > 0 {
		d.line("## Not Analyzed")
		d.blank()
		for _, f := range batch.Failures {
			d.line("- %s: %v", orDefault(f.Vendor, fmt.Sprintf("item %d", f.Index)), f.Err)
		}
		d.blank()
	}
	return d.bytes()
}

// RFPReport renders the questionnaire grouped by section.
func RFPReport(q *agent.QuestionSet, category, region string) []byte {
	var d doc
	d.header("RFP Questionnaire", category, region)
	if q == nil {
		d.blank()
		d.line("_No questionnaire produced._")
		return d.bytes()
	}
	d.line("**Total Questions:** %d", q.Count())
	d.blank()
	n := 0
	for _, s := range q.Sections {
		d.line("## %s", s.Name)
		d.blank()
		if s.Description != "" {
			d.line("%s", s.Description)
			d.blank()
		}
		for _, question := range s.Questions {
			n++
			d.line("%d. %s", n, question.Prompt)
			if question.Rationale != "" {
				d.line("   - _Rationale:_ %s", question.Rationale)
			}
		}
		d.blank()
	}
	return d.bytes()
}

// SummaryReport renders the stage outcome table for a run.
func SummaryReport(run *pipeline.Run, result *pipeline.Result) []byte {
	var d doc
	d.header("Market Research Run", run.Category(), run.Region())
	d.line("**Run:** %s", run.ID())
	d.line("**Started:** %s", run.CreatedAt().UTC().Format(time.RFC3339))
	if result != nil {
		d.line("**State:** %s", result.State)
		if result.Degraded() {
			d.line("**Degraded:** %d of %d deep dives succeeded", result.DeepDive.Succeeded(), result.DeepDive.Total())
		}
	}
	d.blank()
	d.line("| Stage | Status | Duration | Detail |")
	d.line("|-------|--------|----------|--------|")
	for _, o := range run.Outcomes() {
		status := "ok"
		detail := ""
		if !o.OK {
			status = "failed"
		}
		if o.Err != nil {
			detail = cell(o.Err.Error())
		}
		d.line("| %s | %s | %s | %s |", o.Stage, status, o.Duration().Round(time.Millisecond), detail)
	}
	d.blank()
	return d.bytes()
}

// CompleteReport concatenates the stage reports under one title.
func CompleteReport(category, region string, sections ...[]byte) []byte {
	var d doc
	d.header("Complete Market Analysis", category, region)
	d.blank()
	for _, s := range sections {
		if len(s) == 0 {
			continue
		}
		d.line("---")
		d.blank()
		// Demote stage titles so the combined report keeps one H1.
		for _, line := range strings.Split(strings.TrimRight(string(s), "\n"), "\n") {
			if strings.HasPrefix(line, "#") {
				line = "#" + line
			}
			d.line("%s", line)
		}
		d.blank()
	}
	return d.bytes()
}

func firstEmail(v agent.Vendor) string {
	if len(v.ContactEmails) == 0 {
		return ""
	}
	return v.ContactEmails[0].Email
}

func regions(countries []string) string {
	if len(countries) == 0 {
		return ""
	}
	if len(countries) <= 3 {
		return strings.Join(countries, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(countries[:3], ", "), len(countries)-3)
}

func cell(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\n", " "))
	if value == "" {
		return notAvailable
	}
	return strings.ReplaceAll(value, "|", "\\|")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func parenthesize(value string) string {
	if value == "" {
		return ""
	}
	return "(" + value + ")"
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
