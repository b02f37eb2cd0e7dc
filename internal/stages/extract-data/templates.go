// internal/stages/extract-data/templates.go
package extractdata

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Extraction templates are keyed by classifier label. Each template pulls the
// fields its document type can carry; unparsable fields stay absent and flow
// downstream as missing-data signals.

var (
	gradeRe = regexp.MustCompile(`(?i)(?:gesamtnote|durchschnittsnote|overall grade|final grade|note|grade)\s*[:\-]?\s*(\d[.,]\d{1,2})`)
	ibPointsRe = regexp.MustCompile(`(?i)(\d{2})\s*(?:/\s*45|points|punkte)`)
	aLevelGradeRe = regexp.MustCompile(`(?i)grades?\s*[:\-]?\s*(A\*|[A-E])\b`)
	isoDateRe  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dmyDateRe  = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./](\d{4})\b`)
	yearRe     = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe    = regexp.MustCompile(`\+?\d[\d\s/\-]{7,}\d`)
	idNumberRe = regexp.MustCompile(`(?i)(?:candidate|student|matrikel|centre)[ \-]?(?:number|nummer|nr|no)\.?\s*[:\-]?\s*([A-Za-z0-9\-]+)`)
	durationYearsRe  = regexp.MustCompile(`(?i)(\d+(?:[.,]\d)?)\s*(?:years?|jahren?)`)
	durationMonthsRe = regexp.MustCompile(`(?i)(\d+)\s*(?:months?|monaten?)`)
)

// a-level letter grades mapped onto the German 1.0 (best) to 4.0 scale.
var aLevelGrades = map[string]float64{
	"A*": 1.0, "A": 1.3, "B": 2.0, "C": 2.7, "D": 3.3, "E": 4.0,
}

func extractTranscript(text string) map[string]interface{} {
	fields := map[string]interface{}{}

	if inst := findInstitution(text); inst != "" {
		fields["institution_name"] = inst
	}
	if grade, ok := parseGermanGrade(text); ok {
		fields["final_grade"] = grade
	}
	if date, ok := findDate(text); ok {
		fields["graduation_date"] = date
	}
	if id := firstGroup(idNumberRe, text); id != "" {
		fields["student_number"] = id
	}
	switch {
	case containsAny(text, "master of", "m.sc", "msc"):
		fields["degree_type"] = "Master"
	case containsAny(text, "bachelor", "b.sc", "bsc"):
		fields["degree_type"] = "Bachelor"
	}
	return fields
}

func extractQualification(text string) map[string]interface{} {
	fields := map[string]interface{}{}

	subtype := detectQualificationSubtype(text)
	if subtype != "" {
		fields["qualification_type"] = subtype
	}

	switch subtype {
	case "ib":
		if m := ibPointsRe.FindStringSubmatch(text); m != nil {
			points, _ := strconv.Atoi(m[1])
			if points >= 0 && points <= 45 {
				fields["total_points"] = points
				fields["overall_grade"] = normalizeIBPoints(points)
			}
		}
	case "a_levels":
		if m := aLevelGradeRe.FindStringSubmatch(strings.ToUpper(text)); m != nil {
			if grade, ok := aLevelGrades[m[1]]; ok {
				fields["letter_grade"] = m[1]
				fields["overall_grade"] = grade
			}
		}
	default:
		if grade, ok := parseGermanGrade(text); ok {
			fields["overall_grade"] = grade
		}
	}

	if year := yearRe.FindString(text); year != "" {
		y, _ := strconv.Atoi(year)
		fields["graduation_year"] = y
	}
	if inst := findInstitution(text); inst != "" {
		fields["school_name"] = inst
	}
	if id := firstGroup(idNumberRe, text); id != "" {
		fields["candidate_number"] = id
	}
	return fields
}

func extractWorkCertificate(text string) map[string]interface{} {
	fields := map[string]interface{}{}

	if inst := findCompany(text); inst != "" {
		fields["company_name"] = inst
	}
	if months, ok := parseDurationMonths(text); ok {
		fields["duration_months"] = months
	}
	if pos := findLabeledLine(text, "position", "as a", "als"); pos != "" {
		fields["position_title"] = pos
	}
	if date, ok := findDate(text); ok {
		fields["start_date"] = date
	}
	return fields
}

func extractCV(text string) map[string]interface{} {
	fields := map[string]interface{}{}

	if email := emailRe.FindString(text); email != "" {
		fields["email"] = email
	}
	if phone := phoneRe.FindString(text); phone != "" {
		fields["phone"] = strings.TrimSpace(phone)
	}
	if name := findLabeledLine(text, "name"); name != "" {
		fields["name"] = name
	}
	return fields
}

// extractGeneric is the best-effort path for "other" documents: whatever
// dates, years and institutions surface, all marked low-confidence upstream.
func extractGeneric(text string) map[string]interface{} {
	fields := map[string]interface{}{}

	if date, ok := findDate(text); ok {
		fields["dates"] = []string{date}
	}
	if inst := findInstitution(text); inst != "" {
		fields["institutions"] = []string{inst}
	}
	if grade, ok := parseGermanGrade(text); ok {
		fields["possible_grade"] = grade
	}
	return fields
}

// --- shared helpers ---

func detectQualificationSubtype(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "abitur") || strings.Contains(lower, "hochschulreife"):
		return "abitur"
	case strings.Contains(lower, "a-level") || strings.Contains(lower, "a level"):
		return "a_levels"
	case strings.Contains(lower, "baccalaureate") || strings.Contains(lower, "ib diploma"):
		return "ib"
	case strings.Contains(lower, "ausbildung") || strings.Contains(lower, "apprenticeship"):
		return "apprenticeship"
	}
	return ""
}

func parseGermanGrade(text string) (float64, bool) {
	m := gradeRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	grade, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || grade < 1.0 || grade > 6.0 {
		return 0, false
	}
	return grade, true
}

// normalizeIBPoints maps the 45-point IB scale onto the German grade scale,
// 42+ counting as 1.0 and 24 (the passing floor) as 4.0.
func normalizeIBPoints(points int) float64 {
	if points >= 42 {
		return 1.0
	}
	if points <= 24 {
		return 4.0
	}
	return 1.0 + 3.0*float64(42-points)/18.0
}

func findDate(text string) (string, bool) {
	if m := isoDateRe.FindString(text); m != "" {
		return m, true
	}
	if m := dmyDateRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), true
		}
	}
	return "", false
}

func parseDurationMonths(text string) (int, bool) {
	months := 0
	if m := durationYearsRe.FindStringSubmatch(text); m != nil {
		years, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err == nil {
			months += int(years * 12)
		}
	}
	if m := durationMonthsRe.FindStringSubmatch(text); m != nil {
		extra, err := strconv.Atoi(m[1])
		if err == nil {
			months += extra
		}
	}

	if months > 0 {
		return months, true
	}

	// Fall back to the span between the first two parseable dates.
	dates := isoDateRe.FindAllString(text, 2)
	if len(dates) == 2 {
		start, err1 := time.Parse("2006-01-02", dates[0])
		end, err2 := time.Parse("2006-01-02", dates[1])
		if err1 == nil && err2 == nil && end.After(start) {
			return int(end.Sub(start).Hours() / (24 * 30)), true
		}
	}
	return 0, false
}

func findInstitution(text string) string {
	return findLineContaining(text, "university", "universität", "hochschule", "school", "college", "gymnasium", "institut")
}

func findCompany(text string) string {
	return findLineContaining(text, "gmbh", "ag", "ltd", "inc", "company", "firma")
}

func findLineContaining(text string, keywords ...string) string {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

// findLabeledLine returns the value following "label:" on any line.
func findLabeledLine(text string, labels ...string) string {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, label := range labels {
			prefix := label + ":"
			if idx := strings.Index(lower, prefix); idx >= 0 {
				return strings.TrimSpace(line[idx+len(prefix):])
			}
		}
	}
	return ""
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func containsAny(text string, keywords ...string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
