// Package extract implements job-posting classification and field extraction
// for free-form channel messages.
//
// Everything here is pure: functions read text and return derived fields, no
// I/O. Each extractor is independent and best-effort — a field that cannot be
// found degrades to a documented default instead of an error. Callers are
// responsible for length truncation before storage.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultCompany is returned when no company pattern matches.
const DefaultCompany = "Unknown Company"

// DefaultLocation is returned when no location pattern matches and the caller
// supplied no hint.
const DefaultLocation = "Location not specified"

// jobKeywords classify a message as a job posting: any one of them appearing
// as a case-insensitive substring is sufficient.
var jobKeywords = []string{"hiring", "job", "position", "role", "vacancy", "opening"}

// categories maps a category name to its trigger keywords. Slice, not map:
// assigned categories must follow this fixed order.
var categories = []struct {
	name     string
	keywords []string
}{
	{"frontend", []string{"react", "vue", "angular", "javascript", "typescript", "frontend", "front-end", "web developer"}},
	{"backend", []string{"python", "java", "golang", "nodejs", "backend", "back-end", "ruby", "php"}},
	{"fullstack", []string{"full stack", "fullstack", "full-stack", "mern", "mean"}},
	{"mobile", []string{"ios", "android", "react native", "flutter", "mobile developer"}},
	{"devops", []string{"devops", "aws", "kubernetes", "docker", "ci/cd", "sre"}},
	{"data", []string{"data scientist", "machine learning", "ml", "ai", "data engineer", "big data"}},
	{"blockchain", []string{"blockchain", "web3", "smart contract", "solidity", "ethereum"}},
	{"security", []string{"security engineer", "penetration tester", "security analyst", "cybersecurity"}},
}

var (
	companyPattern  = regexp.MustCompile(`(?i)(?:at|@|company:?)\s*([A-Za-z0-9\s]+(?:Inc\.?|LLC|Ltd\.?|Limited|Corp\.?|Corporation)?)`)
	locationPattern = regexp.MustCompile(`(?i)(?:location:?|based in:?|remote|on-site|hybrid)\s*([A-Za-z0-9\s,]+)`)
	salaryPattern   = regexp.MustCompile(`(?i)(?:salary:?|compensation:?|pay:?)\s*([A-Za-z0-9\s\$\-,]+)`)

	nonSalaryChars = regexp.MustCompile(`[^\d\-\s]`)
	digitRun       = regexp.MustCompile(`\d+`)
)

// Fields is the extracted field set for a single message, with defaults
// already applied.
type Fields struct {
	Title      string
	Company    string
	Location   string
	Remote     bool
	SalaryMin  *float64
	SalaryMax  *float64
	Categories []string
}

// IsJobPosting reports whether text looks like a job posting. Empty text is
// never a posting.
func IsJobPosting(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range jobKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Extract runs every extractor over text and returns the combined field set.
// locationHint is used when no location pattern matches; pass "" for none.
func Extract(text, locationHint string) Fields {
	f := Fields{
		Title:      Title(text),
		Company:    DefaultCompany,
		Location:   DefaultLocation,
		Remote:     IsRemote(text),
		Categories: Categorize(text),
	}
	if company, ok := Company(text); ok {
		f.Company = company
	}
	switch location, ok := Location(text); {
	case ok:
		f.Location = location
	case locationHint != "":
		f.Location = locationHint
	}
	if phrase, ok := SalaryPhrase(text); ok {
		f.SalaryMin = SalaryMin(phrase)
		f.SalaryMax = SalaryMax(phrase)
	}
	return f
}

// Title returns the first line containing a job keyword, falling back to the
// first line of the message.
func Title(text string) string {
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range jobKeywords {
			if strings.Contains(lower, kw) {
				return line
			}
		}
	}
	return lines[0]
}

// Company returns the first company pattern match.
func Company(text string) (string, bool) {
	m := companyPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Location returns the first location pattern match.
func Location(text string) (string, bool) {
	m := locationPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SalaryPhrase returns the raw salary phrase following a salary/compensation/
// pay marker.
func SalaryPhrase(text string) (string, bool) {
	m := salaryPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SalaryMin parses the minimum salary out of a raw salary phrase: the first
// digit run after stripping everything but digits, hyphens and spaces.
// Best-effort — a phrase with no number yields nil.
func SalaryMin(phrase string) *float64 {
	cleaned := nonSalaryChars.ReplaceAllString(phrase, "")
	m := digitRun.FindString(cleaned)
	if m == "" {
		return nil
	}
	return parseFloat(m)
}

// SalaryMax parses the maximum salary out of a raw salary phrase: the last
// digit run, but only when the phrase contains more than one number. A phrase
// with a single number is treated as "min only".
func SalaryMax(phrase string) *float64 {
	cleaned := nonSalaryChars.ReplaceAllString(phrase, "")
	runs := digitRun.FindAllString(cleaned, -1)
	if len(runs) < 2 {
		return nil
	}
	return parseFloat(runs[len(runs)-1])
}

// IsRemote reports whether the literal substring "remote" appears anywhere in
// the lowercased text.
func IsRemote(text string) bool {
	return strings.Contains(strings.ToLower(text), "remote")
}

// Categorize assigns zero or more categories to text, in the fixed order of
// the category table.
func Categorize(text string) []string {
	lower := strings.ToLower(text)
	var assigned []string
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				assigned = append(assigned, c.name)
				break
			}
		}
	}
	return assigned
}

func parseFloat(digits string) *float64 {
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil
	}
	return &v
}
