// Package classify derives a best-effort company name and job title from a
// job-posting URL. Extraction is a priority-ordered chain of site rules with
// first-match-wins semantics; every failure degrades to a defined fallback
// string rather than an error. Only Analyze converts known-bad outcomes into
// caller-visible errors.
package classify

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
)

const (
	// UnknownCompany is the terminal fallback when no rule can extract a
	// usable company name.
	UnknownCompany = "Unknown Company"

	// DefaultTitle is returned when no title keyword matches the URL.
	DefaultTitle = "Software Engineer"
)

var (
	// ErrInvalidURL means the input does not parse as an absolute
	// http(s) URL.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrDuplicateURL means the URL was already analyzed. Callers should
	// surface this as a notice, not a failure.
	ErrDuplicateURL = errors.New("URL already analyzed")

	// ErrUnknownCompany is the quality gate: the extracted company name is
	// a known-bad fallback and the job must not be persisted.
	ErrUnknownCompany = errors.New("unable to identify company from URL")
)

// Result is the extraction outcome for one URL.
type Result struct {
	Company string `json:"company"`
	Title   string `json:"title"`
}

// roleStopwords are generic role tokens dropped when mining a company name
// out of a slug or search query.
var roleStopwords = map[string]struct{}{
	"software": {}, "engineer": {}, "developer": {}, "senior": {},
	"junior": {}, "lead": {}, "staff": {}, "principal": {},
}

// companyDictionary maps well-known registrable labels to their canonical
// company names.
var companyDictionary = map[string]string{
	"google":     "Google",
	"meta":       "Meta",
	"facebook":   "Meta",
	"microsoft":  "Microsoft",
	"amazon":     "Amazon",
	"apple":      "Apple",
	"netflix":    "Netflix",
	"uber":       "Uber",
	"airbnb":     "Airbnb",
	"twitter":    "Twitter",
	"spotify":    "Spotify",
	"stripe":     "Stripe",
	"shopify":    "Shopify",
	"salesforce": "Salesforce",
	"adobe":      "Adobe",
	"intel":      "Intel",
	"nvidia":     "NVIDIA",
	"tesla":      "Tesla",
	"paypal":     "PayPal",
	"zoom":       "Zoom",
	"slack":      "Slack",
	"dropbox":    "Dropbox",
	"palantir":   "Palantir",
	"snowflake":  "Snowflake",
	"databricks": "Databricks",
	"com":        UnknownCompany,
}

// titlePatterns is the ordered keyword table for job titles. First match
// wins, so broader patterns deliberately shadow more specific ones that
// appear later (e.g. "senior-software-engineer" hits "software-engineer").
var titlePatterns = []struct {
	keyword string
	title   string
}{
	{"software-engineer", "Software Engineer"},
	{"frontend-developer", "Frontend Developer"},
	{"backend-developer", "Backend Developer"},
	{"full-stack", "Full Stack Developer"},
	{"senior-software", "Senior Software Engineer"},
	{"staff-engineer", "Staff Engineer"},
	{"principal-engineer", "Principal Engineer"},
	{"data-scientist", "Data Scientist"},
	{"product-manager", "Product Manager"},
	{"engineering-manager", "Engineering Manager"},
	{"devops", "DevOps Engineer"},
	{"mobile-developer", "Mobile Developer"},
	{"react-developer", "React Developer"},
	{"python-developer", "Python Developer"},
	{"java-developer", "Java Developer"},
}

// siteRule pairs a host predicate with an extractor. Extractors return
// ok=false to fall through to the rule's fallback name.
type siteRule struct {
	match    func(host string) bool
	extract  func(u *url.URL, host string) (string, bool)
	fallback string
}

var siteRules = []siteRule{
	{
		match:    func(h string) bool { return strings.Contains(h, "linkedin.com") },
		extract:  extractLinkedIn,
		fallback: "LinkedIn Company",
	},
	{
		match:    func(h string) bool { return strings.Contains(h, "indeed.com") },
		extract:  extractIndeed,
		fallback: "Indeed Company",
	},
	{
		match:    func(h string) bool { return strings.Contains(h, "glassdoor.com") },
		extract:  extractGlassdoor,
		fallback: "Glassdoor Company",
	},
	{
		match:    func(h string) bool { return strings.HasSuffix(h, ".lever.co") },
		extract:  extractLever,
		fallback: "Lever Company",
	},
	{
		match:    func(h string) bool { return strings.HasSuffix(h, ".greenhouse.io") },
		extract:  extractGreenhouse,
		fallback: "Greenhouse Company",
	},
	{
		match: func(h string) bool {
			return strings.Contains(h, "myworkdayjobs.com") || strings.Contains(h, "workday.com")
		},
		extract:  extractWorkday,
		fallback: "Workday Company",
	},
	{
		match: func(h string) bool {
			return strings.HasPrefix(h, "careers.") || strings.HasPrefix(h, "jobs.")
		},
		extract:  extractCareerSubdomain,
		fallback: "", // falls through to the generic domain rule
	},
}

// IsValidURL reports whether raw parses as an absolute http or https URL.
// This is the precondition for every downstream extraction step.
func IsValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// NormalizeURL lower-cases a URL and strips exactly one trailing slash,
// the canonical form used for duplicate detection.
func NormalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimSuffix(s, "/")
}

// IsDuplicate reports whether candidate matches any existing URL after
// normalization on both sides.
func IsDuplicate(candidate string, existing []string) bool {
	normalized := NormalizeURL(candidate)
	for _, e := range existing {
		if NormalizeURL(e) == normalized {
			return true
		}
	}
	return false
}

// ExtractCompany derives a company name from a job-posting URL. It never
// returns an empty string; unextractable input resolves to UnknownCompany
// or a site-specific fallback.
func ExtractCompany(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return UnknownCompany
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))

	for _, rule := range siteRules {
		if !rule.match(host) {
			continue
		}
		if name, ok := rule.extract(u, host); ok {
			return name
		}
		if rule.fallback != "" {
			return rule.fallback
		}
	}

	return extractFromDomain(host)
}

// ExtractTitle derives a job title from the URL using the ordered keyword
// table. The company name is accepted for signature parity with callers
// that may someday specialize the default; today the default is fixed.
func ExtractTitle(raw string, company string) string {
	lowered := strings.ToLower(raw)
	for _, p := range titlePatterns {
		if strings.Contains(lowered, p.keyword) {
			return p.title
		}
	}
	return DefaultTitle
}

// Analyze runs the full pipeline: validation, duplicate detection,
// extraction and the quality gate. existingURLs is the caller's view of
// already-analyzed URLs (typically the user's stored jobs).
func Analyze(rawURL string, existingURLs []string) (Result, error) {
	trimmed := strings.TrimSpace(rawURL)

	if !IsValidURL(trimmed) {
		return Result{}, ErrInvalidURL
	}

	// Duplicate check runs before extraction: a hit is not an error, just
	// already-satisfied intent.
	if IsDuplicate(trimmed, existingURLs) {
		return Result{}, ErrDuplicateURL
	}

	company := ExtractCompany(trimmed)
	if company == UnknownCompany || company == "Com" {
		return Result{}, ErrUnknownCompany
	}

	return Result{
		Company: company,
		Title:   ExtractTitle(trimmed, company),
	}, nil
}

func extractLinkedIn(u *url.URL, host string) (string, bool) {
	path := strings.ToLower(u.Path)

	if slug, ok := pathSegmentAfter(path, "company"); ok {
		return titleCase(slug), true
	}

	if slug, ok := pathSegmentAfter(path, "view"); ok && strings.Contains(path, "/jobs/view/") {
		if name, ok := companyFromSlug(slug); ok {
			return name, true
		}
	}

	return "", false
}

func extractIndeed(u *url.URL, host string) (string, bool) {
	q := u.Query()

	if cmp := q.Get("cmp"); cmp != "" {
		return titleCase(strings.ReplaceAll(cmp, "+", " ")), true
	}

	if query := q.Get("q"); query != "" {
		words := strings.Fields(strings.ReplaceAll(query, "+", " "))
		kept := words[:0]
		for _, w := range words {
			lw := strings.ToLower(w)
			if len(w) <= 2 || lw == "at" {
				continue
			}
			if _, stop := roleStopwords[lw]; stop {
				continue
			}
			kept = append(kept, w)
		}
		if len(kept) > 0 {
			if len(kept) > 2 {
				kept = kept[:2]
			}
			return titleCase(strings.Join(kept, " ")), true
		}
	}

	return "", false
}

func extractGlassdoor(u *url.URL, host string) (string, bool) {
	path := strings.ToLower(u.Path)

	if slug, ok := pathSegmentAfter(path, "jobs"); ok {
		return titleCase(slug), true
	}
	if slug, ok := pathSegmentAfter(path, "company"); ok {
		return titleCase(slug), true
	}
	if employer := u.Query().Get("employer"); employer != "" {
		return titleCase(strings.ReplaceAll(employer, "+", " ")), true
	}

	return "", false
}

func extractLever(u *url.URL, host string) (string, bool) {
	slug := strings.TrimSuffix(host, ".lever.co")
	// Lever's hosted boards live under jobs.lever.co/<company>; a custom
	// subdomain carries the company itself.
	if slug == "jobs" {
		if first := firstPathSegment(u.Path); first != "" {
			return titleCase(first), true
		}
		return "", false
	}
	if slug != "" {
		return titleCase(slug), true
	}
	return "", false
}

func extractGreenhouse(u *url.URL, host string) (string, bool) {
	slug := strings.TrimSuffix(host, ".greenhouse.io")
	if slug == "boards" || slug == "jobs" || slug == "job-boards" {
		if first := firstPathSegment(u.Path); first != "" {
			return titleCase(first), true
		}
		return "", false
	}
	if slug != "" {
		return titleCase(slug), true
	}
	return "", false
}

func extractWorkday(u *url.URL, host string) (string, bool) {
	labels := strings.Split(host, ".")
	// <slug>.wdN.myworkdayjobs.com or <slug>.workday.com
	if len(labels) >= 4 && strings.HasPrefix(labels[1], "wd") && labels[2] == "myworkdayjobs" {
		return titleCase(labels[0]), true
	}
	if len(labels) >= 3 && labels[1] == "workday" {
		return titleCase(labels[0]), true
	}
	return "", false
}

func extractCareerSubdomain(u *url.URL, host string) (string, bool) {
	rest := strings.TrimPrefix(strings.TrimPrefix(host, "careers."), "jobs.")
	labels := strings.Split(rest, ".")
	if len(labels) >= 2 && labels[0] != "" {
		return titleCase(labels[0]), true
	}
	return "", false
}

// extractFromDomain is the generic last rule: the registrable label mapped
// through the company dictionary, title-cased otherwise.
func extractFromDomain(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		if host == "" {
			return UnknownCompany
		}
		return titleCase(host)
	}

	label := labels[len(labels)-2]
	if name, ok := companyDictionary[label]; ok {
		return name
	}
	return titleCase(label)
}

// companyFromSlug mines a company name out of a hyphenated job slug by
// dropping numeric and generic role tokens and keeping the first two that
// remain.
func companyFromSlug(slug string) (string, bool) {
	parts := strings.Split(slug, "-")
	kept := make([]string, 0, 2)
	for _, p := range parts {
		if len(p) <= 2 || isDigits(p) {
			continue
		}
		if _, stop := roleStopwords[p]; stop {
			continue
		}
		kept = append(kept, p)
		if len(kept) == 2 {
			break
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	name := titleCase(strings.Join(kept, " "))
	if len(name) <= 2 {
		return "", false
	}
	return name, true
}

// pathSegmentAfter returns the path segment immediately following the
// named segment, e.g. pathSegmentAfter("/company/acme-corp/", "company")
// returns "acme-corp".
func pathSegmentAfter(path string, segment string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == segment && parts[i+1] != "" {
			return parts[i+1], true
		}
	}
	return "", false
}

func firstPathSegment(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// titleCase replaces hyphens with spaces and upper-cases the first letter
// of every word.
func titleCase(s string) string {
	s = strings.ReplaceAll(s, "-", " ")
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
