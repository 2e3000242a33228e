package nsc

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SubjectMapping maps a lowercase filename fragment to a canonical subject.
type SubjectMapping struct {
	Key  string
	Name string
}

// SubjectMappings is checked in order and the first key found in a filename
// wins. Short keys such as "it", "lo" and "cat" sit where they always have,
// even though they shadow some later entries; downstream consumers of the index
// rely on the existing classification.
var SubjectMappings = []SubjectMapping{
	{"accounting", "Accounting"},
	{"afrikaans", "Afrikaans"},
	{"agricultural management", "Agricultural Management Practices"},
	{"agricultural sciences", "Agricultural Sciences"},
	{"agricultural technology", "Agricultural Technology"},
	{"business studies", "Business Studies"},
	{"cat", "Computer Applications Technology"},
	{"computer applications technology", "Computer Applications Technology"},
	{"civil technology", "Civil Technology"},
	{"consumer studies", "Consumer Studies"},
	{"dance studies", "Dance Studies"},
	{"design", "Design"},
	{"dramatic arts", "Dramatic Arts"},
	{"economics", "Economics"},
	{"electrical technology", "Electrical Technology"},
	{"engineering graphics", "Engineering Graphics & Design"},
	{"egd", "Engineering Graphics & Design"},
	{"english", "English"},
	{"geography", "Geography"},
	{"history", "History"},
	{"hospitality studies", "Hospitality Studies"},
	{"information technology", "Information Technology"},
	{"it", "Information Technology"},
	{"life orientation", "Life Orientation"},
	{"lo", "Life Orientation"},
	{"life sciences", "Life Sciences"},
	{"mathematical literacy", "Mathematical Literacy"},
	{"maths lit", "Mathematical Literacy"},
	{"mathematics", "Mathematics"},
	{"maths", "Mathematics"},
	{"mechanical technology", "Mechanical Technology"},
	{"music", "Music"},
	{"physical sciences", "Physical Sciences"},
	{"physics", "Physical Sciences"},
	{"religion studies", "Religion Studies"},
	{"sepedi", "Sepedi"},
	{"sesotho", "Sesotho"},
	{"setswana", "Setswana"},
	{"siswati", "SiSwati"},
	{"technical mathematics", "Technical Mathematics"},
	{"technical sciences", "Technical Sciences"},
	{"tourism", "Tourism"},
	{"tshivenda", "Tshivenda"},
	{"visual arts", "Visual Arts"},
	{"xhosa", "IsiXhosa"},
	{"isixhosa", "IsiXhosa"},
	{"zulu", "IsiZulu"},
	{"isizulu", "IsiZulu"},
	{"ndebele", "IsiNdebele"},
	{"isindebele", "IsiNdebele"},
	{"xitsonga", "Xitsonga"},
	{"tsonga", "Xitsonga"},
}

const UnknownSubject = "Unknown"

var (
	separators    = regexp.MustCompile(`[_\-\s/\\]+`)
	fileExtension = regexp.MustCompile(`(?i)\.(zip|pdf|exe)$`)
	subjectNoise  = regexp.MustCompile(`(?i)(p[12]|mg|nov|june|sept|2\d{3}|english|afrikaans)`)
)

// ExtractSubject returns the canonical subject for a filename. Separators are
// collapsed to single spaces before matching so that "Physical_Sciences" finds
// the "physical sciences" key. When nothing matches, the subject is whatever is
// left of the filename once extensions and paper, month, year and language
// tokens are removed, title cased.
func ExtractSubject(filename string) string {
	normalized := separators.ReplaceAllString(strings.ToLower(filename), " ")

	for _, m := range SubjectMappings {
		if strings.Contains(normalized, m.Key) {
			return m.Name
		}
	}

	base := fileExtension.ReplaceAllString(filename, "")
	base = subjectNoise.ReplaceAllString(base, "")
	base = strings.TrimSpace(separators.ReplaceAllString(base, " "))

	if strings.Trim(base, ". ") == "" {
		return UnknownSubject
	}

	// Casers carry state, so one per call.
	return cases.Title(language.English).String(base)
}
