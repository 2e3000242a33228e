package nsc

import (
	"regexp"
	"strconv"
	"strings"
)

type Period string

const (
	November  Period = "november"
	June      Period = "june"
	September Period = "september"
	February  Period = "february"
	Exemplar  Period = "exemplar"
)

type Language string

const (
	English   Language = "english"
	Afrikaans Language = "afrikaans"
)

type PaperType string

const (
	Exam       PaperType = "exam"
	Memo       PaperType = "memo"
	Addendum   PaperType = "addendum"
	Data       PaperType = "data"
	AnswerBook PaperType = "answer_book"
)

const (
	DefaultYear  = 2024
	DefaultGrade = 12
)

// ExamPaper is one file discovered on an index page. The JSON field names are
// the format of exam_papers_index.json.
type ExamPaper struct {
	Year        int       `json:"year"`
	Session     Period    `json:"session"`
	Grade       int       `json:"grade"`
	Subject     string    `json:"subject"`
	PaperNumber *int      `json:"paper_number"`
	Language    Language  `json:"language"`
	PaperType   PaperType `json:"paper_type"`
	FileURL     string    `json:"file_url"`
	FileName    string    `json:"file_name"`
	FileSize    *int64    `json:"file_size"`
	Downloaded  bool      `json:"downloaded"`
	LocalPath   *string   `json:"local_path"`
}

var (
	yearPattern  = regexp.MustCompile(`(\d{4})`)
	gradePattern = regexp.MustCompile(`gr[_\s]*(\d+)`)
	paperPattern = regexp.MustCompile(`p[_\s]*(\d)`)
)

// ParseFilename classifies a file from its name and the key of the session it
// was found in. Each field is decided by its own ordered list of rules where
// the first match wins; unmatched fields take their defaults, so this never
// fails. FileURL is left for the caller.
func ParseFilename(filename string, sessionKey string) ExamPaper {
	filename = unquote(filename)

	key := strings.ToLower(sessionKey)
	name := strings.ToLower(filename)

	return ExamPaper{
		Year:        parseYear(sessionKey),
		Session:     parsePeriod(key),
		Grade:       parseGrade(key),
		Subject:     ExtractSubject(filename),
		PaperNumber: parsePaperNumber(name),
		Language:    parseLanguage(name),
		PaperType:   parsePaperType(name),
		FileName:    filename,
	}
}

// unquote decodes every well formed %XX sequence in s and leaves anything
// else, including stray '%' characters, as it is. Invalid UTF-8 in the result
// becomes U+FFFD.
func unquote(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}

	return strings.ToValidUTF8(b.String(), "\uFFFD")
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func parseYear(sessionKey string) int {
	m := yearPattern.FindStringSubmatch(sessionKey)
	if m == nil {
		return DefaultYear
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultYear
	}
	return year
}

func parsePeriod(key string) Period {
	switch {
	case strings.Contains(key, "june"), strings.Contains(key, "mayjune"):
		return June
	case strings.Contains(key, "september"):
		return September
	case strings.Contains(key, "febmarch"):
		return February
	case strings.Contains(key, "exemplar"):
		return Exemplar
	default:
		return November
	}
}

func parseGrade(key string) int {
	m := gradePattern.FindStringSubmatch(key)
	if m == nil {
		return DefaultGrade
	}
	grade, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultGrade
	}
	return grade
}

func parsePaperType(name string) PaperType {
	switch {
	case strings.Contains(name, "mg"), strings.Contains(name, "memo"):
		return Memo
	case strings.Contains(name, "addendum"):
		return Addendum
	case strings.Contains(name, "data"):
		return Data
	case strings.Contains(name, "answer"):
		return AnswerBook
	default:
		return Exam
	}
}

func parsePaperNumber(name string) *int {
	m := paperPattern.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func parseLanguage(name string) Language {
	if strings.Contains(name, "afr") {
		return Afrikaans
	}
	return English
}
