package nsc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carlohamalainen/nsc-exam-papers-go/config"
)

// BaseURL is the Eastern Cape exams site that hosts the index pages.
const BaseURL = config.DefaultBaseURL

// Session maps a session key (year, grade and exam period) to its index page
// relative to BaseURL.
type Session struct {
	Key  string
	Path string
}

// Sessions is the registry of known index pages. Order matters: sessions are
// scraped, and papers indexed, in this order.
var Sessions = []Session{
	// Grade 12 NSC, November finals and the rest of the 2024 calendar.
	{"2024_november_gr12_nsc", "2024_November_Gr_12_NSC_DBE_Exams.htm"},
	{"2024_september_gr12_prep", "2024_September_Gr_12_Preparatory_Exams.htm"},
	{"2024_mayjune_gr12_nsc_dbe", "2024_MayJune_Gr_12_NSC_DBE_Exams.htm"},
	{"2024_mayjune_gr12_nsc_ec", "2024_MayJune_Gr_12_NSC_Eastern_Cape_Exams25.htm"},

	{"2023_november_gr12", "2023_November_Gr_12_Exams.htm"},
	{"2023_september_gr12_prep", "2023_September_Gr_12_Preparatory_Exams.htm"},
	{"2023_mayjune_gr12_nsc_dbe", "2023_MayJune_Gr_12_NSC_DBE_Exams.htm"},
	{"2023_june_gr12_common", "2023_June_Gr_12_Common_Exams.htm"},

	{"2022_november_nsc", "2022_November_NSC_Examinations.htm"},
	{"2022_mayjune_gr12_nsc_dbe", "2022_MayJune_Gr_12_NSC_DBE_Exams.htm"},
	{"2022_september_gr12_prep", "2022_September_Gr_12_Preparatory_Exams.htm"},
	{"2022_june_gr12_common", "2022_June_Gr_12_Common_Exams.htm"},

	{"2021_november_nsc", "2021_November_NSC_Exams.htm"},
	{"2021_june_nsc", "2021_June_NSC__Exams.htm"},
	{"2021_september_gr12_prep", "2021_September_Gr_12_Preparatory_Exams.htm"},
	{"2021_june_gr12_exemplars", "2021_Grade_12_June_Exemplars.htm"},

	{"2020_november_nsc", "2020_November_NSC_Exams.htm"},
	{"2020_september_gr12_prep", "2020_September_Gr_12_Preparatory_Exams.htm"},

	{"2019_november_nsc", "2019_November_NSC_Exams.htm"},
	{"2019_mayjune_nsc", "2019_MayJune_NSC_Exams.htm"},
	{"2019_september_gr12_prep", "2019_September_Gr_12_Preparatory_Exams.htm"},
	{"2019_june_gr12_common", "2019_June_Gr_12_Common_Exams.htm"},

	{"2018_november_nsc", "2018_November_NSC_Exams.htm"},
	{"2018_june_nsc", "2018_June_NSC_Exams.htm"},
	{"2018_september_gr12_prep", "2018_September_Gr_12_Preparatory_Exams.htm"},
	{"2018_febmarch_supplementary", "2018_FebMarch_Supplementary_Exams.htm"},
	{"2018_june_gr12", "2018_June_Gr_12_Exams.htm"},
	{"2018_exemplars_gr12", "2018_Exemplars_Gr_12.htm"},

	{"2017_november_nsc", "2017_November_NSC_Exams.htm"},
	{"2017_september_trial", "2017_September_Trial_Exams.htm"},
	{"2017_febmarch_supplementary", "2017_FebMarch_Supplementary_Exams.htm"},
	{"2017_june_gr12", "2017_June_Exams_Gr_12.htm"},

	{"2016_november_nsc", "2016_November_NSC_Exams.htm"},
	{"2016_september_trial", "2016_September_Trial_Exams.htm"},
	{"2016_june_gr12", "2016_June_Exams_Gr_12.htm"},
	{"2016_febmarch_supplementary", "2016_FebMarch_Supplementary_Exams.htm"},

	{"2015_november_nsc", "2015_November_NSC_Exams.htm"},
}

// SessionsFromConfig returns the registry listed in a config file, or the
// built-in Sessions when the file lists none.
func SessionsFromConfig(cfg config.Config) []Session {
	if len(cfg.Sessions) == 0 {
		return Sessions
	}

	xs := make([]Session, 0, len(cfg.Sessions))
	for _, e := range cfg.Sessions {
		xs = append(xs, Session{Key: e.Key, Path: e.Path})
	}
	return xs
}

// SelectSessions filters the registry by year and grade. A session is kept
// when its key contains any of the years and, if grades are given, a "gr<n>"
// or "gr_<n>" token for any of the grades. Keys without a grade token are
// dropped by a grade filter. Nil filters keep everything.
func SelectSessions(registry []Session, years, grades []int) []Session {
	selected := []Session{}

	for _, s := range registry {
		key := strings.ToLower(s.Key)

		if len(years) > 0 && !containsAny(key, years, "%d") {
			continue
		}

		if len(grades) > 0 && !containsAny(key, grades, "gr%d", "gr_%d") {
			continue
		}

		selected = append(selected, s)
	}

	return selected
}

func containsAny(key string, xs []int, formats ...string) bool {
	for _, x := range xs {
		for _, f := range formats {
			if strings.Contains(key, fmt.Sprintf(f, x)) {
				return true
			}
		}
	}
	return false
}

// SessionURL resolves a session's index page against base.
func SessionURL(base string, s Session) (string, error) {
	u, err := resolve(base, s.Path)
	if err != nil {
		return "", fmt.Errorf("bad index path %q for session %s: %w", s.Path, s.Key, err)
	}
	return u.String(), nil
}

func formatInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}
