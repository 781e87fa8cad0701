package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type entry struct {
	code2 string   // ISO 639-1
	code3 string   // ISO 639-2 primary
	alt3  string   // ISO 639-2 bibliographic variant
	words []string // English and native word forms
}

var languages = []entry{
	{"en", "eng", "", []string{"english", "inglés", "ingles"}},
	{"es", "spa", "", []string{"spanish", "español", "espanol", "castellano"}},
	{"fr", "fra", "fre", []string{"french", "français", "francais", "francés"}},
	{"de", "deu", "ger", []string{"german", "deutsch", "alemán"}},
	{"it", "ita", "", []string{"italian", "italiano"}},
	{"pt", "por", "", []string{"portuguese", "português", "portugues"}},
	{"ca", "cat", "", []string{"catalan", "català"}},
	{"gl", "glg", "", []string{"galician", "galego"}},
	{"eu", "eus", "baq", []string{"basque", "euskara"}},
	{"ja", "jpn", "", []string{"japanese"}},
	{"ko", "kor", "", []string{"korean"}},
	{"zh", "zho", "chi", []string{"chinese"}},
	{"ru", "rus", "", []string{"russian"}},
	{"uk", "ukr", "", []string{"ukrainian"}},
	{"ar", "ara", "", []string{"arabic"}},
	{"hi", "hin", "", []string{"hindi"}},
	{"nl", "nld", "dut", []string{"dutch"}},
	{"pl", "pol", "", []string{"polish"}},
	{"sv", "swe", "", []string{"swedish"}},
	{"da", "dan", "", []string{"danish"}},
	{"no", "nor", "", []string{"norwegian"}},
	{"fi", "fin", "", []string{"finnish"}},
}

var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages)*2)
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// ToISO2 converts a language code, BCP 47 tag, or language name to ISO 639-1.
// Region and script subtags are dropped ("es-MX" and "pt_BR" yield "es" and
// "pt"). Returns empty string for unrecognized input.
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if tag, err := xlanguage.Parse(strings.ReplaceAll(code, "_", "-")); err == nil {
		base, confidence := tag.Base()
		if confidence != xlanguage.No {
			if iso := base.String(); len(iso) == 2 {
				return iso
			}
			if e := lookup(base.ISO3()); e != nil {
				return e.code2
			}
		}
	}
	return ""
}

// Same reports whether two codes name the same language.
func Same(a, b string) bool {
	left, right := ToISO2(a), ToISO2(b)
	return left != "" && left == right
}

// DisplayName returns the English name for a language code. Returns
// "Unknown" for empty input, or the uppercased code for unrecognized input.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	iso := ToISO2(code)
	if iso == "" {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	tag, err := xlanguage.Parse(iso)
	if err != nil {
		return strings.ToUpper(iso)
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return strings.ToUpper(iso)
}
