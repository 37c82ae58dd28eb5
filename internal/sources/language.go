package sources

import (
	"strings"
	"time"
)

// Language holds the query templates for one search language. Templates use
// the {city}, {month} and {segment} placeholders.
type Language struct {
	Code         string
	Months       [12]string
	General      []string
	Segment      string
	PlatformTerm string
}

// MonthName renders t's month and year in this language, e.g. "noviembre 2026".
func (l Language) MonthName(t time.Time) string {
	return l.Months[t.Month()-1] + " " + t.Format("2006")
}

// Render fills a template.
func Render(tmpl, city, month, segment string) string {
	r := strings.NewReplacer("{city}", city, "{month}", month, "{segment}", segment)
	return strings.Join(strings.Fields(r.Replace(tmpl)), " ")
}

var English = Language{
	Code: "en",
	Months: [12]string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	},
	General: []string{
		"events parties {city} {month}",
		"nightlife {city} {month} tickets",
		"concerts {city} {month}",
	},
	Segment:      "{segment} events {city} {month}",
	PlatformTerm: "events",
}

var Spanish = Language{
	Code: "es",
	Months: [12]string{
		"enero", "febrero", "marzo", "abril", "mayo", "junio",
		"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
	},
	General: []string{
		"eventos fiestas {city} {month}",
		"vida nocturna {city} {month} entradas",
		"conciertos {city} {month}",
	},
	Segment:      "eventos {segment} {city} {month}",
	PlatformTerm: "eventos fiestas",
}

var Portuguese = Language{
	Code: "pt",
	Months: [12]string{
		"janeiro", "fevereiro", "março", "abril", "maio", "junho",
		"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
	},
	General: []string{
		"eventos festas {city} {month}",
		"vida noturna {city} {month} ingressos",
		"shows {city} {month}",
	},
	Segment:      "eventos {segment} {city} {month}",
	PlatformTerm: "eventos festas",
}

var French = Language{
	Code: "fr",
	Months: [12]string{
		"janvier", "février", "mars", "avril", "mai", "juin",
		"juillet", "août", "septembre", "octobre", "novembre", "décembre",
	},
	General: []string{
		"soirées événements {city} {month}",
		"vie nocturne {city} {month} billets",
		"concerts {city} {month}",
	},
	Segment:      "soirées {segment} {city} {month}",
	PlatformTerm: "soirées",
}

var German = Language{
	Code: "de",
	Months: [12]string{
		"Januar", "Februar", "März", "April", "Mai", "Juni",
		"Juli", "August", "September", "Oktober", "November", "Dezember",
	},
	General: []string{
		"Veranstaltungen Partys {city} {month}",
		"Nachtleben {city} {month} Tickets",
		"Konzerte {city} {month}",
	},
	Segment:      "{segment} Veranstaltungen {city} {month}",
	PlatformTerm: "Partys",
}

// CountryLanguage maps ISO-2 countries to their localized search language.
// Countries not listed get English queries only.
var CountryLanguage = map[string]Language{
	"ES": Spanish,
	"AR": Spanish,
	"MX": Spanish,
	"CO": Spanish,
	"CL": Spanish,
	"PE": Spanish,
	"UY": Spanish,
	"BR": Portuguese,
	"PT": Portuguese,
	"FR": French,
	"DE": German,
	"AT": German,
}

// LocalLanguage returns the localized language for country, if any.
func LocalLanguage(country string) (Language, bool) {
	l, ok := CountryLanguage[strings.ToUpper(country)]
	return l, ok
}
