package extract

import (
	"fmt"
	"strings"

	"github.com/FranksOps/eventradar/internal/sources"
	"github.com/FranksOps/eventradar/internal/storage"
)

// MaxPromptText bounds the page text sent to the model.
const MaxPromptText = 8000

const promptTemplate = `Extract all events from this text that take place in or near %[1]s between %[2]s and %[3]s.

For each event, return a JSON object with these fields:
- name: event name (string)
- date: event date in YYYY-MM-DD format (string)
- time: start time in HH:MM format if available (string or null)
- venue_name: venue name if mentioned (string or null)
- venue_address: venue address if mentioned (string or null)
- is_indoor: true/false/null based on venue type
- genre: main music genre (electronic, urban, pop, latin, rock, live-music, other)
- segment: one of: %[4]s
- target_audience: audience type (underground, mainstream, premium, mass)
- price_range: price range if mentioned (string or null)
- estimated_capacity: estimated venue capacity as number (null if unknown)
- description: one-line description of the event (string)

Segment classification guide:
- "electronic": techno, house, trance, EDM focused events with specific DJ lineups
- "party/nightlife": club nights, themed parties, raves, after parties, pool parties, open bar events, nightclub events without specific genre focus
- "urban/hip-hop": hip-hop, trap, R&B focused events
- "latin/reggaeton": reggaeton, cumbia, salsa, Latin-focused parties
- "pop/commercial": mainstream pop, Top 40 events
- "rock/indie": rock concerts, indie shows
- "live-music": concerts with live bands/singers
- "festival": multi-day or large-scale multi-act events
- Use "party/nightlife" for any general nightclub event, DJ party, themed party, or fiesta that doesn't clearly fit another genre

Rules:
- Only include events within the date range %[2]s to %[3]s
- If a date is ambiguous, make your best guess based on context
- For capacity, estimate based on venue type if not explicit (club ~500, festival ~5000, bar ~200)
- Include ALL events you find: parties, concerts, club nights, DJ sets, festivals, etc.
- Return an empty array if no events are found
- Return ONLY valid JSON array, no other text

Page text:
%[5]s`

// BuildPrompt renders the extraction prompt. The range shown to the model is
// inclusive, so it ends the day before ec.DateTo.
func BuildPrompt(text string, ec Context) string {
	if r := []rune(text); len(r) > MaxPromptText {
		text = string(r[:MaxPromptText])
	}
	last := ec.DateTo.AddDate(0, 0, -1)
	if last.Before(ec.DateFrom) {
		last = ec.DateFrom
	}
	return fmt.Sprintf(promptTemplate,
		ec.City,
		storage.DayKey(ec.DateFrom),
		storage.DayKey(last),
		strings.Join(sources.Segments, ", "),
		text,
	)
}
