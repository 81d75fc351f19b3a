package probe

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Candidate is one clickable element harvested from the page.
type Candidate struct {
	Text    string  `json:"text"`
	Aria    string  `json:"aria"`
	Role    string  `json:"role"`
	Class   string  `json:"cls"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// minCandidateScore is the floor below which a match is considered noise.
const minCandidateScore = 0.3

// scoreCandidate rates how well a candidate matches any of the target
// phrases. Text matches weigh most, aria labels next, class name fragments
// least.
func scoreCandidate(c Candidate, phrases []string) float64 {
	if !c.Visible {
		return 0
	}
	text := strings.ToLower(strings.TrimSpace(c.Text))
	aria := strings.ToLower(strings.TrimSpace(c.Aria))
	class := strings.ToLower(c.Class)

	var best float64
	for _, phrase := range phrases {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p == "" {
			continue
		}
		var score float64
		switch {
		case text == p:
			score = 1.0
		case aria == p:
			score = 0.9
		case text != "" && strings.Contains(text, p):
			score = 0.7
		case aria != "" && strings.Contains(aria, p):
			score = 0.6
		case wordOverlap(text, p) > 0.5:
			score = 0.5
		case strings.Contains(class, strings.ReplaceAll(p, " ", "-")):
			score = 0.4
		}
		if score > 0 && (c.Role == "button" || c.Role == "a") {
			score += 0.05
		}
		if score > best {
			best = score
		}
	}
	return best
}

// wordOverlap is the fraction of phrase words present in the text.
func wordOverlap(text, phrase string) float64 {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

// bestCandidate picks the highest scoring candidate above the noise floor.
func bestCandidate(cands []Candidate, phrases []string) (Candidate, float64, bool) {
	var best Candidate
	var bestScore float64
	for _, c := range cands {
		if s := scoreCandidate(c, phrases); s > bestScore {
			best = c
			bestScore = s
		}
	}
	return best, bestScore, bestScore >= minCandidateScore
}

// LoginFormInfo describes a login form discovered in page HTML.
type LoginFormInfo struct {
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	InputCount       int
}

// DiscoverLoginForm parses the HTML and finds the first form holding a
// password input, returning selectors for its fields.
func DiscoverLoginForm(html string) (*LoginFormInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}

	var info *LoginFormInfo
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		password := form.Find(`input[type="password"]`).First()
		if password.Length() == 0 {
			return true
		}

		found := &LoginFormInfo{
			PasswordSelector: inputSelector(password),
			InputCount:       form.Find("input").Length(),
		}

		username := form.Find(`input[type="text"], input[type="email"], input:not([type])`).First()
		if username.Length() > 0 {
			found.UsernameSelector = inputSelector(username)
		}

		submit := form.Find(`button[type="submit"], input[type="submit"]`).First()
		if submit.Length() == 0 {
			submit = form.Find("button").FilterFunction(func(_ int, b *goquery.Selection) bool {
				return strings.Contains(strings.ToLower(b.Text()), "sign")
			}).First()
		}
		if submit.Length() > 0 {
			found.SubmitSelector = inputSelector(submit)
		}

		info = found
		return false
	})

	if info == nil {
		return nil, fmt.Errorf("no login form with a password field found")
	}
	return info, nil
}

// inputSelector builds the most specific simple selector available for an
// element: id, then name, then type.
func inputSelector(sel *goquery.Selection) string {
	tag := goquery.NodeName(sel)
	if id, ok := sel.Attr("id"); ok && id != "" {
		return "#" + id
	}
	if name, ok := sel.Attr("name"); ok && name != "" {
		return fmt.Sprintf(`%s[name="%s"]`, tag, name)
	}
	if typ, ok := sel.Attr("type"); ok && typ != "" {
		return fmt.Sprintf(`%s[type="%s"]`, tag, typ)
	}
	return tag
}
