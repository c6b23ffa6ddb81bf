package httpx

import "strings"

// antiBotPatterns are fragments that mark bot-interstitial pages rather than
// real content. The Dutch phrases come from portals fronted by consent and
// spam walls.
var antiBotPatterns = []string{
	"je bent bijna op de pagina die je zoekt",
	"we houden ons platform graag veilig en spamvrij",
	"robot",
	"captcha",
	"cloudfare",
	"ddos protection",
	"ik ben geen robot",
	"just a moment",
}

// DetectAntiBot reports whether the body looks like a bot interstitial and
// returns the matched pattern.
func DetectAntiBot(body string) (string, bool) {
	lower := strings.ToLower(body)
	for _, pattern := range antiBotPatterns {
		if strings.Contains(lower, pattern) {
			return pattern, true
		}
	}
	return "", false
}
