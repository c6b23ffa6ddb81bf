package httpx

import (
	"math/rand"
	"net/http"
)

// browserProfile describes one browser identity used for header emulation.
// Platform and sec-ch-ua hints stay consistent within a profile so requests
// do not contradict themselves.
type browserProfile struct {
	Name            string
	UserAgent       string
	SecChUA         string
	SecChUAMobile   string
	SecChUAPlatform string
	SendSecFetch    bool
}

var browserProfiles = []browserProfile{
	{
		Name:            "Chrome Windows",
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36",
		SecChUA:         `"Chromium";v="112", "Google Chrome";v="112", "Not:A-Brand";v="99"`,
		SecChUAMobile:   "?0",
		SecChUAPlatform: `"Windows"`,
		SendSecFetch:    true,
	},
	{
		Name:            "Chrome macOS",
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36",
		SecChUA:         `"Chromium";v="112", "Google Chrome";v="112", "Not:A-Brand";v="99"`,
		SecChUAMobile:   "?0",
		SecChUAPlatform: `"macOS"`,
		SendSecFetch:    true,
	},
	{
		Name:            "Chrome Linux",
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36",
		SecChUA:         `"Chromium";v="112", "Google Chrome";v="112", "Not:A-Brand";v="99"`,
		SecChUAMobile:   "?0",
		SecChUAPlatform: `"Linux"`,
		SendSecFetch:    true,
	},
	{
		// Firefox sends no sec-ch-ua headers.
		Name:      "Firefox Windows",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/109.0",
	},
	{
		Name:      "Safari macOS",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.4 Safari/605.1.15",
	},
	{
		Name:            "Edge Windows",
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36 Edg/112.0.1722.48",
		SecChUA:         `"Chromium";v="112", "Microsoft Edge";v="112", "Not:A-Brand";v="99"`,
		SecChUAMobile:   "?0",
		SecChUAPlatform: `"Windows"`,
		SendSecFetch:    true,
	},
}

var referers = []string{
	"https://www.google.com/",
	"https://www.google.nl/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
	"https://www.startpage.com/",
}

// pickProfile selects a profile by attempt: the first attempt is random, and
// retries walk the profile list so consecutive attempts never reuse the
// identity that was just flagged.
func pickProfile(rng *rand.Rand, attempt int) browserProfile {
	if attempt <= 0 {
		return browserProfiles[rng.Intn(len(browserProfiles))]
	}
	return browserProfiles[attempt%len(browserProfiles)]
}

// headersFor builds the full browser-like header set for a profile.
func headersFor(rng *rand.Rand, profile browserProfile) http.Header {
	h := http.Header{}
	h.Set("User-Agent", profile.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	h.Set("Accept-Language", "en-US,en;q=0.9,nl;q=0.8")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Cache-Control", "max-age=0")
	h.Set("DNT", "1")
	h.Set("Referer", referers[rng.Intn(len(referers))])

	if profile.SendSecFetch {
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Sec-Fetch-User", "?1")
	}
	if profile.SecChUA != "" {
		h.Set("sec-ch-ua", profile.SecChUA)
		h.Set("sec-ch-ua-mobile", profile.SecChUAMobile)
		h.Set("sec-ch-ua-platform", profile.SecChUAPlatform)
	}
	return h
}
