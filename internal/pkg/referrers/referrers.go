package referrers

import (
	"net/url"
	"strings"
)

// Direct is reported for visits without a usable external referrer.
const Direct = "Direct"

// Referrer hostnames a developer portfolio usually sees, mapped to display names
var knownReferrers = map[string]string{
	// Search engines
	"google.com":     "Google",
	"google.co.uk":   "Google",
	"google.de":      "Google",
	"google.fr":      "Google",
	"google.co.in":   "Google",
	"google.com.br":  "Google",
	"bing.com":       "Bing",
	"duckduckgo.com": "DuckDuckGo",
	"yahoo.com":      "Yahoo",
	"baidu.com":      "Baidu",
	"yandex.ru":      "Yandex",
	"ecosia.org":     "Ecosia",
	"kagi.com":       "Kagi",
	"perplexity.ai":  "Perplexity",
	"chatgpt.com":    "ChatGPT",

	// Social
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"facebook.com":    "Facebook",
	"linkedin.com":    "LinkedIn",
	"lnkd.in":         "LinkedIn",
	"reddit.com":      "Reddit",
	"threads.net":     "Threads",
	"bsky.app":        "Bluesky",
	"mastodon.social": "Mastodon",
	"fosstodon.org":   "Mastodon",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"discord.com":     "Discord",
	"t.me":            "Telegram",
	"slack.com":       "Slack",

	// Developer communities
	"news.ycombinator.com": "Hacker News",
	"hn.algolia.com":       "Hacker News",
	"lobste.rs":            "Lobsters",
	"dev.to":               "DEV Community",
	"hashnode.com":         "Hashnode",
	"hashnode.dev":         "Hashnode",
	"medium.com":           "Medium",
	"substack.com":         "Substack",
	"github.com":           "GitHub",
	"gitlab.com":           "GitLab",
	"stackoverflow.com":    "Stack Overflow",
	"producthunt.com":      "Product Hunt",
	"indiehackers.com":     "Indie Hackers",
	"daily.dev":            "daily.dev",
	"app.daily.dev":        "daily.dev",
	"golangweekly.com":     "Golang Weekly",
	"javascriptweekly.com": "JavaScript Weekly",

	// Hiring
	"wellfound.com": "Wellfound",
	"indeed.com":    "Indeed",
	"glassdoor.com": "Glassdoor",

	// Email
	"mail.google.com":    "Gmail",
	"outlook.live.com":   "Outlook",
	"outlook.office.com": "Outlook",
	"mail.proton.me":     "Proton Mail",

	// Link shorteners
	"bit.ly":      "Bitly",
	"tinyurl.com": "TinyURL",
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// Unknown hostnames are returned without "www." and with the first letter capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
	if hostname == "" {
		return Direct
	}

	if name, ok := knownReferrers[hostname]; ok {
		return name
	}

	hostname = strings.TrimPrefix(hostname, "www.")

	// Walk up the labels so the most specific known parent wins.
	for candidate := hostname; ; {
		if name, ok := knownReferrers[candidate]; ok {
			return name
		}
		dot := strings.IndexByte(candidate, '.')
		if dot < 0 {
			break
		}
		candidate = candidate[dot+1:]
	}

	return capitalizeFirst(hostname)
}

// FromURL classifies a raw referrer URL. Empty, unparsable or same-site
// referrers (host equal to selfHost, ignoring "www.") are Direct.
func FromURL(rawReferrer, selfHost string) string {
	rawReferrer = strings.TrimSpace(rawReferrer)
	if rawReferrer == "" {
		return Direct
	}

	u, err := url.Parse(rawReferrer)
	if err != nil || u.Hostname() == "" {
		return Direct
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	self := strings.TrimPrefix(strings.ToLower(selfHost), "www.")
	if self != "" && host == self {
		return Direct
	}

	return FriendlyName(host)
}

// capitalizeFirst capitalizes the first letter of a string
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
