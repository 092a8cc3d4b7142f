// Package extract holds the pure per hit recognition functions used by both
// attribution passes. Everything here is stateless and safe to call from any
// goroutine.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Engines is the set of referrer hosts treated as search engines. Membership
// is case sensitive and hosts match exactly as captured from the referrer,
// www prefix included.
var Engines = map[string]struct{}{
	"google.com":       {},
	"www.google.com":   {},
	"bing.com":         {},
	"www.bing.com":     {},
	"search.yahoo.com": {},
	"yahoo.com":        {},
	"www.yahoo.com":    {},
	"msn.com":          {},
}

func IsEngine(domain string) bool {
	_, ok := Engines[domain]
	return ok
}

var (
	reDomain  = regexp.MustCompile(`https?://([^/]+)`)
	reKeyword = regexp.MustCompile(`[?&][qp]=([^&]+)`)
)

// DomainKeyword pulls the referrer host and the q or p query parameter out of
// a raw referrer string. The host keeps its case. The keyword is lower cased
// after turning + and literal %20 into spaces; no other percent decoding
// happens. Either value is empty when its pattern is absent.
func DomainKeyword(referrer string) (domain, keyword string) {
	if m := reDomain.FindStringSubmatch(referrer); m != nil {
		domain = m[1]
	}
	if m := reKeyword.FindStringSubmatch(referrer); m != nil {
		keyword = strings.ReplaceAll(m[1], "+", " ")
		keyword = strings.ReplaceAll(keyword, "%20", " ")
		keyword = strings.ToLower(keyword)
	}
	return
}

// IsPurchase reports whether the comma separated event list carries event 1,
// the purchase event. The digit must stand alone, so event 11 or 21 is not a
// purchase.
func IsPurchase(eventList string) bool {
	for rest := eventList; rest != ""; {
		tok := rest
		if i := strings.IndexByte(rest, ','); i >= 0 {
			tok, rest = rest[:i], rest[i+1:]
		} else {
			rest = ""
		}
		if tok == "1" {
			return true
		}
	}
	return false
}

// Revenue extracts the total revenue of the first product in a product list.
// A product entry is category;name;quantity;total revenue;custom events, so
// revenue is the fourth ; separated field, cut short at the next product
// boundary. Missing fields, blanks, and garbage all come back as 0.
func Revenue(productList string) float64 {
	rest := productList
	for i := 0; i < 3; i++ {
		j := strings.IndexByte(rest, ';')
		if j < 0 {
			return 0
		}
		rest = rest[j+1:]
	}
	if j := strings.IndexAny(rest, ";,"); j >= 0 {
		rest = rest[:j]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}
