package news

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sentiment is a coarse tone label for a headline.
type Sentiment string

const (
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
	Neutral  Sentiment = "neutral"
)

// Bengali terms followed by the romanized spellings commonly seen in social posts.
var negativeWords = nfcAll([]string{
	"হত্যা", "নিহত", "আহত", "সংঘর্ষ", "হামলা", "গুলি", "মৃত্যু", "দুর্ঘটনা",
	"গ্রেফতার", "উত্তেজনা", "বন্যা", "আগুন", "সংকট", "দুর্নীতি", "অভিযোগ", "বিক্ষোভ",
	"hottya", "nihoto", "ahoto", "songhorsho", "hamla", "guli", "mrittu",
	"killed", "attack", "clash", "death", "injured", "arrest", "tension", "flood", "crisis", "protest",
})

var positiveWords = nfcAll([]string{
	"উন্নয়ন", "সাফল্য", "জয়", "অর্জন", "সমঝোতা", "সহযোগিতা", "শান্তি", "উদ্ধার",
	"প্রশংসা", "চুক্তি", "উদ্বোধন", "পুরস্কার",
	"unnoyon", "shafollo", "shanti", "chukti", "uddhar",
	"success", "agreement", "peace", "rescue", "growth", "cooperation", "progress", "award",
})

// Classify scores text by counting positive minus negative word hits.
func Classify(text string) Sentiment {
	lower := strings.ToLower(norm.NFC.String(text))
	score := countPresent(lower, positiveWords) - countPresent(lower, negativeWords)
	switch {
	case score > 0:
		return Positive
	case score < 0:
		return Negative
	default:
		return Neutral
	}
}

func countPresent(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func nfcAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(norm.NFC.String(w))
	}
	return out
}
