package pipeline

import (
	"strings"
	"unicode"
)

// vocabulary maps each canonical allergen label to the spellings that
// resolve to it. Canonical names are listed as their own first synonym.
var vocabulary = map[string][]string{
	"peanut": {
		"peanut", "groundnut", "arachis", "peanut butter", "peanut oil",
		"花生", "花生醬", "花生粉", "花生油", "落花生",
	},
	"tree nut": {
		"tree nut", "nut", "almond", "walnut", "cashew", "pecan", "pistachio",
		"hazelnut", "macadamia", "brazil nut", "pine nut", "chestnut",
		"堅果", "杏仁", "核桃", "腰果", "胡桃", "開心果", "榛果", "夏威夷豆", "松子", "栗子",
	},
	"shellfish": {
		"shellfish", "crustacean", "shrimp", "prawn", "crab", "lobster", "crayfish", "krill",
		"甲殼類", "蝦", "蝦仁", "蝦米", "螃蟹", "蟹", "龍蝦", "蝦醬",
	},
	"mollusc": {
		"mollusc", "mollusk", "clam", "mussel", "oyster", "scallop", "squid", "octopus",
		"cuttlefish", "abalone", "snail", "oyster sauce",
		"軟體動物", "蛤蜊", "蛤", "淡菜", "牡蠣", "蚵", "蚵仔", "干貝", "扇貝", "魷魚", "章魚", "花枝", "墨魚", "鮑魚", "蠔油",
	},
	"fish": {
		"fish", "salmon", "tuna", "cod", "anchovy", "mackerel", "sardine", "fish sauce", "bonito",
		"魚", "鮭魚", "鮪魚", "鱈魚", "鯷魚", "鯖魚", "魚露", "柴魚", "魚漿",
	},
	"dairy": {
		"dairy", "milk", "cheese", "butter", "cream", "yogurt", "yoghurt", "whey", "casein", "lactose", "ghee",
		"乳製品", "牛奶", "奶", "起司", "乳酪", "奶油", "鮮奶油", "優格", "奶酪",
	},
	"gluten": {
		"gluten", "wheat", "barley", "rye", "flour", "semolina", "spelt", "seitan",
		"麩質", "小麥", "麵粉", "大麥", "黑麥", "麵筋",
	},
	"egg": {
		"egg", "albumen", "mayonnaise",
		"蛋", "雞蛋", "蛋黃", "蛋白", "美乃滋",
	},
	"soy": {
		"soy", "soya", "soybean", "tofu", "edamame", "miso", "soy sauce", "tempeh",
		"大豆", "黃豆", "豆腐", "毛豆", "味噌", "豆漿", "豆皮", "豆瓣醬", "醬油",
	},
	"sesame": {
		"sesame", "tahini", "sesame oil",
		"芝麻", "芝麻油", "麻油", "芝麻醬", "香油",
	},
	"mustard": {
		"mustard",
		"芥末", "芥菜籽", "黃芥末",
	},
	"celery": {
		"celery", "celeriac",
		"芹菜", "西洋芹",
	},
	"sulfite": {
		"sulfite", "sulphite", "sulfur dioxide", "sulphur dioxide",
		"亞硫酸鹽", "二氧化硫",
	},
	"lupin": {
		"lupin", "lupine",
		"羽扇豆",
	},
}

// synonymIndex resolves a normalized spelling to its canonical label.
var synonymIndex = buildSynonymIndex()

func buildSynonymIndex() map[string]string {
	index := make(map[string]string)
	for canonical, synonyms := range vocabulary {
		index[normalizeTerm(canonical)] = canonical
		for _, s := range synonyms {
			index[normalizeTerm(s)] = canonical
		}
	}
	return index
}

// Canonicalize returns the canonical allergen for label, if label is one of
// its known spellings.
func Canonicalize(label string) (string, bool) {
	canonical, ok := synonymIndex[normalizeTerm(label)]
	return canonical, ok
}

// Synonyms returns the spellings of a canonical allergen.
func Synonyms(canonical string) []string {
	return vocabulary[canonical]
}

// canonicalizeLabels lower-cases labels, maps known spellings to their
// canonical name and keeps unknown labels as free-text hints.
func canonicalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.Join(strings.Fields(l), " "))
		if l == "" {
			continue
		}
		if canonical, ok := Canonicalize(l); ok {
			l = canonical
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// normalizeTerm lower-cases, collapses whitespace and singularizes each
// Latin word so "Peanuts" and "peanut" compare equal.
func normalizeTerm(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = singular(w)
	}
	return strings.Join(words, " ")
}

func singular(w string) string {
	if !isASCII(w) || len(w) <= 3 {
		return w
	}
	switch {
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// termMatches reports whether label mentions term. Latin terms must match
// whole words ("egg" matches "egg noodles" but not "eggplant"); CJK terms
// match as substrings since they are written without spaces.
func termMatches(label, term string) bool {
	label = normalizeTerm(label)
	term = normalizeTerm(term)
	if label == "" || term == "" {
		return false
	}
	if label == term {
		return true
	}
	if !isASCII(term) {
		return strings.Contains(label, term)
	}

	labelWords := latinWords(label)
	termWords := latinWords(term)
	if len(termWords) == 0 || len(termWords) > len(labelWords) {
		return false
	}
	for i := 0; i+len(termWords) <= len(labelWords); i++ {
		match := true
		for j, tw := range termWords {
			if labelWords[i+j] != tw {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func latinWords(s string) []string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
	for i, w := range words {
		words[i] = singular(w)
	}
	return words
}
