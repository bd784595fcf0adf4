package analyzer

import (
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// Analyzer tokenizes free text into normalized keywords.
// CJK 구간은 bigram으로 분해되고, 라틴 토큰은 소문자 그대로 유지된다.
// 분석 체인 구성에 실패하면 공백/구두점 기반 토크나이저로 degrade한다.
type Analyzer struct {
	chain    *analysis.DefaultAnalyzer
	stopword map[string]struct{}
	synonym  map[string][]string
}

// 조사/기능어. 토큰 단위로만 제거한다 (단어 내부 매칭 아님)
var defaultStopwords = []string{
	// Korean particles / function words
	"이", "가", "은", "는", "을", "를", "의", "에", "에서", "으로", "로",
	"와", "과", "도", "만", "랑", "이랑", "하고", "부터", "까지",
	"근처", "주변", "쪽",
	// English function words
	"a", "an", "the", "of", "in", "on", "at", "to", "for", "and", "or",
}

// 검색 도메인 동의어. 양방향이 아니라 표제어 → 확장어 단방향
var defaultSynonyms = map[string][]string{
	"카페":   {"커피", "커피숍"},
	"맛집":   {"식당", "레스토랑"},
	"술집":   {"바", "펍"},
	"빵집":   {"베이커리"},
	"cafe": {"coffee"},
}

var fallbackSplitRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// New builds the analysis chain. Never fails; a broken chain only
// disables CJK bigram tokenization.
func New() *Analyzer {
	a := &Analyzer{
		stopword: make(map[string]struct{}, len(defaultStopwords)),
		synonym:  defaultSynonyms,
	}
	for _, w := range defaultStopwords {
		a.stopword[w] = struct{}{}
	}

	a.chain = &analysis.DefaultAnalyzer{
		Tokenizer: unicode.NewUnicodeTokenizer(),
		TokenFilters: []analysis.TokenFilter{
			lowercase.NewLowerCaseFilter(),
			cjk.NewCJKBigramFilter(false),
			newHangulBigramFilter(),
		},
	}
	return a
}

// hangulBigramFilter emits rune bigrams for Hangul tokens. CJKBigramFilter는
// Ideographic 타입 토큰만 분해하는데, unicode 토크나이저는 한글을 Letter로
// 분류하므로 한글 복합어는 여기서 따로 bigram 처리한다.
type hangulBigramFilter struct{}

func newHangulBigramFilter() *hangulBigramFilter {
	return &hangulBigramFilter{}
}

func (f *hangulBigramFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	output := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		runes := []rune(string(token.Term))
		if len(runes) < 3 || !allHangul(runes) {
			output = append(output, token)
			continue
		}
		for i := 0; i+1 < len(runes); i++ {
			output = append(output, &analysis.Token{
				Term:     []byte(string(runes[i : i+2])),
				Position: token.Position,
				Start:    token.Start,
				End:      token.End,
				Type:     analysis.Double,
			})
		}
	}
	return output
}

// 한글 음절(가..힣) 및 자모 블록
func allHangul(runes []rune) bool {
	for _, r := range runes {
		if (r >= 0xAC00 && r <= 0xD7A3) ||
			(r >= 0x1100 && r <= 0x11FF) ||
			(r >= 0x3130 && r <= 0x318F) {
			continue
		}
		return false
	}
	return true
}

// Analyze returns the normalized keyword list for text.
// 동일 입력에 대해 항상 동일한 순서(첫 등장 순)로 반환한다.
func (a *Analyzer) Analyze(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var raw []string
	if a.chain != nil {
		for _, token := range a.chain.Analyze([]byte(text)) {
			raw = append(raw, string(token.Term))
		}
	} else {
		raw = a.fallbackTokenize(text)
	}

	seen := make(map[string]struct{}, len(raw))
	keywords := make([]string, 0, len(raw))
	appendKeyword := func(term string) {
		if term == "" {
			return
		}
		if _, stop := a.stopword[term]; stop {
			return
		}
		if _, dup := seen[term]; dup {
			return
		}
		seen[term] = struct{}{}
		keywords = append(keywords, term)
	}

	for _, term := range raw {
		appendKeyword(term)
		for _, syn := range a.synonym[term] {
			appendKeyword(syn)
		}
	}
	return keywords
}

// fallbackTokenize splits on whitespace/punctuation only.
func (a *Analyzer) fallbackTokenize(text string) []string {
	parts := fallbackSplitRegex.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// Overlap counts keywords shared between two analyzed keyword sets.
func Overlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	n := 0
	for _, k := range b {
		if _, ok := set[k]; ok {
			n++
		}
	}
	return n
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeText lowercases and collapses whitespace.
// 제안(suggestion) 중복 제거 키로 사용
func NormalizeText(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}
