package store

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// KeyTokenizerName is the bleve tokenizer that splits translation keys.
	KeyTokenizerName = "property_key_tokenizer"

	// KeyAnalyzerName is the analyzer used for the keyTerms field.
	KeyAnalyzerName = "property_key_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(KeyTokenizerName, keyTokenizerConstructor)
}

// keyWordRegex matches the alphanumeric runs of a key; dots, dashes and other
// punctuation separate them.
var keyWordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// TokenizeKey splits a translation key into lowercase search terms.
// "login.submitButton_label" -> ["login", "submit", "button", "label"].
// Single-character tokens are dropped.
func TokenizeKey(key string) []string {
	var tokens []string
	for _, word := range keyWordRegex.FindAllString(key, -1) {
		for _, t := range SplitKeyToken(word) {
			lower := strings.ToLower(t)
			if len([]rune(lower)) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// SplitKeyToken splits snake_case, then camelCase within each part.
func SplitKeyToken(token string) []string {
	if !strings.Contains(token, "_") {
		return SplitCamelCase(token)
	}
	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, SplitCamelCase(part)...)
		}
	}
	return result
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
// Examples:
//   - "submitButton" -> ["submit", "Button"]
//   - "HTMLTitle" -> ["HTML", "Title"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			// Split on a lower->upper edge, or before the last capital of an acronym.
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func keyTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &keyTokenizer{}, nil
}

// keyTokenizer implements analysis.Tokenizer on top of TokenizeKey.
type keyTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *keyTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lowerText := strings.ToLower(text)
	tokens := TokenizeKey(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for pos, token := range tokens {
		start := strings.Index(lowerText[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos + 1,
			Type:     analysis.AlphaNumeric,
		})
		if end <= len(text) {
			offset = end
		}
	}
	return result
}
