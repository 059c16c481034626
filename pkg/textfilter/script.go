package textfilter

import (
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultForeignScripts are the scripts a local model slips into when it drifts
// away from English. Latin, digits, punctuation and emoji are never flagged.
var DefaultForeignScripts = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
	unicode.Cyrillic,
	unicode.Arabic,
	unicode.Thai,
}

// ScriptFilter detects text written in scripts other than the expected one.
type ScriptFilter struct {
	scripts []*unicode.RangeTable
}

// NewScriptFilter creates a filter flagging the given scripts. No scripts means
// DefaultForeignScripts.
func NewScriptFilter(scripts ...*unicode.RangeTable) *ScriptFilter {
	if len(scripts) == 0 {
		scripts = DefaultForeignScripts
	}
	return &ScriptFilter{scripts: scripts}
}

// ContainsForeignScript reports whether text holds any rune from a flagged
// script. Text is NFKC-normalised first so fullwidth Latin is not flagged.
func (f *ScriptFilter) ContainsForeignScript(text string) bool {
	for _, r := range norm.NFKC.String(text) {
		if r < unicode.MaxLatin1 {
			continue
		}
		if unicode.In(r, f.scripts...) {
			return true
		}
	}
	return false
}
