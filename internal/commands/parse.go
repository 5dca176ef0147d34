package commands

import (
	"regexp"
	"strings"
)

// directivePattern matches /comando:valor and /comando:[Valor Com Espacos].
// Unknown command-shaped tokens also match so they can be stripped from the
// outgoing text without ever reaching the contact.
var directivePattern = regexp.MustCompile(`/([a-z_]+):(\[[^\]\n]*\]|[^\s/]+)`)

// mediaPattern matches {{tipo:chave}} media-send tags.
var mediaPattern = regexp.MustCompile(`\{\{([a-z]+):([^}\n]+)\}\}`)

// ParseDirectives extracts the recognized /command:value directives from a
// reply and returns the text with every command-shaped token removed,
// recognized or not.
func ParseDirectives(text string) (string, []Request) {
	var requests []Request
	clean := directivePattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := directivePattern.FindStringSubmatch(match)
		name := groups[1]
		value := strings.TrimSpace(groups[2])
		if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
			value = strings.TrimSpace(value[1 : len(value)-1])
		}
		if Known(name) {
			requests = append(requests, Request{Name: name, Value: value, Source: SourceText})
		}
		return ""
	})
	return tidy(clean), requests
}

// MediaRef is one {{type:key}} reference found in a reply.
type MediaRef struct {
	Type string
	Key  string
}

// ParseMediaTags extracts {{type:key}} tags and strips them from the text.
func ParseMediaTags(text string) (string, []MediaRef) {
	var refs []MediaRef
	clean := mediaPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := mediaPattern.FindStringSubmatch(match)
		refs = append(refs, MediaRef{
			Type: strings.TrimSpace(groups[1]),
			Key:  strings.TrimSpace(groups[2]),
		})
		return ""
	})
	return tidy(clean), refs
}

var multiSpace = regexp.MustCompile(`[ \t]{2,}`)
var multiNewline = regexp.MustCompile(`\n{3,}`)

// tidy collapses the whitespace holes left by stripped tokens.
func tidy(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
