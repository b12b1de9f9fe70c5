package prompt

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Style selects how PromptFormatter renders a tagged prompt for a given
// model family. The original selects this by inspecting a HuggingFace
// tokenizer's special_tokens_map at runtime; this module has no such
// tokenizer, so the style is chosen explicitly by configuration instead.
type Style int

const (
	// StyleBase passes the prompt through unchanged (plain completion models).
	StyleBase Style = iota
	// StyleInstructor wraps the prompt in "[INST] ... [/INST]" markers.
	StyleInstructor
	// StyleChat renders the prompt as a role-tagged conversation, ChatML-style.
	StyleChat
)

var tagStripPattern = regexp.MustCompile(
	fmt.Sprintf(`(?i)</?(%s)>`, strings.Join(SupportedInputVariables, "|")),
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// PromptFormatter turns a ValidatedPromptTemplate's tagged, rendered
// prompt into the shape a particular model expects: a plain string for
// StyleBase/StyleInstructor, or a role-tagged conversation transcript
// for StyleChat. Each chain/model owns its own PromptFormatter.
type PromptFormatter struct {
	Style     Style
	StripHTML bool
	TagRoles  map[string]string
	Roles     map[string]bool // roles accepted when splitting a <history> block
}

// NewPromptFormatter builds a PromptFormatter with the original's default
// tag-to-role mapping (question -> user, documents -> assistant,
// condensed_question -> user; anything else falls back to "system").
func NewPromptFormatter(style Style, stripHTML bool, roles map[string]bool) *PromptFormatter {
	return &PromptFormatter{
		Style:     style,
		StripHTML: stripHTML,
		TagRoles: map[string]string{
			"question":           "user",
			"documents":          "assistant",
			"condensed_question": "user",
		},
		Roles: roles,
	}
}

// FormatResult is a formatted prompt paired with the tag marking where a
// model's generation begins: the literal suffix for StyleBase/StyleInstructor,
// or the role a chat-style caller should generate next for StyleChat.
type FormatResult struct {
	Prompt string
	EndTag string
}

// Format strips tags, optionally strips HTML, then applies Style.
func (f *PromptFormatter) Format(renderedPrompt string) (FormatResult, error) {
	text := f.stripTags(renderedPrompt)
	if f.StripHTML {
		text = f.stripHTMLMarkup(text)
	}

	switch f.Style {
	case StyleInstructor:
		return FormatResult{
			Prompt: fmt.Sprintf("[INST] %s [/INST]", text),
			EndTag: "[/INST]",
		}, nil
	case StyleChat:
		return f.applyChatTemplate(text)
	default:
		return FormatResult{Prompt: text, EndTag: lastN(text, 15)}, nil
	}
}

func (f *PromptFormatter) stripTags(text string) string {
	if text == "" {
		return text
	}
	return tagStripPattern.ReplaceAllString(text, "")
}

func (f *PromptFormatter) stripHTMLMarkup(text string) string {
	return htmlTagPattern.ReplaceAllString(html.UnescapeString(text), "")
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// chatMessage is one turn of the role-tagged transcript a StyleChat
// prompt renders to.
type chatMessage struct {
	Role    string
	Content string
}

// applyChatTemplate splits a tagged prompt into role-tagged messages the
// way the original does before calling a tokenizer's chat template: text
// outside any tag becomes a "system" message, a <history> block expands
// to one message per turn, and every other tag maps through TagRoles
// (defaulting to "system"). The result is rendered ChatML-style since no
// tokenizer chat-template equivalent exists here.
func (f *PromptFormatter) applyChatTemplate(text string) (FormatResult, error) {
	messages, err := f.tuplizeTaggedPrompt(text)
	if err != nil {
		return FormatResult{}, err
	}

	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<|im_start|>")
		b.WriteString(m.Role)
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")

	return FormatResult{Prompt: b.String(), EndTag: "assistant"}, nil
}

func (f *PromptFormatter) tuplizeTaggedPrompt(text string) ([]chatMessage, error) {
	var result []chatMessage
	pos := 0

	for _, loc := range findTagBlocks(text) {
		start, end, tag, content := loc.start, loc.end, loc.tag, loc.content

		if start > pos {
			if systemText := strings.TrimSpace(text[pos:start]); systemText != "" {
				result = append(result, chatMessage{Role: "system", Content: systemText})
			}
		}

		tag = strings.ToLower(tag)
		content = strings.TrimSpace(content)
		if tag == "history" && content != "" {
			history, err := TuplizeHistory(content, f.Roles)
			if err != nil {
				return nil, err
			}
			for _, m := range history {
				result = append(result, chatMessage{Role: m.Role, Content: m.Content})
			}
		} else if content != "" {
			role, ok := f.TagRoles[tag]
			if !ok {
				role = "system"
			}
			result = append(result, chatMessage{Role: role, Content: content})
		}

		pos = end
	}

	if pos < len(text) {
		if systemText := strings.TrimSpace(text[pos:]); systemText != "" {
			result = append(result, chatMessage{Role: "system", Content: systemText})
		}
	}

	return result, nil
}

type tagBlock struct {
	start, end int
	tag        string
	content    string
}

// findTagBlocks scans text for <tag>...</tag> blocks, tag restricted to
// SupportedInputVariables, matching each opening tag to its own closing
// tag (regexp.Regexp has no backreference support, so this is done by
// hand rather than with Python's \1 back-reference).
func findTagBlocks(text string) []tagBlock {
	open := regexp.MustCompile(fmt.Sprintf(`(?i)<(%s)>`, strings.Join(SupportedInputVariables, "|")))

	var blocks []tagBlock
	pos := 0
	for pos < len(text) {
		loc := open.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		tagStart := pos + loc[0]
		tagEnd := pos + loc[1]
		tag := text[pos+loc[2] : pos+loc[3]]

		closeTag := regexp.MustCompile(fmt.Sprintf(`(?i)</%s>`, regexp.QuoteMeta(tag)))
		closeLoc := closeTag.FindStringIndex(text[tagEnd:])
		if closeLoc == nil {
			pos = tagEnd
			continue
		}
		contentStart := tagEnd
		contentEnd := tagEnd + closeLoc[0]
		blockEnd := tagEnd + closeLoc[1]

		blocks = append(blocks, tagBlock{
			start:   tagStart,
			end:     blockEnd,
			tag:     tag,
			content: text[contentStart:contentEnd],
		})
		pos = blockEnd
	}
	return blocks
}
