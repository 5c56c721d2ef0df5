package notion

import (
	"fmt"
	"regexp"
	"strings"
)

var codeLanguagePattern = regexp.MustCompile(`^[a-z0-9_+-]+$`)

// RichTextToMarkdown renders a rich text array as inline markdown, applying
// the span annotations and links.
func RichTextToMarkdown(spans []RichText) string {
	var parts []string
	for _, span := range spans {
		text := strings.ReplaceAll(span.PlainText, "\r\n", "\n")
		if span.Annotations.Code {
			text = fmt.Sprintf("`%s`", text)
		}
		if span.Annotations.Bold {
			text = fmt.Sprintf("**%s**", text)
		}
		if span.Annotations.Italic {
			text = fmt.Sprintf("*%s*", text)
		}
		if span.Annotations.Strikethrough {
			text = fmt.Sprintf("~~%s~~", text)
		}
		if span.Annotations.Underline {
			text = fmt.Sprintf("<u>%s</u>", text)
		}
		if span.Href != "" {
			text = fmt.Sprintf("[%s](%s)", text, span.Href)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "")
}

// RichTextToPlain renders a rich text array without any styling.
func RichTextToPlain(spans []RichText) string {
	var parts []string
	for _, span := range spans {
		parts = append(parts, strings.ReplaceAll(span.PlainText, "\r\n", "\n"))
	}
	return strings.Join(parts, "")
}

// Indent returns the list indentation for the given nesting depth.
func Indent(depth int) string {
	if depth < 0 {
		depth = 0
	}
	return strings.Repeat("  ", depth)
}

// BlockToMarkdown renders a single block as markdown lines at the given
// nesting depth. Children aren't rendered here; the caller recurses when
// HasChildren is set.
func BlockToMarkdown(block Block, depth int) []string {
	prefix := Indent(depth)

	switch block.Type {
	case "paragraph":
		return []string{prefix + textOf(block.Paragraph)}
	case "heading_1":
		return []string{prefix + "# " + textOf(block.Heading1)}
	case "heading_2":
		return []string{prefix + "## " + textOf(block.Heading2)}
	case "heading_3":
		return []string{prefix + "### " + textOf(block.Heading3)}
	case "quote":
		return []string{prefix + "> " + textOf(block.Quote)}
	case "callout":
		icon := ""
		if block.Callout != nil && block.Callout.Icon != nil && block.Callout.Icon.Type == "emoji" {
			icon = block.Callout.Icon.Emoji + " "
		}
		return []string{prefix + "> " + icon + textOf(block.Callout)}
	case "bulleted_list_item":
		return []string{prefix + "- " + textOf(block.BulletedListItem)}
	case "numbered_list_item":
		return []string{prefix + "1. " + textOf(block.NumberedListItem)}
	case "to_do":
		check := " "
		if block.ToDo != nil && block.ToDo.Checked {
			check = "x"
		}
		return []string{prefix + fmt.Sprintf("- [%s] ", check) + textOf(block.ToDo)}
	case "toggle":
		return []string{prefix + "- " + textOf(block.Toggle)}
	case "code":
		return codeToMarkdown(block.Code, prefix)
	case "divider":
		return []string{prefix + "---"}
	case "image", "file", "pdf", "video", "audio":
		return []string{prefix + attachmentToMarkdown(block)}
	case "bookmark":
		return []string{prefix + bookmarkToMarkdown(block.Bookmark)}
	case "equation":
		expr := ""
		if block.Equation != nil {
			expr = block.Equation.Expression
		}
		return []string{prefix + fmt.Sprintf("$$\n%s\n$$", expr)}
	case "child_page":
		return []string{prefix + "- " + childTitle(block.ChildPage, "child page")}
	case "child_database":
		return []string{prefix + "- " + childTitle(block.ChildDatabase, "child database")}
	}

	// Keep something for unknown block types rather than dropping content.
	return []string{prefix + fmt.Sprintf("- (unsupported block: %s)", block.Type)}
}

func textOf(block *TextBlock) string {
	if block == nil {
		return ""
	}
	return RichTextToMarkdown(block.RichText)
}

func codeToMarkdown(code *CodeBlock, prefix string) []string {
	contents := ""
	lang := ""
	if code != nil {
		contents = RichTextToPlain(code.RichText)
		lang = safeCodeLanguage(code.Language)
	}

	lines := []string{strings.TrimRight(prefix+"```"+lang, " ")}
	for _, line := range strings.Split(contents, "\n") {
		if line == "" {
			lines = append(lines, prefix)
		} else {
			lines = append(lines, prefix+line)
		}
	}
	return append(lines, prefix+"```")
}

func attachmentToMarkdown(block Block) string {
	var payload *FileBlock
	switch block.Type {
	case "image":
		payload = block.Image
	case "file":
		payload = block.File
	case "pdf":
		payload = block.PDF
	case "video":
		payload = block.Video
	case "audio":
		payload = block.Audio
	}

	url := ""
	label := block.Type
	if payload != nil {
		url = payload.URL()
		if caption := RichTextToMarkdown(payload.Caption); caption != "" {
			label = caption
		}
	}
	return fmt.Sprintf("[%s](%s)", label, url)
}

func bookmarkToMarkdown(bookmark *Bookmark) string {
	if bookmark == nil {
		return "bookmark"
	}
	label := RichTextToMarkdown(bookmark.Caption)
	if label == "" {
		label = bookmark.URL
	}
	if label == "" {
		label = "bookmark"
	}
	if bookmark.URL == "" {
		return label
	}
	return fmt.Sprintf("[%s](%s)", label, bookmark.URL)
}

func childTitle(child *ChildTitle, fallback string) string {
	if child == nil || child.Title == "" {
		return fallback
	}
	return child.Title
}

func safeCodeLanguage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if codeLanguagePattern.MatchString(lang) {
		return lang
	}
	return ""
}
