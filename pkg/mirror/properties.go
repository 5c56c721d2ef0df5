package mirror

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/notionmirror/notionmirror/pkg/notion"
	"github.com/notionmirror/notionmirror/pkg/source"
)

func displayTitle(node source.Node, fallback string) string {
	if node.Title == "" {
		return fallback
	}
	return node.Title
}

// propertyLines renders a page's non-title properties as markdown bullets,
// sorted by property name so the output is stable across runs. Properties
// with no value are skipped.
func propertyLines(properties map[string]notion.Property) []string {
	names := make([]string, 0, len(properties))
	for name, prop := range properties {
		if prop.Type == "title" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		value := propertyValue(properties[name])
		if value == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- **%s**: %s", name, value))
	}
	return lines
}

func propertyValue(prop notion.Property) string {
	switch prop.Type {
	case "rich_text":
		return notion.RichTextToPlain(prop.RichText)
	case "select":
		if prop.Select != nil {
			return prop.Select.Name
		}
	case "status":
		if prop.Status != nil {
			return prop.Status.Name
		}
	case "multi_select":
		var names []string
		for _, option := range prop.MultiSelect {
			names = append(names, option.Name)
		}
		return strings.Join(names, ", ")
	case "checkbox":
		if prop.Checkbox != nil {
			return strconv.FormatBool(*prop.Checkbox)
		}
	case "number":
		if prop.Number != nil {
			return strconv.FormatFloat(*prop.Number, 'f', -1, 64)
		}
	case "url":
		return prop.URL
	case "email":
		return prop.Email
	case "phone_number":
		return prop.PhoneNumber
	case "date":
		if prop.Date != nil {
			if prop.Date.End != "" {
				return prop.Date.Start + " to " + prop.Date.End
			}
			return prop.Date.Start
		}
	case "people":
		var names []string
		for _, person := range prop.People {
			if person.Name != "" {
				names = append(names, person.Name)
			}
		}
		return strings.Join(names, ", ")
	case "files":
		var names []string
		for _, file := range prop.Files {
			if file.Name != "" {
				names = append(names, file.Name)
			}
		}
		return strings.Join(names, ", ")
	case "relation":
		if len(prop.Relation) > 0 {
			return fmt.Sprintf("%d related", len(prop.Relation))
		}
	}
	return ""
}
