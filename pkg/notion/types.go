package notion

// Object is a page or database as returned by the search, pages, and
// databases endpoints. Only the fields the mirror consumes are modeled.
type Object struct {
	ID             string `json:"id"`
	Object         string `json:"object"`
	Archived       bool   `json:"archived,omitempty"`
	URL            string `json:"url,omitempty"`
	LastEditedTime string `json:"last_edited_time,omitempty"`
	Parent         Parent `json:"parent,omitempty"`

	// Properties is set for pages.
	Properties map[string]Property `json:"properties,omitempty"`

	// Title is set for databases.
	Title []RichText `json:"title,omitempty"`
}

// Object kinds returned by the API.
const (
	ObjectPage     = "page"
	ObjectDatabase = "database"
)

// Parent locates an object within the workspace tree.
type Parent struct {
	Type       string `json:"type,omitempty"`
	PageID     string `json:"page_id,omitempty"`
	DatabaseID string `json:"database_id,omitempty"`
	Workspace  bool   `json:"workspace,omitempty"`
}

// Parent types the mirror cares about. Anything else lands under `_other`.
const (
	ParentWorkspace = "workspace"
	ParentPage      = "page_id"
	ParentDatabase  = "database_id"
)

// ID returns the identifier of the parent object, or "" for workspace and
// unknown parents.
func (p Parent) ID() string {
	switch p.Type {
	case ParentPage:
		return p.PageID
	case ParentDatabase:
		return p.DatabaseID
	}
	return ""
}

// Property is a single page property value.
type Property struct {
	Type        string         `json:"type"`
	Title       []RichText     `json:"title,omitempty"`
	RichText    []RichText     `json:"rich_text,omitempty"`
	Select      *SelectOption  `json:"select,omitempty"`
	MultiSelect []SelectOption `json:"multi_select,omitempty"`
	Status      *SelectOption  `json:"status,omitempty"`
	Checkbox    *bool          `json:"checkbox,omitempty"`
	Number      *float64       `json:"number,omitempty"`
	URL         string         `json:"url,omitempty"`
	Email       string         `json:"email,omitempty"`
	PhoneNumber string         `json:"phone_number,omitempty"`
	Date        *Date          `json:"date,omitempty"`
	People      []Person       `json:"people,omitempty"`
	Files       []NamedFile    `json:"files,omitempty"`
	Relation    []Reference    `json:"relation,omitempty"`
}

// SelectOption is a select, multi-select, or status value.
type SelectOption struct {
	Name string `json:"name,omitempty"`
}

// Date is a date property value. Only the start matters for the mirror.
type Date struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Person is a user reference in a people property.
type Person struct {
	Name string `json:"name,omitempty"`
}

// NamedFile is a files-property entry.
type NamedFile struct {
	Name string `json:"name,omitempty"`
}

// Reference is a bare object reference, as used by relation properties.
type Reference struct {
	ID string `json:"id"`
}

// RichText is one span of styled text.
type RichText struct {
	PlainText   string      `json:"plain_text,omitempty"`
	Href        string      `json:"href,omitempty"`
	Annotations Annotations `json:"annotations,omitempty"`
}

// Annotations are the style flags on a rich text span.
type Annotations struct {
	Bold          bool `json:"bold,omitempty"`
	Italic        bool `json:"italic,omitempty"`
	Strikethrough bool `json:"strikethrough,omitempty"`
	Underline     bool `json:"underline,omitempty"`
	Code          bool `json:"code,omitempty"`
}

// Block is one content block of a page.
type Block struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children,omitempty"`

	Paragraph        *TextBlock     `json:"paragraph,omitempty"`
	Heading1         *TextBlock     `json:"heading_1,omitempty"`
	Heading2         *TextBlock     `json:"heading_2,omitempty"`
	Heading3         *TextBlock     `json:"heading_3,omitempty"`
	Quote            *TextBlock     `json:"quote,omitempty"`
	Callout          *TextBlock     `json:"callout,omitempty"`
	BulletedListItem *TextBlock     `json:"bulleted_list_item,omitempty"`
	NumberedListItem *TextBlock     `json:"numbered_list_item,omitempty"`
	ToDo             *TextBlock     `json:"to_do,omitempty"`
	Toggle           *TextBlock     `json:"toggle,omitempty"`
	Code             *CodeBlock     `json:"code,omitempty"`
	Image            *FileBlock     `json:"image,omitempty"`
	File             *FileBlock     `json:"file,omitempty"`
	PDF              *FileBlock     `json:"pdf,omitempty"`
	Video            *FileBlock     `json:"video,omitempty"`
	Audio            *FileBlock     `json:"audio,omitempty"`
	Bookmark         *Bookmark      `json:"bookmark,omitempty"`
	Equation         *Equation      `json:"equation,omitempty"`
	ChildPage        *ChildTitle    `json:"child_page,omitempty"`
	ChildDatabase    *ChildTitle    `json:"child_database,omitempty"`
}

// TextBlock is the payload shared by the plain text-carrying block types.
type TextBlock struct {
	RichText []RichText `json:"rich_text,omitempty"`
	Checked  bool       `json:"checked,omitempty"`
	Icon     *Icon      `json:"icon,omitempty"`
}

// Icon is a callout icon. Only emoji icons are rendered.
type Icon struct {
	Type  string `json:"type,omitempty"`
	Emoji string `json:"emoji,omitempty"`
}

// CodeBlock is a fenced code block.
type CodeBlock struct {
	RichText []RichText `json:"rich_text,omitempty"`
	Language string     `json:"language,omitempty"`
}

// FileBlock is an attachment-style block (image, file, pdf, video, audio).
// The attachment itself stays remote; the mirror records the link.
type FileBlock struct {
	Caption  []RichText `json:"caption,omitempty"`
	File     *FileRef   `json:"file,omitempty"`
	External *FileRef   `json:"external,omitempty"`
}

// URL returns the attachment URL, wherever it's hosted.
func (f FileBlock) URL() string {
	if f.File != nil && f.File.URL != "" {
		return f.File.URL
	}
	if f.External != nil {
		return f.External.URL
	}
	return ""
}

// FileRef points at hosted or external file contents.
type FileRef struct {
	URL string `json:"url,omitempty"`
}

// Bookmark is a bookmark block.
type Bookmark struct {
	URL     string     `json:"url,omitempty"`
	Caption []RichText `json:"caption,omitempty"`
}

// Equation is a LaTeX equation block.
type Equation struct {
	Expression string `json:"expression,omitempty"`
}

// ChildTitle is the stub payload of child_page and child_database blocks.
type ChildTitle struct {
	Title string `json:"title,omitempty"`
}

// PageTitle extracts the title of a page from its title-typed property, or of
// a database from its title array.
func (o Object) PageTitle() string {
	if o.Object == ObjectDatabase {
		return RichTextToPlain(o.Title)
	}
	for _, prop := range o.Properties {
		if prop.Type == "title" {
			return RichTextToPlain(prop.Title)
		}
	}
	return ""
}
