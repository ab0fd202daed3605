package weather

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// TemplateWide is the binding template carrying the most detailed presentation.
const TemplateWide = "TileWide"

// TileDocument is the decoded live tile payload. Every level may be empty:
// upstream omits bindings, groups and subgroups freely.
type TileDocument struct {
	XMLName xml.Name    `xml:"tile"`
	Visual  *TileVisual `xml:"visual"`
}

type TileVisual struct {
	Bindings []TileBinding `xml:"binding"`
}

// TileBinding is one presentation variant of the tile.
type TileBinding struct {
	Attrs  []xml.Attr  `xml:",any,attr"`
	Groups []TileGroup `xml:"group"`
}

type TileGroup struct {
	Subgroups []TileSubgroup `xml:"subgroup"`
}

// TileSubgroup holds zero or more text runs and images.
type TileSubgroup struct {
	Texts  []TileText  `xml:"text"`
	Images []TileImage `xml:"image"`
}

type TileText struct {
	Value string `xml:",chardata"`
}

type TileImage struct {
	Src string `xml:"src,attr"`
}

// Bindings returns the document's bindings, or nil when the visual is missing.
func (d *TileDocument) Bindings() []TileBinding {
	if d == nil || d.Visual == nil {
		return nil
	}
	return d.Visual.Bindings
}

// Attr returns the value of the named attribute.
func (b TileBinding) Attr(name string) (string, bool) {
	for _, a := range b.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (b TileBinding) Template() string {
	v, _ := b.Attr("template")
	return v
}

func (b TileBinding) DisplayName() (string, bool) {
	return b.Attr("DisplayName")
}

// Text returns the trimmed content of the subgroup's first text run.
func (s TileSubgroup) Text() string {
	if len(s.Texts) == 0 {
		return ""
	}
	return strings.TrimSpace(s.Texts[0].Value)
}

// DecodeTile decodes a tile document from r. Anything that is not a
// well-formed <tile> element yields ErrMalformedResponse.
func DecodeTile(r io.Reader) (*TileDocument, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var doc TileDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &doc, nil
}
