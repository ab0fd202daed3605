package weather

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeTile_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "html error page", body: "<!DOCTYPE html><html><body>502 Bad Gateway</body></html>"},
		{name: "json", body: `{"tile": {}}`},
		{name: "truncated", body: `<tile><visual><binding template="TileWide">`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTile(strings.NewReader(tt.body))
			require.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestDecodeTile_BindingAttributes(t *testing.T) {
	doc, err := DecodeTile(strings.NewReader(
		`<tile><visual><binding template="TileWide" DisplayName="北京" branding="name"/></visual></tile>`))
	require.NoError(t, err)

	bindings := doc.Bindings()
	require.Len(t, bindings, 1)
	require.Equal(t, TemplateWide, bindings[0].Template())

	name, ok := bindings[0].DisplayName()
	require.True(t, ok)
	require.Equal(t, "北京", name)

	_, ok = bindings[0].Attr("missing")
	require.False(t, ok)
}

func TestDecodeTile_DeclaredCharset(t *testing.T) {
	// "Zürich" in ISO-8859-1.
	body := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><tile><visual><binding DisplayName=\"Z\xfcrich\"/></visual></tile>"

	doc, err := DecodeTile(strings.NewReader(body))
	require.NoError(t, err)
	name, _ := doc.Bindings()[0].DisplayName()
	require.Equal(t, "Zürich", name)
}
