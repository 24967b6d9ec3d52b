package preview

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
)

func TestAssembleDeterministic(t *testing.T) {
	set := buffer.Set{Markup: "<p>hi</p>", Style: "p{color:red}", Script: "console.log('ok')"}

	assert.Equal(t, Assemble(set), Assemble(set))
}

func TestAssembleContents(t *testing.T) {
	tests := []struct {
		name string
		set  buffer.Set
	}{
		{"example", buffer.Set{Markup: "<p>hi</p>", Style: "p{color:red}", Script: "console.log('ok')"}},
		{"empty", buffer.Set{}},
		{"script only", buffer.Set{Script: "let x = 1;"}},
		{"unescaped markup", buffer.Set{Markup: "<div id=\"a\">&amp; <b>bold</b></div>", Style: "a > b { }"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Assemble(tt.set).String()

			assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
			assert.Contains(t, doc, tt.set.Markup)
			assert.Contains(t, doc, "<style>"+tt.set.Style+"</style>")

			preamble := strings.Index(doc, consolePreamble)
			require.GreaterOrEqual(t, preamble, 0, "preamble missing")

			if tt.set.Script != "" {
				script := strings.Index(doc, tt.set.Script)
				require.GreaterOrEqual(t, script, 0)
				assert.Less(t, preamble, script, "preamble must precede the user script")
			}

			head := strings.Index(doc, "<head>")
			style := strings.Index(doc, "<style>")
			body := strings.Index(doc, "<body>")
			assert.True(t, head < style && style < body, "header, style, body out of order")
		})
	}
}

func TestAssembleParses(t *testing.T) {
	doc := Assemble(buffer.Set{Markup: "<p class=\"x\">hi</p>", Style: "p{color:red}", Script: "console.log('ok')"})

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc.String()))
	require.NoError(t, err)

	assert.Equal(t, "hi", parsed.Find("body p.x").Text())
	assert.Equal(t, "p{color:red}", parsed.Find("head style").Text())

	scripts := parsed.Find("script")
	require.Equal(t, 1, scripts.Length())
	assert.Contains(t, scripts.Text(), "window.parent.postMessage")
	assert.Contains(t, scripts.Text(), "try {\nconsole.log('ok')\n} catch (err)")
}

func TestAssembleWrapsUserScript(t *testing.T) {
	doc := Assemble(buffer.Set{Script: "throw new Error('x')"}).String()

	assert.Contains(t, doc, "try {\nthrow new Error('x')\n} catch (err) {")
	assert.Contains(t, doc, "console.error('"+RuntimeErrorPrefix+"'")
	assert.Contains(t, doc, "window.onerror")
}

func TestGuarded(t *testing.T) {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(Assemble(buffer.Set{Script: "f()"}).String()))
	require.NoError(t, err)

	tests := []struct {
		name   string
		script string
		want   bool
	}{
		{"assembled script", parsed.Find("script").Text(), true},
		{"markup script", "console.log('inline')", false},
		{"hand-written catch", "try { f() } catch (err) { console.error(err) }", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Guarded(tt.script))
		})
	}
}
