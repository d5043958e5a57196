package ingest

import (
	"strings"
	"testing"
)

func TestExtractHTML(t *testing.T) {
	html := `<html><head>
		<title>Pricing</title>
		<script>alert("nope")</script>
		<style>body { color: red }</style>
	</head><body>
		<h1>Price list</h1>
		<p>Haircut: 45.00</p>
		<p>Beard trim: 20.00</p>
	</body></html>`

	text, err := ExtractHTML(strings.NewReader(html))
	if err != nil {
		t.Fatalf("ExtractHTML: %v", err)
	}

	for _, want := range []string{"Price list", "Haircut: 45.00", "Beard trim: 20.00"} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q:\n%s", want, text)
		}
	}
	for _, unwanted := range []string{"alert", "color: red"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("extracted text contains %q from script/style", unwanted)
		}
	}
}

func TestExtractHTMLSeparatesBlocks(t *testing.T) {
	html := `<div>First block</div><div>Second block</div>`

	text, err := ExtractHTML(strings.NewReader(html))
	if err != nil {
		t.Fatalf("ExtractHTML: %v", err)
	}
	if strings.Contains(text, "First blockSecond") {
		t.Errorf("block elements ran together: %q", text)
	}
}

func TestExtractPDFRejectsGarbage(t *testing.T) {
	if _, err := ExtractPDF([]byte("definitely not a pdf")); err == nil {
		t.Error("ExtractPDF accepted non-PDF data")
	}
}
