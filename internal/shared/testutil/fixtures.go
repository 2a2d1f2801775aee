package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Parameter is one SampleParameterResult entry of a result document.
type Parameter struct {
	ID    string
	Value string
}

// ResultDoc describes a result document to render with ResultXML. Empty
// SampleID or AnalysisDate leave the corresponding node out entirely.
type ResultDoc struct {
	SampleID     string
	AnalysisDate string
	Parameters   []Parameter
}

// ResultXML renders a result document in the analyzer's attribute-keyed form.
func ResultXML(doc ResultDoc) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<o t="SampleResult">` + "\n")
	b.WriteString("  <o t=\"SampleInfo\">\n")
	if doc.SampleID != "" {
		fmt.Fprintf(&b, "    <st n=\"FIELD_SID_SAMPLE_ID\">%s</st>\n", doc.SampleID)
	}
	if doc.AnalysisDate != "" {
		fmt.Fprintf(&b, "    <dt n=\"ANALYSIS_DATE\">%s</dt>\n", doc.AnalysisDate)
	}
	b.WriteString("  </o>\n")
	b.WriteString("  <c n=\"Parameters\">\n")
	for _, p := range doc.Parameters {
		b.WriteString("    <o t=\"SampleParameterResult\">\n")
		fmt.Fprintf(&b, "      <st n=\"Id\">%s</st>\n", p.ID)
		fmt.Fprintf(&b, "      <d n=\"Value\">%s</d>\n", p.Value)
		b.WriteString("    </o>\n")
	}
	b.WriteString("  </c>\n")
	b.WriteString("</o>\n")
	return b.String()
}

// IndexXML renders an archive index referencing files in order.
func IndexXML(files ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<archive>\n  <results>\n")
	for _, f := range files {
		fmt.Fprintf(&b, "    <result file=%q/>\n", f)
	}
	b.WriteString("  </results>\n</archive>\n")
	return b.String()
}

// WriteFiles writes name -> content into dir, creating subdirectories, and
// returns dir.
func WriteFiles(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return dir
}

// TarArchive builds an uncompressed tar holding files, in name order.
func TarArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range names {
		body := []byte(files[name])
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := tw.Write(body); err != nil {
			t.Fatalf("tar body %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

// ScenarioFiles is the two-sample archive used across packages: r1.xml has a
// sample id and TEMP, r2.xml a sample id, a date and PH, and the index also
// references missing.xml.
func ScenarioFiles() map[string]string {
	return map[string]string{
		"ar-0001.xml": IndexXML("r1.xml", "r2.xml", "missing.xml"),
		"r1.xml": ResultXML(ResultDoc{
			SampleID:   "S1",
			Parameters: []Parameter{{ID: "TEMP", Value: "36.6"}},
		}),
		"r2.xml": ResultXML(ResultDoc{
			SampleID:     "S2",
			AnalysisDate: "2024-01-01",
			Parameters:   []Parameter{{ID: "PH", Value: "7.2"}},
		}),
	}
}
