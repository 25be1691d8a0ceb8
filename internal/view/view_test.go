package view

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/TimurManjosov/flagpage/internal/telemetry"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_File(t *testing.T) {
	p := writeFile(t, t.TempDir(), "index.html", `<p id="flagvalue">{{ .flagvalue }}</p>`)

	r, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := r.Names(); len(got) != 1 || got[0] != "index" {
		t.Errorf("Expected [index], got %v", got)
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "a")
	writeFile(t, dir, "about.tmpl", "b")
	writeFile(t, dir, "notes.txt", "ignored")

	r, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := strings.Join(r.Names(), ",")
	if got != "about,index" {
		t.Errorf("Expected about,index, got %s", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	empty := t.TempDir()

	broken := t.TempDir()
	writeFile(t, broken, "index.html", "{{ .flagvalue ")

	dup := t.TempDir()
	writeFile(t, dup, "index.html", "a")
	writeFile(t, dup, "index.tmpl", "b")

	tests := []struct {
		name string
		path string
	}{
		{"missing path", filepath.Join(t.TempDir(), "nope.html")},
		{"empty directory", empty},
		{"parse error", filepath.Join(broken, "index.html")},
		{"duplicate names", dup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Load(tt.path)
			if !errors.Is(err, ErrTemplateLoad) {
				t.Errorf("Expected ErrTemplateLoad, got %v", err)
			}
			if r != nil {
				t.Error("Expected nil renderer")
			}
		})
	}
}

func TestRender(t *testing.T) {
	p := writeFile(t, t.TempDir(), "index.html", `<p id="flagvalue">{{ .flagvalue }}</p>`)
	r, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for _, v := range []string{"true", "false"} {
		got := r.Render(View{Name: "index", Data: map[string]string{"flagvalue": v}})
		want := `<p id="flagvalue">` + v + `</p>`
		if got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}

func TestRender_EscapesData(t *testing.T) {
	p := writeFile(t, t.TempDir(), "index.html", `{{ .flagvalue }}`)
	r, _ := Load(p)

	got := r.Render(View{Name: "index", Data: map[string]string{"flagvalue": "<b>"}})
	if got != "&lt;b&gt;" {
		t.Errorf("Expected escaped value, got %s", got)
	}
}

func TestRender_SprigFunctions(t *testing.T) {
	p := writeFile(t, t.TempDir(), "index.html", `{{ .flagvalue | upper }}`)
	r, _ := Load(p)

	if got := r.Render(View{Name: "index", Data: map[string]string{"flagvalue": "true"}}); got != "TRUE" {
		t.Errorf("Expected TRUE, got %s", got)
	}
}

func TestRender_MissingKeyDegradesToErrorText(t *testing.T) {
	p := writeFile(t, t.TempDir(), "broken.html", `<p>{{ .absent }}</p>`)
	r, _ := Load(p)
	before := testutil.ToFloat64(telemetry.RenderErrors.WithLabelValues("broken"))

	got := r.Render(View{Name: "broken", Data: map[string]string{"flagvalue": "true"}})
	if got == "" || strings.Contains(got, "<p>") {
		t.Errorf("Expected error text instead of page, got %q", got)
	}
	if !strings.Contains(got, "absent") {
		t.Errorf("Expected error to mention the missing key, got %q", got)
	}
	after := testutil.ToFloat64(telemetry.RenderErrors.WithLabelValues("broken"))
	if after != before+1 {
		t.Errorf("Expected render error counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	p := writeFile(t, t.TempDir(), "index.html", "ok")
	r, _ := Load(p)

	got := r.Render(View{Name: "<missing>"})
	if !strings.Contains(got, "&lt;missing&gt;") {
		t.Errorf("Expected escaped error text, got %q", got)
	}
}

func TestRender_TemplateFunctions(t *testing.T) {
	p := writeFile(t, t.TempDir(), "index.html", `<p>{{ .flagvalue | upper }} {{ default "off" .missing }}</p>`)

	r, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := r.Render(View{Name: "index", Data: map[string]any{"flagvalue": "true", "missing": ""}})
	if got != "<p>TRUE off</p>" {
		t.Errorf("Expected <p>TRUE off</p>, got %s", got)
	}
}
