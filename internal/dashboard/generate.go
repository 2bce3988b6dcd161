// Package dashboard renders a Grafana dashboard for the simulator metrics.
package dashboard

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"mpd-sim/internal/telemetry"
)

//go:embed templates/*.tmpl
var content embed.FS

const templateName = "grafana-dashboard.json.tmpl"

// grafanaUnits maps field units to Grafana unit ids.
var grafanaUnits = map[string]string{
	"gpm": "flowgpm",
	"psi": "pressurepsi",
	"%":   "percent",
}

type target struct {
	RefID   string
	Legend  string
	Channel telemetry.Channel
	Field   string
}

type panel struct {
	ID      int
	Title   string
	Unit    string
	X, Y    int
	Targets []target
}

type data struct {
	WellID string
	Panels []panel
}

func panels(specs []telemetry.ChannelSpec) []panel {
	out := make([]panel, 0, len(specs))
	for i, spec := range specs {
		p := panel{
			ID:    i + 3,
			Title: string(spec.Channel),
			Unit:  "none",
			X:     (i % 2) * 12,
			Y:     4 + (i/2)*8,
		}
		units := map[string]bool{}
		for j, f := range spec.Fields {
			units[f.Unit] = true
			p.Targets = append(p.Targets, target{
				RefID:   string(rune('A' + j)),
				Legend:  strings.TrimSpace(f.Name + " " + f.Unit),
				Channel: spec.Channel,
				Field:   f.Name,
			})
		}
		// Mixed units share the axis without a unit.
		if len(units) == 1 && len(spec.Fields) > 0 {
			if u, ok := grafanaUnits[spec.Fields[0].Unit]; ok {
				p.Unit = u
			}
		}
		out = append(out, p)
	}
	return out
}

// Render writes grafana-dashboard.json for wellID and specs into outDir.
// The Prometheus datasource UID is read from PROMETHEUS_DATASOURCE_UID.
func Render(outDir, wellID string, specs []telemetry.ChannelSpec) (string, error) {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}
	t, err := template.New(templateName).Funcs(funcMap).ParseFS(content, "templates/"+templateName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	outPath := filepath.Join(outDir, strings.TrimSuffix(templateName, ".tmpl"))
	f, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	if err := t.Execute(f, data{WellID: wellID, Panels: panels(specs)}); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return outPath, nil
}
