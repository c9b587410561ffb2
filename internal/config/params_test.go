package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

func TestDefaultConfigMatchesDefaultParams(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	if p != findfoci.DefaultParams() {
		t.Errorf("defaults file differs from DefaultParams:\n got %+v\nwant %+v", p, findfoci.DefaultParams())
	}
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	p, err := (&ParamsConfig{}).Params()
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	if p != findfoci.DefaultParams() {
		t.Errorf("empty config = %+v, want defaults", p)
	}
	if got := (&ParamsConfig{}).GetMinSize(); got != 5 {
		t.Errorf("GetMinSize() = %d, want 5", got)
	}
}

func TestLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "params.json")
	testJSON := `{
  "background_method": "std_dev_above_mean",
  "background_parameter": 2.5,
  "min_size": 12,
  "sort_index": "max_value",
  "remove_edge_maxima": true
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	if p.BackgroundMethod != findfoci.BackgroundStdDevAboveMean {
		t.Errorf("BackgroundMethod = %v, want std_dev_above_mean", p.BackgroundMethod)
	}
	if p.BackgroundParameter != 2.5 {
		t.Errorf("BackgroundParameter = %v, want 2.5", p.BackgroundParameter)
	}
	if p.MinSize != 12 {
		t.Errorf("MinSize = %d, want 12", p.MinSize)
	}
	if p.SortIndex != findfoci.SortMaxValue {
		t.Errorf("SortIndex = %v, want max_value", p.SortIndex)
	}
	if !p.RemoveEdgeMaxima {
		t.Error("RemoveEdgeMaxima = false, want true")
	}
	// Unset fields keep their defaults.
	if p.PeakParameter != 0.5 {
		t.Errorf("PeakParameter = %v, want default 0.5", p.PeakParameter)
	}
}

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "params.yaml")
	testYAML := `
search_method: fraction-of-peak-minus-background
search_parameter: 0.4
mask_method: fraction_of_height
fraction_parameter: 0.25
max_peaks: 0
`
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	if p.SearchMethod != findfoci.SearchFractionOfPeakMinusBackground {
		t.Errorf("SearchMethod = %v", p.SearchMethod)
	}
	if p.SearchParameter != 0.4 || p.FractionParameter != 0.25 {
		t.Errorf("parameters = %v, %v", p.SearchParameter, p.FractionParameter)
	}
	if p.MaskMethod != findfoci.MaskFractionOfHeight {
		t.Errorf("MaskMethod = %v", p.MaskMethod)
	}
	if p.MaxPeaks != 0 {
		t.Errorf("MaxPeaks = %d, want 0", p.MaxPeaks)
	}
}

func TestLoadErrors(t *testing.T) {
	tmpDir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(tmpDir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", "/nonexistent/path/params.json", "stat"},
		{"extension", write("params.txt", "{}"), "extension"},
		{"invalid json", write("bad.json", `{"min_size": "x"`), "parse"},
		{"invalid yaml", write("bad.yaml", "min_size: [1"), "parse"},
		{"bad enum", write("enum.json", `{"sort_index": "loudness"}`), "invalid configuration"},
		{"negative", write("neg.json", `{"min_size": -1}`), "invalid configuration"},
		{"too large", write("big.json", `{"x":"`+strings.Repeat("a", maxFileSize)+`"}`), "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *ParamsConfig
		wantErr bool
	}{
		{"empty config is valid", &ParamsConfig{}, false},
		{"defaults", FromParams(findfoci.DefaultParams()), false},
		{"negative blur", &ParamsConfig{GaussianBlur: ptrFloat64(-1)}, true},
		{"negative max peaks", &ParamsConfig{MaxPeaks: ptrInt(-3)}, true},
		{"unknown method", &ParamsConfig{PeakMethod: ptrString("steep")}, true},
		{"fraction out of range", &ParamsConfig{MaskMethod: ptrString("fraction_of_intensity"), FractionParameter: ptrFloat64(1.5)}, true},
		{"fraction ignored without mask fraction", &ParamsConfig{MaskMethod: ptrString("peaks"), FractionParameter: ptrFloat64(1.5)}, false},
		{"empty enum string uses default", &ParamsConfig{SortIndex: ptrString("")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, findfoci.ErrInvalidParams) {
				t.Errorf("Validate() error %v does not wrap ErrInvalidParams", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	p := findfoci.DefaultParams()
	p.GaussianBlur = 1.5
	p.CentroidMethod = findfoci.CentroidCentreOfMassOriginal
	p.ShowLogMessages = true

	for _, name := range []string{"params.json", "params.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := FromParams(p).Save(path); err != nil {
				t.Fatalf("Save() error: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			got, err := cfg.Params()
			if err != nil {
				t.Fatalf("Params() error: %v", err)
			}
			if got != p {
				t.Errorf("round trip:\n got %+v\nwant %+v", got, p)
			}
		})
	}

	if err := FromParams(p).Save(filepath.Join(t.TempDir(), "params.ini")); err == nil {
		t.Error("expected extension error")
	}
}
