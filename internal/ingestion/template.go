package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Columns maps logical fields to the header names used by one acquirer.
type Columns struct {
	NSU         string `yaml:"nsu" json:"nsu"`
	Amount      string `yaml:"amount" json:"amount"`
	Installment string `yaml:"installment" json:"installment"`
	// InstallmentTotal may be empty when Installment carries "n/m".
	InstallmentTotal string `yaml:"installment_total" json:"installment_total,omitempty"`
	Brand            string `yaml:"brand" json:"brand"`
	Date             string `yaml:"date" json:"date"`
}

// Template describes the statement layout of one acquirer.
type Template struct {
	ID           string  `yaml:"id" json:"id"`
	AcquirerID   string  `yaml:"acquirer_id" json:"acquirer_id"`
	Version      string  `yaml:"version" json:"version"`
	Format       string  `yaml:"format" json:"format"`
	Delimiter    string  `yaml:"delimiter" json:"delimiter,omitempty"`
	DecimalComma bool    `yaml:"decimal_comma" json:"decimal_comma"`
	DateLayout   string  `yaml:"date_layout" json:"date_layout"`
	Sheet        string  `yaml:"sheet" json:"sheet,omitempty"`
	Columns      Columns `yaml:"columns" json:"columns"`
}

// Validate fills defaults and checks that every required column is declared.
func (t *Template) Validate() error {
	if t.ID == "" || t.AcquirerID == "" {
		return domain.NewError(domain.KindTemplateMismatch, "template id and acquirer_id are required", t.ID)
	}
	if t.Version == "" {
		t.Version = "1"
	}
	t.Format = strings.ToLower(strings.TrimSpace(t.Format))
	if t.Format == "" {
		t.Format = FormatCSV
	}
	if t.Format != FormatCSV && t.Format != FormatXLSX {
		return domain.NewError(domain.KindTemplateMismatch, fmt.Sprintf("unsupported format %q", t.Format), t.ID)
	}
	if t.Delimiter == "" {
		t.Delimiter = ","
	}
	if len([]rune(t.Delimiter)) != 1 {
		return domain.NewError(domain.KindTemplateMismatch, fmt.Sprintf("delimiter must be one character, got %q", t.Delimiter), t.ID)
	}
	if t.DateLayout == "" {
		t.DateLayout = "2006-01-02"
	}

	var missing []string
	for name, col := range map[string]string{
		"nsu":         t.Columns.NSU,
		"amount":      t.Columns.Amount,
		"installment": t.Columns.Installment,
		"brand":       t.Columns.Brand,
		"date":        t.Columns.Date,
	} {
		if strings.TrimSpace(col) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return domain.NewError(domain.KindTemplateMismatch,
			fmt.Sprintf("template %s does not map required columns", t.ID), missing...)
	}
	return nil
}

// Registry holds the loaded templates by id.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// LoadDir registers every *.yaml / *.yml file in dir.
func LoadDir(dir string) (*Registry, error) {
	reg := NewRegistry()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var t Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return reg, nil
}

// Register validates and adds a template, replacing one with the same id.
func (r *Registry) Register(t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.templates[t.ID] = t
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(id string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return Template{}, domain.NewError(domain.KindNotFound, "template not found", id)
	}
	return t, nil
}

// List returns the templates ordered by id.
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
