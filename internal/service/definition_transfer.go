package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/version"
	"github.com/jmylchreest/loopcast/pkg/duration"
)

// ExportFormatVersion is bumped when DefinitionExport changes shape.
const ExportFormatVersion = 1

// DefinitionExport is the YAML document written by Export.
type DefinitionExport struct {
	Version     int                    `yaml:"version"`
	ExportedAt  time.Time              `yaml:"exported_at"`
	Application string                 `yaml:"application"`
	Definitions []DefinitionExportItem `yaml:"definitions"`
}

// DefinitionExportItem is one definition in an export. Durations are
// written in human form ("1h30m", "2d").
type DefinitionExportItem struct {
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description,omitempty"`
	SourcePath   string           `yaml:"source_path"`
	StreamKey    models.StreamKey `yaml:"stream_key"`
	StartTime    *time.Time       `yaml:"start_time,omitempty"`
	CronSchedule string           `yaml:"cron_schedule,omitempty"`
	Duration     string           `yaml:"duration,omitempty"`
	EndTime      *time.Time       `yaml:"end_time,omitempty"`
	Enabled      *bool            `yaml:"enabled,omitempty"`
}

func exportItem(d *models.StreamDefinition) DefinitionExportItem {
	item := DefinitionExportItem{
		Name:         d.Name,
		Description:  d.Description,
		SourcePath:   d.SourcePath,
		StreamKey:    d.StreamKey,
		StartTime:    d.StartTime,
		CronSchedule: d.CronSchedule,
		EndTime:      d.EndTime,
		Enabled:      models.BoolPtr(d.IsEnabled()),
	}
	if d.Duration > 0 {
		item.Duration = duration.Format(d.Duration)
	}
	return item
}

func (i DefinitionExportItem) definition() (*models.StreamDefinition, error) {
	def := &models.StreamDefinition{
		Name:         i.Name,
		Description:  i.Description,
		SourcePath:   i.SourcePath,
		StreamKey:    i.StreamKey,
		StartTime:    i.StartTime,
		CronSchedule: i.CronSchedule,
		EndTime:      i.EndTime,
		Enabled:      i.Enabled,
	}
	if i.Duration != "" {
		d, err := duration.Parse(i.Duration)
		if err != nil {
			return nil, models.ErrValidation{Field: "duration", Message: err.Error()}
		}
		def.Duration = d
	}
	return def, def.Validate()
}

// Export writes every definition as YAML. Stream keys are included in
// clear text; the file is a secret.
func (s *DefinitionService) Export(ctx context.Context, w io.Writer) (int, error) {
	defs, err := s.repo.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	doc := DefinitionExport{
		Version:     ExportFormatVersion,
		ExportedAt:  s.now().UTC(),
		Application: version.Short(),
		Definitions: make([]DefinitionExportItem, 0, len(defs)),
	}
	for _, d := range defs {
		doc.Definitions = append(doc.Definitions, exportItem(d))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return 0, fmt.Errorf("encoding definitions: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("encoding definitions: %w", err)
	}
	return len(defs), nil
}

// ImportOptions configures Import.
type ImportOptions struct {
	// Overwrite replaces definitions whose name already exists. Otherwise
	// they are skipped.
	Overwrite bool
	// DryRun validates without writing.
	DryRun bool
}

// ImportError records why one item was rejected.
type ImportError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ImportResult summarises an import.
type ImportResult struct {
	Created []string      `json:"created"`
	Updated []string      `json:"updated"`
	Skipped []string      `json:"skipped"`
	Errors  []ImportError `json:"errors,omitempty"`
}

// Import reads a YAML export and stores its definitions. Invalid items are
// reported in the result and do not stop the import.
func (s *DefinitionService) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc DefinitionExport
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decoding definitions: empty document")
		}
		return nil, fmt.Errorf("decoding definitions: %w", err)
	}
	if doc.Version > ExportFormatVersion {
		return nil, fmt.Errorf("unsupported export version %d", doc.Version)
	}

	res := &ImportResult{}
	for _, item := range doc.Definitions {
		def, err := item.definition()
		if err != nil {
			res.Errors = append(res.Errors, ImportError{Name: item.Name, Error: err.Error()})
			continue
		}

		existing, err := s.repo.GetByName(ctx, def.Name)
		if err != nil {
			return res, err
		}
		switch {
		case existing != nil && !opts.Overwrite:
			res.Skipped = append(res.Skipped, def.Name)
		case existing != nil:
			def.ID = existing.ID
			if !opts.DryRun {
				if err := s.Update(ctx, def); err != nil {
					res.Errors = append(res.Errors, ImportError{Name: def.Name, Error: err.Error()})
					continue
				}
			}
			res.Updated = append(res.Updated, def.Name)
		default:
			if !opts.DryRun {
				if err := s.repo.Create(ctx, def); err != nil {
					res.Errors = append(res.Errors, ImportError{Name: def.Name, Error: err.Error()})
					continue
				}
			}
			res.Created = append(res.Created, def.Name)
		}
	}

	s.logger.InfoContext(ctx, "stream definitions imported",
		slog.Int("created", len(res.Created)),
		slog.Int("updated", len(res.Updated)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("errors", len(res.Errors)),
		slog.Bool("dry_run", opts.DryRun),
	)
	return res, nil
}
