package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"farmfield/internal/fields"
	"farmfield/internal/geo"
	"farmfield/internal/selection"
	"farmfield/pkg/logging"
	pkgstrings "farmfield/pkg/strings"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// Output formats for field commands.
const (
	outputTable   = "table"
	outputJSON    = "json"
	outputGeoJSON = "geojson"
)

func newFieldsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List and select field boundaries",
		Long: `List the fields offered by a source and select one for the simulation.

The sample source uses the built-in catalog and needs no credentials. The
live source reads the configured organization from the provider API.

Examples:
  farmfield fields list --source sample
  farmfield fields select --source live --output geojson`,
	}

	cmd.AddCommand(newFieldsListCmd(opts))
	cmd.AddCommand(newFieldsSelectCmd(opts))
	return cmd
}

func newFieldsListCmd(opts *options) *cobra.Command {
	var sourceName, output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := fields.ParseSource(sourceName)
			if err != nil {
				return err
			}
			if output != outputTable && output != outputJSON {
				return fmt.Errorf("unsupported output %q for list (expected %s or %s)", output, outputTable, outputJSON)
			}
			svc, err := loadServices(cmd, opts)
			if err != nil {
				return err
			}

			summaries, err := svc.fields.ListAvailableFields(cmd.Context(), source)
			if err != nil {
				return err
			}

			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No fields found.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummaries(summaries, false))
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", string(fields.SourceSample), "Field source (sample, live)")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json)")
	return cmd
}

func newFieldsSelectCmd(opts *options) *cobra.Command {
	var sourceName, output string

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Choose a field and project it for the simulation",
		Long: `Choose a field interactively, fetch its boundary and project it into
local metres.

If a sample field cannot be loaded, or the sample selection is cancelled,
the built-in default field is used. A live selection that fails is aborted.

Exit codes:
  0  field ready
  2  authorization required
  3  authorization failed
  4  selection cancelled
  5  live selection aborted`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := fields.ParseSource(sourceName)
			if err != nil {
				return err
			}
			switch output {
			case outputTable, outputJSON, outputGeoJSON:
			default:
				return fmt.Errorf("unsupported output %q (expected %s, %s or %s)", output, outputTable, outputJSON, outputGeoJSON)
			}

			svc, err := loadServices(cmd, opts)
			if err != nil {
				return err
			}
			prompter, err := opts.newPrompter(cmd)
			if err != nil {
				return err
			}

			var fieldSource selection.FieldSource = svc.fields
			if !opts.quiet {
				fieldSource = &spinningSource{FieldSource: svc.fields, w: cmd.ErrOrStderr()}
			}

			flow := selection.New(fieldSource, prompter, svc.selectionConfig())
			outcome := flow.Run(cmd.Context(), source)

			switch outcome.Result {
			case selection.ResultCancelled:
				if source != fields.SourceSample || cmd.Context().Err() != nil {
					return selection.ErrCancelled
				}
				logging.Info("CLI", "Sample selection cancelled, using the default field")
				if !opts.quiet {
					fmt.Fprintln(cmd.ErrOrStderr(), "Selection cancelled, using the default field.")
				}
				outcome = flow.Default(source, "", selection.ErrCancelled)
			case selection.ResultAborted:
				return &AbortedError{Err: outcome.Err}
			}
			return writeOutcome(cmd.OutOrStdout(), outcome, output)
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", string(fields.SourceSample), "Field source (sample, live)")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json, geojson)")
	return cmd
}

// spinningSource shows a spinner while a boundary is fetched.
type spinningSource struct {
	selection.FieldSource
	w io.Writer
}

func (s *spinningSource) FetchBoundary(ctx context.Context, source fields.Source, fieldID string) (*fields.Boundary, error) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.w))
	sp.Suffix = " Fetching field boundary..."
	sp.Start()
	defer sp.Stop()

	return s.FieldSource.FetchBoundary(ctx, source, fieldID)
}

// selectedField is the JSON shape of a Ready outcome.
type selectedField struct {
	Name      string              `json:"name"`
	Width     float64             `json:"field_w"`
	Height    float64             `json:"field_h"`
	FieldID   string              `json:"field_id,omitempty"`
	Source    fields.Source       `json:"source"`
	Defaulted bool                `json:"defaulted"`
	Cause     string              `json:"cause,omitempty"`
	Projected *geo.ProjectedField `json:"projected,omitempty"`
}

func writeOutcome(w io.Writer, outcome selection.Outcome, output string) error {
	field, meta := outcome.Field, outcome.Metadata

	switch output {
	case outputJSON:
		out := selectedField{
			Name:      field.Name,
			Width:     field.Width,
			Height:    field.Height,
			FieldID:   meta.FieldID,
			Source:    meta.Source,
			Defaulted: meta.Defaulted,
			Projected: field.Projected,
		}
		if meta.Cause != nil {
			out.Cause = meta.Cause.Error()
		}
		return writeJSON(w, out)

	case outputGeoJSON:
		if field.Projected == nil {
			return fmt.Errorf("%s has no boundary to export", field.Name)
		}
		feature, err := field.Projected.Feature(meta.FieldID)
		if err != nil {
			return err
		}
		return writeJSON(w, feature)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendRow(table.Row{"Field", field.Name})
	t.AppendRow(table.Row{"Size", fmt.Sprintf("%.1f m × %.1f m", field.Width, field.Height)})
	t.AppendRow(table.Row{"Source", meta.Source})
	if meta.FieldID != "" {
		t.AppendRow(table.Row{"Field ID", meta.FieldID})
	}
	if p := field.Projected; p != nil {
		t.AppendRow(table.Row{"Origin", fmt.Sprintf("%.6f, %.6f", p.Origin.Lat, p.Origin.Lon)})
		t.AppendRow(table.Row{"Vertices", len(p.LocalRing)})
		t.AppendRow(table.Row{"Area", fmt.Sprintf("%.2f ha", p.Area()/10000)})
	}
	if meta.Defaulted {
		t.AppendRow(table.Row{"Note", text.FgYellow.Sprintf("default field used: %v", meta.Cause)})
	}
	fmt.Fprintln(w, t.Render())
	return nil
}

func renderSummaries(summaries []fields.Summary, numbered bool) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	header := table.Row{"ID", "NAME", "SOURCE", "AREA"}
	if numbered {
		header = append(table.Row{"#"}, header...)
	}
	t.AppendHeader(header)

	for i, s := range summaries {
		area := "-"
		if s.AreaHectares != nil {
			area = fmt.Sprintf("%.2f ha", *s.AreaHectares)
		}
		row := table.Row{s.ID, pkgstrings.Truncate(s.Name, pkgstrings.DefaultNameMaxLen), s.Source, area}
		if numbered {
			row = append(table.Row{i + 1}, row...)
		}
		t.AppendRow(row)
	}
	return t.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logging.Debug("CLI", "Failed to encode output: %v", err)
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
