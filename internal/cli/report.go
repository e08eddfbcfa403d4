package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kursadbilgin/docdrop/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

type reportItem struct {
	Index      int    `json:"index" yaml:"index"`
	Name       string `json:"name" yaml:"name"`
	Size       int64  `json:"size" yaml:"size"`
	State      string `json:"state" yaml:"state"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	DocumentID string `json:"documentId,omitempty" yaml:"documentId,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

type rejectedFile struct {
	Name   string `json:"name" yaml:"name"`
	Reason string `json:"reason" yaml:"reason"`
}

type batchReport struct {
	Owner     string         `json:"owner" yaml:"owner"`
	Total     int            `json:"total" yaml:"total"`
	Succeeded int            `json:"succeeded" yaml:"succeeded"`
	Failed    int            `json:"failed" yaml:"failed"`
	Items     []reportItem   `json:"items" yaml:"items"`
	Rejected  []rejectedFile `json:"rejected,omitempty" yaml:"rejected,omitempty"`
}

func (r *batchReport) fill(batch domain.Batch) {
	r.Items = make([]reportItem, 0, len(batch.Items))
	for _, item := range batch.Items {
		r.Items = append(r.Items, reportItem{
			Index:      item.Index,
			Name:       item.Handle.Name,
			Size:       item.Handle.Size,
			State:      item.State.String(),
			Path:       item.Path,
			DocumentID: item.DocumentID,
			Error:      item.ErrorDetail,
		})
		switch item.State {
		case domain.ItemStateSuccess:
			r.Succeeded++
		case domain.ItemStateError:
			r.Failed++
		}
	}
	r.Total = len(r.Items)
}

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("%w: unknown output format %q", domain.ErrValidation, format)
	}
}

func renderReport(w io.Writer, format string, report batchReport) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case outputTable:
		return renderTable(w, report)
	default:
		return validateOutput(format)
	}
}

func renderTable(w io.Writer, report batchReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tSTATE\tPATH\tDETAIL")
	for _, item := range report.Items {
		detail := item.DocumentID
		if item.Error != "" {
			detail = item.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", item.Index, item.Name, item.State, item.Path, detail)
	}
	for _, r := range report.Rejected {
		fmt.Fprintf(tw, "-\t%s\tREJECTED\t\t%s\n", r.Name, r.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d uploaded, %d failed, %d rejected\n", report.Succeeded, report.Failed, len(report.Rejected))
	return err
}
