package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/flagpage/internal/snapshot"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// Evaluation is one flag evaluated for one context, as printed by `flagpage eval`.
type Evaluation struct {
	Flag        string `json:"flag" yaml:"flag"`
	ContextKey  string `json:"contextKey" yaml:"contextKey"`
	ContextKind string `json:"contextKind" yaml:"contextKind"`
	Value       bool   `json:"value" yaml:"value"`
	Variant     string `json:"variant,omitempty" yaml:"variant,omitempty"`
	Reason      string `json:"reason" yaml:"reason"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// PrintFlags outputs flags sorted by key in the specified format
func PrintFlags(w io.Writer, flags map[string]snapshot.FlagView, format OutputFormat) error {
	list := make([]snapshot.FlagView, 0, len(flags))
	for _, f := range flags {
		list = append(list, f)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })

	switch format {
	case FormatJSON:
		return printJSON(w, map[string][]snapshot.FlagView{"flags": list})
	case FormatYAML:
		return printYAML(w, list)
	case FormatTable:
		return printFlagTable(w, list)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintEvaluation outputs a single evaluation in the specified format
func PrintEvaluation(w io.Writer, e Evaluation, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, e)
	case FormatYAML:
		return printYAML(w, e)
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("Flag", "Context", "Value", "Variant", "Reason")
		if err := table.Append(
			e.Flag,
			e.ContextKind+":"+e.ContextKey,
			fmt.Sprintf("%t", e.Value),
			e.Variant,
			e.Reason,
		); err != nil {
			return err
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printYAML(w io.Writer, data interface{}) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

func printFlagTable(w io.Writer, flags []snapshot.FlagView) error {
	table := tablewriter.NewWriter(w)
	table.Header("Key", "Enabled", "Rollout", "Variants", "Description", "Updated At")

	for _, flag := range flags {
		description := flag.Description
		if len(description) > 40 {
			description = description[:37] + "..."
		}

		variants := make([]string, 0, len(flag.Variants))
		for _, v := range flag.Variants {
			variants = append(variants, fmt.Sprintf("%s=%d", v.Name, v.Weight))
		}

		if err := table.Append(
			flag.Key,
			fmt.Sprintf("%t", flag.Enabled),
			fmt.Sprintf("%d%%", flag.Rollout),
			strings.Join(variants, ","),
			description,
			flag.UpdatedAt.Format("2006-01-02 15:04"),
		); err != nil {
			return err
		}
	}

	return table.Render()
}
