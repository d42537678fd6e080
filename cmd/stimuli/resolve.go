package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marinraf/StimuliApp-sub001/internal/design"
	"github.com/marinraf/StimuliApp-sub001/internal/orchestrator"
	"github.com/marinraf/StimuliApp-sub001/internal/resolver"
	"github.com/marinraf/StimuliApp-sub001/internal/rng"
)

var (
	resolveSection string
	resolveSeeds   []string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <design>",
	Short: "Print the resolved trials of every section as JSON",
	Long: `Resolves the trial order of a design without running it. Seeds
that are neither authored nor given with --seed are drawn and printed, so
the output can be replayed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var validateCmd = &cobra.Command{
	Use:   "validate <design>",
	Short: "Check a design for problems",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveSection, "section", "", "resolve only this section")
	resolveCmd.Flags().StringArrayVar(&resolveSeeds, "seed", nil, "seed override as key=value, e.g. section/main=42")
}

// parseSeeds reads key=value seed overrides.
func parseSeeds(pairs []string) (rng.Seeds, error) {
	seeds := rng.Seeds{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid seed %q, want key=value", pair)
		}
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", pair, err)
		}
		seeds[key] = v
	}
	return seeds, nil
}

type resolveOutput struct {
	Design   string                          `json:"design"`
	Seeds    map[string]string               `json:"seeds"`
	Sections map[string]*resolver.Resolution `json:"sections"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	seeds, err := parseSeeds(resolveSeeds)
	if err != nil {
		return err
	}
	doc, err := design.Load(args[0])
	if err != nil {
		return err
	}
	rt, err := orchestrator.NewRuntime(doc, orchestrator.Options{Seeds: seeds})
	if err != nil {
		return err
	}

	out := resolveOutput{
		Design:   doc.Name,
		Seeds:    map[string]string{},
		Sections: map[string]*resolver.Resolution{},
	}
	for k, v := range rt.Seeds() {
		out.Seeds[k] = strconv.FormatUint(v, 10)
	}
	for i := range doc.Sections {
		id := doc.Sections[i].ID
		if resolveSection != "" && id != resolveSection {
			continue
		}
		res, _ := rt.Resolution(id)
		out.Sections[id] = res
	}
	if resolveSection != "" && len(out.Sections) == 0 {
		return fmt.Errorf("section %q not found", resolveSection)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, err := design.Load(args[0])
	if err == nil {
		_, err = orchestrator.NewRuntime(doc, orchestrator.Options{})
	}

	var verr *design.ValidationError
	var cerr *orchestrator.ConfigurationError
	switch {
	case err == nil:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
		return nil
	case errors.As(err, &verr), errors.As(err, &cerr):
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", args[0], err)
		return fmt.Errorf("design %s is invalid", args[0])
	default:
		return err
	}
}
