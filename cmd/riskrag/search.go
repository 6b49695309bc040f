package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Marvins20/ai-ethics-multiagents/internal/app"
	"github.com/Marvins20/ai-ethics-multiagents/internal/cli"
	"github.com/Marvins20/ai-ethics-multiagents/internal/rag"
)

var (
	searchTopK       int
	searchSkipIngest bool
	projectDesc      string
	projectActions   []string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the risk or incident collection",
}

var searchRisksCmd = &cobra.Command{
	Use:   "risks [query]",
	Short: "Search AI risks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, a, err := prepareSearch(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		answer, err := a.Risks.Search(cmd.Context(), strings.Join(args, " "), searchTopK)
		if perr := p.Answer(answer); perr != nil {
			return perr
		}
		if errors.Is(err, rag.ErrRetrieverUnavailable) {
			return errors.New("risk collection is empty; run riskrag ingest")
		}
		return err
	},
}

var searchIncidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Search AI incidents for a project's actions",
	Long: `Searches the incident collection once per --action, in the context of the
--project description. Each incident result lists the source reports it references.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(projectDesc) == "" {
			return errors.New("--project is required")
		}
		if len(projectActions) == 0 {
			return errors.New("at least one --action is required")
		}
		p, a, err := prepareSearch(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if len(projectActions) == 1 {
			answer, err := a.Incidents.Search(cmd.Context(), projectDesc, projectActions[0], searchTopK)
			if err != nil {
				return err
			}
			return p.Answer(answer)
		}
		return p.ActionResults(a.Incidents.SearchActions(cmd.Context(), projectDesc, projectActions, searchTopK))
	},
}

// prepareSearch opens the app and, unless disabled, ingests sources not loaded yet.
func prepareSearch(cmd *cobra.Command) (*cli.Printer, *app.App, error) {
	p, err := printer(cmd)
	if err != nil {
		return nil, nil, err
	}
	a, err := openApp()
	if err != nil {
		return nil, nil, err
	}
	if !searchSkipIngest {
		if _, err := a.Ingest(cmd.Context(), ""); err != nil {
			_ = a.Close()
			return nil, nil, err
		}
	}
	return p, a, nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [references]",
	Short: "Show the source reports for reference numbers",
	Long: `Resolves reference numbers (1-based spreadsheet row numbers, header included) to
report records. Accepts "5,7", "[5, 7]" or separate arguments.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		list := strings.Join(args, ",")
		if len(args) == 1 {
			list = args[0]
		}
		if serverURL != "" {
			reports, err := resolveViaHTTP(cmd.Context(), serverURL, list)
			if err != nil {
				return err
			}
			return p.Reports(reports)
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Reports != nil {
			if _, err := a.Reports.EnsureLoaded(cmd.Context(), a.Config.Sources.Reports); err != nil {
				return err
			}
		}
		reports, _, err := a.Resolver.ResolveString(cmd.Context(), list)
		if err != nil {
			return err
		}
		return p.Reports(reports)
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the search tools exposed to agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return p.Tools(a.Tools.Tools())
	},
}

func init() {
	for _, c := range []*cobra.Command{searchRisksCmd, searchIncidentsCmd} {
		c.Flags().IntVarP(&searchTopK, "top-k", "k", 5, "maximum number of results")
		c.Flags().BoolVar(&searchSkipIngest, "skip-ingest", false, "search without ingesting missing collections first")
	}
	searchIncidentsCmd.Flags().StringVarP(&projectDesc, "project", "p", "", "project description")
	searchIncidentsCmd.Flags().StringArrayVarP(&projectActions, "action", "a", nil, "project action to analyze (repeatable)")
	resolveCmd.Flags().StringVar(&serverURL, "server", "", "resolve through a running server at this URL")
	searchCmd.AddCommand(searchRisksCmd, searchIncidentsCmd)
	rootCmd.AddCommand(searchCmd, resolveCmd, toolsCmd)
}
