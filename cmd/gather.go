package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/intel-cli/internal/model"
	"github.com/sells-group/intel-cli/internal/provider"
)

var (
	gatherShopID       string
	gatherDomain       string
	gatherKeywords     []string
	gatherCapabilities []string
	gatherFixtures     string
	gatherOutput       string
)

var gatherCmd = &cobra.Command{
	Use:   "gather",
	Short: "Query every matching provider and print merged, normalized intel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if gatherFixtures != "" {
			cfg.Gather.FixturesPath = gatherFixtures
		}
		env, err := initIntel("gather")
		if err != nil {
			return err
		}

		req, err := buildGatherRequest(gatherShopID, gatherDomain, gatherKeywords, gatherCapabilities)
		if err != nil {
			return err
		}
		return runGather(ctx, cmd.OutOrStdout(), env, req, gatherOutput)
	},
}

func buildGatherRequest(shopID, domain string, keywords, capabilities []string) (provider.Request, error) {
	req := provider.Request{
		ShopID:   shopID,
		Domain:   domain,
		Keywords: keywords,
	}
	for _, raw := range capabilities {
		c, ok := model.ParseCapability(raw)
		if !ok {
			return provider.Request{}, eris.Errorf("unknown capability %q", raw)
		}
		req.Capabilities = append(req.Capabilities, c)
	}
	return req, nil
}

func runGather(ctx context.Context, w io.Writer, env *intelEnv, req provider.Request, format string) error {
	res, err := env.Gatherer.Gather(ctx, req)
	if err != nil && res == nil {
		return eris.Wrap(err, "gather")
	}
	if werr := writeOutput(w, format, res); werr != nil {
		return werr
	}
	return err
}

func init() {
	gatherCmd.Flags().StringVar(&gatherShopID, "shop", "", "shop id the request is made for")
	gatherCmd.Flags().StringVar(&gatherDomain, "domain", "", "competitor or shop domain")
	gatherCmd.Flags().StringSliceVar(&gatherKeywords, "keywords", nil, "keywords to research")
	gatherCmd.Flags().StringSliceVar(&gatherCapabilities, "capabilities", nil, "capabilities to request (default: all a provider supports)")
	gatherCmd.Flags().StringVar(&gatherFixtures, "fixtures", "", "YAML/JSON file of recorded payloads to serve as providers")
	gatherCmd.Flags().StringVarP(&gatherOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(gatherCmd)
}
