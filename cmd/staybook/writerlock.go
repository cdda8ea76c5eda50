package main

import (
	"encoding/json"
	"os"

	"github.com/smallbiznis/staybook/internal/brand"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/writerlock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type brandWriter struct {
	Brand            string `json:"brand"`
	Mode             string `json:"mode"`
	DesignatedWriter string `json:"designatedWriter"`
}

func writerLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "writer-lock",
		Short: "Print the writer table and the mode configured for each brand",
		Long: `Print the mode to writer table and the resolved writer for every brand,
read from brands.yml and STAYBOOK_* overrides. Run it on both deployments
and compare: the output must match.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			holder, err := config.NewBookingConfigHolder(config.Load(), zap.NewNop())
			if err != nil {
				return err
			}
			current := holder.Get()

			out := struct {
				TableVersion string                  `json:"tableVersion"`
				Table        []writerlock.Assignment `json:"table"`
				Brands       []brandWriter           `json:"brands"`
			}{
				TableVersion: writerlock.TableVersion,
				Table:        writerlock.Table(),
			}
			for _, b := range brand.All() {
				policy, ok := current.Brands[b]
				if !ok {
					continue
				}
				writer, _ := writerlock.DesignatedWriter(policy.Mode)
				out.Brands = append(out.Brands, brandWriter{
					Brand:            b.String(),
					Mode:             string(policy.Mode),
					DesignatedWriter: string(writer),
				})
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
