package main

import (
	"github.com/spf13/cobra"

	"tiersale/native/presale"
)

type scheduleOutput struct {
	Schedule presale.Schedule    `json:"schedule" yaml:"schedule"`
	HardCap  uint64              `json:"hardCap" yaml:"hardCap"`
	Tiers    []presale.TierQuote `json:"tiers" yaml:"tiers"`
}

// NewScheduleCommand prints the price table of a schedule. With --remote the
// schedule frozen into the node's sale is used instead of the flags.
func NewScheduleCommand(opts *RootOptions) *cobra.Command {
	schedule := presale.DefaultSchedule()
	var remote bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the tier price table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				view, err := opts.client().Schedule(cmd.Context())
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), opts.Output, view)
			}
			hardCap, err := schedule.HardCap()
			if err != nil {
				return err
			}
			tiers, err := schedule.Table()
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, scheduleOutput{
				Schedule: schedule,
				HardCap:  hardCap,
				Tiers:    tiers,
			})
		},
	}

	cmd.Flags().Uint64Var(&schedule.TierSize, "tier-size", schedule.TierSize, "units per tier")
	cmd.Flags().Uint64Var(&schedule.TierCount, "tier-count", schedule.TierCount, "number of tiers")
	cmd.Flags().Uint64Var(&schedule.InitialPrice, "initial-price", schedule.InitialPrice, "price of a unit in tier 0")
	cmd.Flags().Uint64Var(&schedule.GrowthNumerator, "growth-numerator", schedule.GrowthNumerator, "price growth numerator")
	cmd.Flags().Uint64Var(&schedule.GrowthDenominator, "growth-denominator", schedule.GrowthDenominator, "price growth denominator")
	cmd.Flags().BoolVar(&remote, "remote", false, "fetch the schedule from the node")
	return cmd
}
