package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/apitosql/internal/config"
)

func newRentalContractsCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rental-contracts",
		Short: "Load the rental contracts of every property unit",
		Long: `Lists property units, follows each unit to its rental contracts and stores
up to maxNoOfEntries (1-10) contract documents.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{variantAnnotation: string(config.VariantRentalContracts)},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.load(cmd, false)
		},
	}
}

func newValuationsCmd(s *session) *cobra.Command {
	var flatten bool
	cmd := &cobra.Command{
		Use:   "valuations",
		Short: "Load the DCF valuations of one project",
		Long: `Lists the master and non-master DCF valuations of the project named by the
project variable and stores up to maxNoOfEntries (1-9999) valuation documents
with their area units expanded.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{variantAnnotation: string(config.VariantValuations)},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.load(cmd, flatten)
		},
	}
	cmd.Flags().BoolVar(&flatten, "flatten", false, "rebuild public.Mietobjekte after loading")
	return cmd
}

func newFlattenCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "flatten",
		Short: "Rebuild public.Mietobjekte from the stored valuations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.resolve()
			if err != nil {
				return err
			}
			return a.Flatten(cmd.Context())
		},
	}
}

func (s *session) load(cmd *cobra.Command, flatten bool) error {
	a, err := s.resolve()
	if err != nil {
		return err
	}
	if _, err := a.Run(cmd.Context(), flatten); err != nil {
		return fmt.Errorf("run %s: %w", cmd.Name(), err)
	}
	return nil
}
