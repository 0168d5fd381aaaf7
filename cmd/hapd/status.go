package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/hapd/internal/hostio"
	"github.com/srg/hapd/internal/pairing"
	"github.com/srg/hapd/internal/storage"
)

var statusCfg struct {
	storageDir string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted pairing and configuration state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusCfg.storageDir, "storage-dir", "./hap-data", "Directory the server persists its state to")
}

func runStatus(_ *cobra.Command, _ []string) error {
	backing, err := hostio.NewFileStorage(statusCfg.storageDir)
	if err != nil {
		return fmt.Errorf("hapd: %w", err)
	}

	store, err := pairing.NewStore(backing)
	if err != nil {
		return fmt.Errorf("hapd: %w", err)
	}

	configNumber, err := storage.LoadConfigNumber(backing)
	if err != nil {
		return fmt.Errorf("hapd: %w", err)
	}
	gsn, err := storage.LoadGSN(backing)
	if err != nil {
		return fmt.Errorf("hapd: %w", err)
	}

	bold := color.New(color.Bold)
	if store.IsEmpty() {
		bold.Println("Pairing: not paired")
	} else {
		bold.Printf("Pairing: paired (%d controller(s))\n", store.Len())
		store.Range(func(id string, rec pairing.Record) bool {
			role := "regular"
			if rec.Admin {
				role = "admin"
			}
			fmt.Printf("  - %s (%s)\n", id, role)
			return true
		})
	}

	fmt.Printf("Configuration number (c#): %d\n", configNumber)
	fmt.Printf("Global state number (s#): %d\n", gsn)
	return nil
}
