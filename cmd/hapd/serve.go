package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srg/hapd/internal/bleperipheral"
	"github.com/srg/hapd/internal/hostio"
	"github.com/srg/hapd/pkg/config"
	"github.com/srg/hapd/pkg/hap"
)

var serveCfg = config.DefaultConfig()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the accessory server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveCfg.StorageDir, "storage-dir", serveCfg.StorageDir, "Directory for persisted accessory state")
	serveCmd.Flags().StringVar(&serveCfg.AccessoryPairingID, "pairing-id", "11:22:33:44:55:66", "Accessory pairing ID (XX:XX:XX:XX:XX:XX)")
	serveCmd.Flags().StringVar(&serveCfg.SetupCode, "setup-code", "031-45-154", "Setup code (XXX-XX-XXX)")
	serveCmd.Flags().StringVar(&serveCfg.Model, "model", serveCfg.Model, "Accessory model string")
	serveCmd.Flags().Uint16Var(&serveCfg.Category, "category", 5, "Accessory category (5 = Lightbulb)")
	serveCmd.Flags().IntVar(&serveCfg.HTTPPort, "http-port", serveCfg.HTTPPort, "TCP port for the HTTP transport")
	serveCmd.Flags().BoolVar(&serveCfg.BLEEnabled, "ble", serveCfg.BLEEnabled, "Enable the BLE GATT transport")
	serveCmd.Flags().BoolP("verbose", "V", false, "Enable verbose (debug) logging")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	serveCfg.LogLevel = logger.GetLevel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, stopping")
		cancel()
	}()

	storage, err := hostio.NewFileStorage(serveCfg.StorageDir)
	if err != nil {
		return fmt.Errorf("hapd: %w", err)
	}

	var adapter *bleperipheral.Adapter
	if serveCfg.BLEEnabled {
		adapter, err = bleperipheral.New(logger.WithField("component", "ble"))
		if err != nil {
			logger.WithError(err).Warn("BLE unavailable, continuing with IP transport only")
			serveCfg.BLEEnabled = false
		}
	}

	hapCfg := hap.Config{
		AccessoryPairingID: serveCfg.AccessoryPairingID,
		SetupCode:          serveCfg.SetupCode,
		Category:           serveCfg.Category,
		Model:              serveCfg.Model,
		HTTPPort:           serveCfg.HTTPPort,
		BLEEnabled:         serveCfg.BLEEnabled,
		Storage:            storage,
		System:             hostio.NewSystem(),
		Network:            hostio.NewNetwork(logger.WithField("component", "network")),
		Log:                logger,
	}
	if serveCfg.BLEEnabled {
		hapCfg.Ble = adapter
	}

	server, err := hap.New(hapCfg)
	if err != nil {
		return fmt.Errorf("hapd: %w", err)
	}

	if err := server.AddAccessory(demoLightbulb(serveCfg.AccessoryPairingID, serveCfg.Model)); err != nil {
		return fmt.Errorf("hapd: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("hapd: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"pairing_id": serveCfg.AccessoryPairingID,
		"http_port":  serveCfg.HTTPPort,
		"ble":        serveCfg.BLEEnabled,
	}).Info("accessory server started")

	<-ctx.Done()
	return nil
}
