package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/cargoroute/tracker/config"
	"github.com/cargoroute/tracker/infra/logger"
)

var (
	simVehicles int
	simInterval time.Duration
	simLat      float64
	simLon      float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish synthetic location pings over MQTT",
	RunE:  simulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simVehicles, "vehicles", 5, "number of vehicle ids to simulate")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 2*time.Second, "delay between pings")
	simulateCmd.Flags().Float64Var(&simLat, "lat", 40.4168, "starting latitude")
	simulateCmd.Flags().Float64Var(&simLon, "lon", -3.7038, "starting longitude")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New("simulator")

	opts := paho.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID + "-sim")
	cli := paho.NewClient(opts)
	if tok := cli.Connect(); tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", tok.Error())
	}
	defer cli.Disconnect(250)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(simInterval)
	defer ticker.Stop()

	logg.Infof("simulating %d vehicles every %s", simVehicles, simInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			id := int64(1 + rng.Intn(simVehicles))
			var (
				topic   string
				payload []byte
			)
			// Roughly one in ten pings is a status change instead.
			if rng.Intn(10) == 0 {
				statuses := []string{"available", "in_transit", "delivering"}
				topic = fmt.Sprintf("fleet/vehicle/%d/status", id)
				payload, _ = json.Marshal(map[string]string{"status": statuses[rng.Intn(len(statuses))]})
			} else {
				topic = fmt.Sprintf("fleet/vehicle/%d/location", id)
				payload, _ = json.Marshal(map[string]float64{
					"latitude":  simLat + rng.Float64()*0.1 - 0.05,
					"longitude": simLon + rng.Float64()*0.1 - 0.05,
				})
			}
			if tok := cli.Publish(topic, cfg.MQTT.QoS, false, payload); tok.Wait() && tok.Error() != nil {
				logg.Warnf("publish %s: %v", topic, tok.Error())
			}
		}
	}
}
