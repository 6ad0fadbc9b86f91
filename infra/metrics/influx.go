package metrics

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/cargoroute/tracker/core/metrics"
	"github.com/cargoroute/tracker/infra/logger"
)

// InfluxSink writes vehicle position history to an InfluxDB instance using
// the official client. Counter-style measurements stay in Prometheus; Influx
// only receives the time series worth querying later.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close flushes and shuts down the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordPosition writes one vehicle position point.
func (s *InfluxSink) RecordPosition(vehicleID int64, lat, lon float64, ts time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("vehicle_position").
		AddTag("vehicle_id", strconv.FormatInt(vehicleID, 10)).
		AddField("latitude", lat).
		AddField("longitude", lon).
		SetTime(ts)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.log.Errorf("write position point: %v", err)
	}
}

func (s *InfluxSink) RecordMutation(string, string, error)   {}
func (s *InfluxSink) RecordEvent(string)                     {}
func (s *InfluxSink) RecordSend(string, bool, time.Duration) {}
