package sink

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// Config holds the InfluxDB connection parameters.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Influx writes readings to an InfluxDB 2.x bucket using the blocking
// write API, one point per reading.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	logger *zap.Logger
}

func NewInflux(cfg Config, logger *zap.Logger) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger,
	}
}

func (s *Influx) Write(ctx context.Context, readings []types.Reading) error {
	points := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		// NaN marks "no valid value this cycle"; Influx rejects NaN fields.
		if !r.Valid() {
			s.logger.Debug("Skipping invalid reading",
				zap.String("device", r.DeviceID),
				zap.String("channel", r.ChannelID))
			continue
		}
		points = append(points, influxdb2.NewPoint(
			r.Measurement,
			r.Tags,
			map[string]interface{}{r.FieldKey: r.Value},
			r.Time,
		))
	}
	if len(points) == 0 {
		return nil
	}
	return s.write.WritePoint(ctx, points...)
}

func (s *Influx) Close() {
	s.client.Close()
}
