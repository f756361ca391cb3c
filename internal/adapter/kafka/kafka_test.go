package kafka

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/raster-pipeline/internal/config"
	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2025, 11, 5, 6, 0, 0, 0, time.UTC)
	event := pipeline.ArtifactEvent{
		RunID:       "run-1",
		Product:     "seas5",
		Name:        "precip_em_i2025-11-01_lt2.tif",
		Key:         "seas5/monthly/processed/precip_em_i2025-11-01_lt2.tif",
		Location:    "https://acct.blob.core.windows.net/raster",
		Date:        time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		Leadtime:    func() *int { v := 2; return &v }(),
		PublishedAt: now,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte(event.Key), msg.Key)
	assert.Contains(t, string(msg.Value), `"leadtime":2`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "product", msg.Headers[0].Key)
	assert.Equal(t, []byte("seas5"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var got pipeline.ArtifactEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, event.RunID, got.RunID)
	assert.True(t, event.Date.Equal(got.Date))
}

func TestSerializeToMessage_NoLeadtime(t *testing.T) {
	msg, err := serializeToMessage(pipeline.ArtifactEvent{Product: "era5", Key: "era5/monthly/processed/x.tif"})
	require.NoError(t, err)
	assert.NotContains(t, string(msg.Value), "leadtime")
}

func TestNewNotifier(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"localhost:9092", "localhost:9093"}, KafkaTopic: "raster-artifacts"}
	n := NewNotifier(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = n.Close() })

	assert.Equal(t, "raster-artifacts", n.writer.Topic)
	assert.Equal(t, kafkago.RequireAll, n.writer.RequiredAcks)
}
