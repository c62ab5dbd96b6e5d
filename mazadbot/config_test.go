package mazadbot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[bot]
token = "test-token"
dev_guilds = [123456789]

[db]
host = "localhost"
port = 5432
user = "mazad"
password = "secret"
database = "mazad"
pool_size = 10

[local_db]
path = "fallback.db"

[auction]
inactivity_threshold_seconds = 45
min_bid_amount = 5000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "test-token", cfg.Bot.Token)
	require.Equal(t, "localhost", cfg.DB.Host)
	require.Equal(t, "fallback.db", cfg.LocalDB.Path)

	// Explicit values override defaults; the rest keep them.
	require.Equal(t, 45*time.Second, cfg.Auction.InactivityThreshold())
	require.Equal(t, int64(5_000), cfg.Auction.MinBidAmount)
	require.Equal(t, 3*time.Second, cfg.Auction.Countdown())
	require.Equal(t, 500*time.Millisecond, cfg.Auction.PanelUpdateDelay())
	require.Equal(t, 2*time.Second, cfg.Auction.BidCooldown())
	require.Equal(t, int64(1_000_000_000_000), cfg.Auction.MaxBidAmount)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
