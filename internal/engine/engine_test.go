package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dailytrack/dailytrack/internal/api"
	"github.com/dailytrack/dailytrack/internal/auth"
	"github.com/dailytrack/dailytrack/internal/broadcast"
	"github.com/dailytrack/dailytrack/internal/model"
	"github.com/dailytrack/dailytrack/internal/storage"
	"github.com/dailytrack/dailytrack/pkg/client"
)

func waitUntil(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// TestRealtimeCacheConvergence runs the full loop over a real server: a
// mutation through one session reaches a second connected device, whose
// cache invalidates and refetches the job list.
func TestRealtimeCacheConvergence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	store := storage.NewMemoryStorage()
	hub := broadcast.NewHub(broadcast.DefaultConfig())
	sessions := auth.NewSessions(auth.DefaultConfig())
	apiServer := api.NewAPI(api.DefaultConfig(), store, hub, sessions, auth.LogSender{})
	hub.RegisterHandler(apiServer.App())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go apiServer.App().Listener(ln)
	defer apiServer.App().Shutdown()

	baseURL := "http://" + ln.Addr().String()
	wsURL := "ws://" + ln.Addr().String() + "/ws"
	ctx := context.Background()

	// The desktop session creates the account.
	desktop := client.New(baseURL)
	_, err = desktop.Register(ctx, "pat", "pat@example.com", "", "secret123")
	require.NoError(t, err)

	// A second device logs into the same account and opens the realtime
	// channel.
	device, err := client.NewSync(baseURL, wsURL, 16)
	require.NoError(t, err)
	_, err = device.Client.Login(ctx, "pat@example.com", "secret123")
	require.NoError(t, err)

	// Prime the device cache with the empty job list.
	value, err := device.Cache.Get(ctx, client.CacheKeyJobs)
	require.NoError(t, err)
	require.Empty(t, value.([]*model.Job))

	device.Start()
	defer device.Close()
	waitUntil(t, func() bool { return hub.ClientCount() == 1 })

	created, err := desktop.CreateJob(ctx, model.InsertJob{
		URL:     "https://jobs.lever.co/stripe/devops-engineer",
		Title:   "DevOps Engineer",
		Company: "Stripe",
	})
	require.NoError(t, err)

	// The broadcast-triggered refetch converges the device cache on the
	// new record.
	waitUntil(t, func() bool {
		value, err := device.Cache.Get(ctx, client.CacheKeyJobs)
		if err != nil {
			return false
		}
		jobs, ok := value.([]*model.Job)
		return ok && len(jobs) == 1 && jobs[0].ID == created.ID
	})
}
