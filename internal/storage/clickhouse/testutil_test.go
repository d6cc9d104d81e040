package clickhouse

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	clickhouseImage = "clickhouse/clickhouse-server:24.8-alpine"
	nativePort      = "9000/tcp"
	httpPort        = "8123/tcp"
)

// openArchive starts a ClickHouse server and returns a connection to a fresh
// archive database created by Open. Skipped with -short.
func openArchive(t *testing.T) *Conn {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        clickhouseImage,
			ExposedPorts: []string{nativePort, httpPort},
			Env:          map[string]string{"CLICKHOUSE_SKIP_USER_SETUP": "1"},
			WaitingFor: wait.ForAll(
				wait.ForHTTP("/ping").WithPort(httpPort),
				wait.ForListeningPort(nativePort),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, nativePort, "")
	require.NoError(t, err)

	dsn := (&url.URL{Scheme: "clickhouse", Host: endpoint, Path: "/archive"}).String()
	conn, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}
