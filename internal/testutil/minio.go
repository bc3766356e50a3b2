package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/go-connections/nat"
)

const (
	MinioImage         = "minio/minio:latest"
	MinioContainerPort = "9000/tcp"
	MinioAccessKey     = "docparser"
	MinioSecretKey     = "docparser-secret"
)

// Minio describes a running MinIO test container.
type Minio struct {
	Endpoint  string // host:port
	AccessKey string
	SecretKey string
}

// URL returns the http base URL of the container.
func (m Minio) URL() string {
	return "http://" + m.Endpoint
}

// StartMinio runs a throwaway MinIO server for the duration of the test.
// Skipped under -short or when Docker is unavailable.
func StartMinio(t *testing.T) Minio {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MinIO container in short mode")
	}

	cli := DockerClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := cli.ImageInspect(ctx, MinioImage); err != nil {
		reader, err := cli.ImagePull(ctx, MinioImage, image.PullOptions{})
		if err != nil {
			t.Skipf("failed to pull %s: %v", MinioImage, err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	hostPort, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port for MinIO: %v", err)
	}

	containerConfig := &container.Config{
		Image: MinioImage,
		Cmd:   []string{"server", "/data"},
		Env: []string{
			"MINIO_ROOT_USER=" + MinioAccessKey,
			"MINIO_ROOT_PASSWORD=" + MinioSecretKey,
		},
		Labels: ContainerLabels(t),
		ExposedPorts: nat.PortSet{
			MinioContainerPort: struct{}{},
		},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			MinioContainerPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: hostPort},
			},
		},
	}

	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, UniqueContainerName(t, "minio"))
	if err != nil {
		t.Fatalf("failed to create MinIO container: %v", err)
	}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		t.Fatalf("failed to start MinIO container: %v", err)
	}

	m := Minio{
		Endpoint:  "127.0.0.1:" + hostPort,
		AccessKey: MinioAccessKey,
		SecretKey: MinioSecretKey,
	}
	if err := waitForMinio(ctx, m.URL(), 30*time.Second); err != nil {
		t.Fatalf("MinIO not ready: %v", err)
	}
	return m
}

// waitForMinio polls the liveness endpoint until MinIO answers.
func waitForMinio(ctx context.Context, baseURL string, timeout time.Duration) error {
	httpClient := &http.Client{Timeout: 2 * time.Second}
	url := baseURL + "/minio/health/live"

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(timeout/(500*time.Millisecond))),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
	)
}
