package e2e

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glizzus/harmony/internal/config"
	"github.com/glizzus/harmony/internal/datalayer"
	"github.com/glizzus/harmony/internal/generator"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

var seedOnce sync.Once

type RandomSnowFlakeGenerator struct {
	counter uint64
}

func (g *RandomSnowFlakeGenerator) Next() (string, error) {
	const min = 1e17
	if g.counter < min {
		g.counter = min
	}
	id := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%d", id), nil
}

var _ generator.Generator[string] = (*RandomSnowFlakeGenerator)(nil)

// SeedGlobalNoise fills the database with soundcrons of unrelated guilds,
// once per test binary.
func SeedGlobalNoise(t *testing.T, repo *repository.PostgresSoundCronRepository) {
	t.Helper()
	seedOnce.Do(func() {
		uuidGen := generator.UUIDV4Generator{}
		guildIDGen := RandomSnowFlakeGenerator{}
		for i := range 100 {
			id, _ := uuidGen.Next()
			guildID, _ := guildIDGen.Next()

			soundCron := repository.SoundCron{
				ID:      id,
				Name:    fmt.Sprintf("noise-soundcron-%d", i),
				GuildID: guildID,
				Cron:    "*/5 * * * *",
			}

			err := repo.Save(t.Context(), soundCron)
			if err != nil {
				t.Fatalf("failed to save SoundCron: %v", err)
			}
		}
	})
}

// sharedContainer starts a container on first use and keeps it for the rest
// of the test binary.
type sharedContainer struct {
	once      sync.Once
	container testcontainers.Container
	value     string
	err       error
	wg        sync.WaitGroup
}

func (s *sharedContainer) use(t *testing.T, name string, start func(ctx context.Context) (testcontainers.Container, string, error)) string {
	t.Helper()
	s.once.Do(func() {
		s.container, s.value, s.err = start(context.Background())
	})
	if s.err != nil {
		t.Fatalf("failed to start %s container: %v", name, s.err)
	}
	s.wg.Add(1)
	t.Cleanup(s.wg.Done)
	return s.value
}

func (s *sharedContainer) terminate(name string) {
	s.wg.Wait()
	if s.container == nil {
		return
	}
	if err := s.container.Terminate(context.Background()); err != nil {
		fmt.Printf("failed to terminate %s container: %v", name, err)
	}
}

var (
	postgresShared sharedContainer
	redisShared    sharedContainer
	minioShared    sharedContainer
)

// UsePostgres signals that the test is using Postgres as its database.
// This will either provision or reuse a Postgres container for the test.
// Do not expect a clean state in the database; it is shared across tests
// to simulate real-world usage.
func UsePostgres(t *testing.T) string {
	t.Helper()
	return postgresShared.use(t, "postgres", func(ctx context.Context) (testcontainers.Container, string, error) {
		container, err := postgres.Run(
			ctx,
			"postgres",
			postgres.WithDatabase("harmony"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			return nil, "", err
		}
		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			return container, "", err
		}

		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return container, "", err
		}
		defer pool.Close()

		return container, connStr, datalayer.MigratePostgres(pool)
	})
}

// GetRepository creates a new PostgresSoundCronRepository for testing.
// It uses the provided connection string to connect to the database.
// It performs no modifications or migrations on the database schema.
func GetRepository(t *testing.T, connStr string) *repository.PostgresSoundCronRepository {
	t.Helper()
	pool, err := pgxpool.New(t.Context(), connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}

	t.Cleanup(pool.Close)
	return repository.NewPostgresSoundCronRepository(pool)
}

// UseRedis returns a client of a shared Redis container. Keys are not
// cleared between tests.
func UseRedis(t *testing.T) *redis.Client {
	t.Helper()
	connStr := redisShared.use(t, "redis", func(ctx context.Context) (testcontainers.Container, string, error) {
		container, err := tcredis.Run(ctx, "redis:7")
		if err != nil {
			return nil, "", err
		}
		connStr, err := container.ConnectionString(ctx)
		return container, connStr, err
	})

	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// UseMinio returns storage backed by a shared MinIO container.
func UseMinio(t *testing.T) *datalayer.MinioStorage {
	t.Helper()
	endpoint := minioShared.use(t, "minio", func(ctx context.Context) (testcontainers.Container, string, error) {
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "minio/minio:latest",
				ExposedPorts: []string{"9000/tcp"},
				Env: map[string]string{
					"MINIO_ROOT_USER":     "minioadmin",
					"MINIO_ROOT_PASSWORD": "minioadmin",
				},
				Cmd:        []string{"server", "/data"},
				WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
			},
			Started: true,
		})
		if err != nil {
			return nil, "", err
		}
		endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
		return container, endpoint, err
	})

	storage, err := datalayer.NewMinioStorage(&config.MinioConfig{
		Endpoint: endpoint,
		Username: "minioadmin",
		Password: "minioadmin",
		Bucket:   "harmony",
	})
	if err != nil {
		t.Fatalf("failed to create minio storage: %v", err)
	}
	if err := storage.EnsureBucket(t.Context()); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	return storage
}

// TerminateContainersForE2E stops every container started by the tests. It
// waits for the tests still using them.
func TerminateContainersForE2E() {
	postgresShared.terminate("postgres")
	redisShared.terminate("redis")
	minioShared.terminate("minio")
}
