package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/glizzus/harmony/internal/config"
	"github.com/glizzus/harmony/internal/datalayer"
	"github.com/glizzus/harmony/internal/generator"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/urfave/cli/v2"
)

var stdinReader = bufio.NewReader(os.Stdin)

var uuidGenerator = generator.UUIDV4Generator{}

func prompt(label string) string {
	fmt.Printf("%s: ", label)
	input, _ := stdinReader.ReadString('\n')
	return strings.TrimSpace(input)
}

var guildFlag = &cli.StringFlag{
	Name:     "guild-id",
	Usage:    "ID of the guild",
	Required: true,
}

// openRepository connects to Postgres and migrates it. The pool lives until
// the process exits.
func openRepository(c *cli.Context) (*repository.PostgresSoundCronRepository, error) {
	pool, err := datalayer.NewPostgresPoolFromEnv(c.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}
	return repository.NewPostgresSoundCronRepository(pool), nil
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "harmony-cli",
		Description: "A development CLI tool for testing Harmony without Discord",
		Commands: []*cli.Command{
			listCommand(),
			addCommand(),
			deleteCommand(),
			upcomingCommand(),
			playCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
