package main

import (
	"errors"
	"log"
	"strconv"

	"github.com/glizzus/harmony/internal/repository"
	"github.com/glizzus/harmony/internal/schedule"
	"github.com/urfave/cli/v2"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the soundcrons of a guild",
		Flags: []cli.Flag{guildFlag},
		Action: func(c *cli.Context) error {
			repo, err := openRepository(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			soundCrons, err := repo.List(c.Context, c.String("guild-id"))
			if err != nil {
				return cli.Exit("Failed to list soundcrons: "+err.Error(), 1)
			}
			if len(soundCrons) == 0 {
				log.Println("No soundcrons found for the specified guild.")
				return nil
			}
			for _, sc := range soundCrons {
				log.Printf("%s\t%s\t%s\t%d bytes", sc.ID, sc.Name, sc.Cron, sc.FileSize)
			}
			return nil
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a soundcron without uploading a clip",
		Flags: []cli.Flag{guildFlag},
		Action: func(c *cli.Context) error {
			repo, err := openRepository(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			name := prompt("Enter soundcron name")
			cron := prompt("Enter cron expression (e.g., '0 0 * * *')")
			if err := schedule.ValidateCron(cron); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fileSize, err := strconv.ParseInt(prompt("Enter file size in bytes (e.g., '1048576')"), 10, 64)
			if err != nil {
				return cli.Exit("Invalid file size: "+err.Error(), 1)
			}

			id, err := uuidGenerator.Next()
			if err != nil {
				return cli.Exit("Failed to generate an ID: "+err.Error(), 1)
			}

			sc := repository.SoundCron{
				ID:       id,
				GuildID:  c.String("guild-id"),
				Name:     name,
				Cron:     cron,
				FileSize: fileSize,
			}
			if err := repo.Save(c.Context, sc); err != nil {
				return cli.Exit("Failed to save soundcron: "+err.Error(), 1)
			}

			log.Printf("Soundcron %s added.", id)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a soundcron and its scheduled runs",
		ArgsUsage: "<soundcron-id>",
		Flags:     []cli.Flag{guildFlag},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return cli.Exit("Please provide a soundcron ID", 1)
			}
			repo, err := openRepository(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			err = repo.Delete(c.Context, c.String("guild-id"), id)
			if errors.Is(err, repository.ErrSoundCronNotFound) {
				return cli.Exit("No such soundcron in this guild", 1)
			}
			if err != nil {
				return cli.Exit("Failed to delete soundcron: "+err.Error(), 1)
			}

			log.Println("Soundcron deleted.")
			return nil
		},
	}
}

func upcomingCommand() *cli.Command {
	return &cli.Command{
		Name:      "upcoming",
		Usage:     "Show the scheduled runs of a soundcron",
		ArgsUsage: "<soundcron-id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return cli.Exit("Please provide a soundcron ID", 1)
			}
			repo, err := openRepository(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			jobs, err := repo.UpcomingJobs(c.Context, id)
			if err != nil {
				return cli.Exit("Failed to list runs: "+err.Error(), 1)
			}
			if len(jobs) == 0 {
				log.Println("No runs scheduled.")
				return nil
			}
			for _, job := range jobs {
				log.Println(job.RunTime.Local().Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}
