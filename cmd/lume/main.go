package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nettle-sh/lume/client/lume"
)

func main() {
	app := &cli.App{
		Name:  "lume",
		Usage: "Query and control the lumed application launcher daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Path to the lumed unix socket",
				EnvVars: []string{"LUME_SOCK"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Fuzzy-search indexed applications",
				ArgsUsage: "[query]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
					},
				},
				Action: searchCommand,
			},
			{
				Name:      "run",
				Usage:     "Launch an application by id",
				ArgsUsage: "<id>",
				Action:    runCommand,
			},
			{
				Name:   "rescan",
				Usage:  "Trigger a full rescan of the application directories",
				Action: rescanCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show daemon counters",
				Action: statsCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func connect(c *cli.Context) (*lume.Client, error) {
	return lume.NewClient(c.String("socket"))
}

func searchCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	results, err := client.Search(c.Args().First(), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s\t%d\t%d\t%s\n", r.ID, r.Score, r.Usage, r.Name)
	}
	return nil
}

func runCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("run requires exactly one id argument")
	}

	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Run(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("started pid %s\n", resp.Attrs["pid"])
	return nil
}

func rescanCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Rescan()
	if err != nil {
		return err
	}
	fmt.Printf("indexed %s entries\n", resp.Attrs["entries"])
	return nil
}

func statsCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("entries: %s\n", resp.Attrs["entries"])
	fmt.Printf("watch events: %s\n", resp.Attrs["watch-events"])
	fmt.Printf("watch batches: %s\n", resp.Attrs["watch-batches"])
	return nil
}
