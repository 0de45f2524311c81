package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/axiomesh/govern"
)

func main() {
	app := cli.NewApp()
	app.Name = "Govern"
	app.Usage = "Governance engine for member-driven groups"
	app.Compiled = time.Now()

	cli.VersionPrinter = func(c *cli.Context) {
		printVersion()
	}

	// global flags
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "repo",
			Usage: "Govern storage repo path",
		},
	}

	app.Commands = []*cli.Command{
		configCMD,
		groupCMD,
		proposalCMD,
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "Govern version",
			Action: func(ctx *cli.Context) error {
				printVersion()
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err)
	}
}

func printVersion() {
	fmt.Printf("Govern version: %s-%s-%s\n", govern.CurrentVersion, govern.CurrentBranch, govern.CurrentCommit)
	fmt.Printf("App build date: %s\n", govern.BuildDate)
	fmt.Printf("System version: %s\n", govern.Platform)
	fmt.Printf("Golang version: %s\n", govern.GoVersion)
	fmt.Println()
}
