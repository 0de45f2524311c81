package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/urfave/cli/v2"

	"github.com/axiomesh/govern/core"
	"github.com/axiomesh/govern/repo"
)

// buildEngine loads the repo config and opens the local leveldb store. The
// open retries briefly since a previous process may still hold the lock.
func buildEngine(ctx *cli.Context) (*core.Engine, error) {
	p, err := getRootPath(ctx)
	if err != nil {
		return nil, err
	}
	r, err := repo.Load(p)
	if err != nil {
		return nil, err
	}

	err = log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(filepath.Join(r.Config.RepoRoot, repo.LogsDirName)),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return nil, fmt.Errorf("log initialize: %w", err)
	}

	var db storage.Storage
	action := func(attempt uint) error {
		db, err = leveldb.New(filepath.Join(r.Config.RepoRoot, repo.StoreDirName))
		return err
	}
	if err := retry.Retry(action, strategy.Limit(3), strategy.Backoff(backoff.Fibonacci(500*time.Millisecond))); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return core.NewEngine(r.Config, core.NewLevelStore(db)), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var groupCMD = &cli.Command{
	Name:  "group",
	Usage: "The group manage commands",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Create a group",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Required: true},
				&cli.StringFlag{Name: "owner", Required: true},
				&cli.BoolFlag{Name: "member-driven", Usage: "membership changes only through proposals (implies private)"},
				&cli.BoolFlag{Name: "private"},
			},
			Action: func(ctx *cli.Context) error {
				engine, err := buildEngine(ctx)
				if err != nil {
					return err
				}
				return engine.CreateGroup(ctx.String("id"), ctx.String("owner"), core.GroupOptions{
					MemberDriven: ctx.Bool("member-driven"),
					IsPrivate:    ctx.Bool("private"),
				})
			},
		},
		{
			Name:  "add-member",
			Usage: "Add a member to a traditional group",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Required: true},
				&cli.StringFlag{Name: "account", Required: true},
				&cli.StringFlag{Name: "by", Required: true, Usage: "granting account"},
			},
			Action: func(ctx *cli.Context) error {
				engine, err := buildEngine(ctx)
				if err != nil {
					return err
				}
				return engine.AddMember(ctx.String("id"), ctx.String("account"), ctx.String("by"))
			},
		},
		{
			Name:  "show",
			Usage: "Show group config and member count",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Required: true},
			},
			Action: func(ctx *cli.Context) error {
				engine, err := buildEngine(ctx)
				if err != nil {
					return err
				}
				cfg, err := engine.GetGroup(ctx.String("id"))
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"config":       cfg,
					"member_count": engine.MemberCount(ctx.String("id")),
				})
			},
		},
	},
}

var proposalCMD = &cli.Command{
	Name:  "proposal",
	Usage: "The proposal manage commands",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Create a proposal; the proposer auto-votes YES unless --no-auto-vote",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "group", Required: true},
				&cli.StringFlag{Name: "proposer", Required: true},
				&cli.StringFlag{Name: "kind", Required: true},
				&cli.StringFlag{Name: "payload", Usage: "kind-specific payload as JSON", Value: "{}"},
				&cli.BoolFlag{Name: "no-auto-vote"},
			},
			Action: func(ctx *cli.Context) error {
				engine, err := buildEngine(ctx)
				if err != nil {
					return err
				}
				kind, err := core.ParseKind(ctx.String("kind"))
				if err != nil {
					return err
				}
				var payload core.Payload
				if err := json.Unmarshal([]byte(ctx.String("payload")), &payload); err != nil {
					return fmt.Errorf("parse payload: %w", err)
				}
				var autoVote *bool
				if ctx.Bool("no-auto-vote") {
					f := false
					autoVote = &f
				}
				id, err := engine.CreateProposal(ctx.String("group"), ctx.String("proposer"), kind, payload, autoVote)
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			},
		},
		{
			Name:  "vote",
			Usage: "Cast a vote on an active proposal",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "group", Required: true},
				&cli.StringFlag{Name: "id", Required: true},
				&cli.StringFlag{Name: "voter", Required: true},
				&cli.BoolFlag{Name: "approve"},
			},
			Action: func(ctx *cli.Context) error {
				engine, err := buildEngine(ctx)
				if err != nil {
					return err
				}
				return engine.CastVote(ctx.String("group"), ctx.String("id"), ctx.String("voter"), ctx.Bool("approve"))
			},
		},
		{
			Name:  "show",
			Usage: "Show a proposal and its tally",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "group", Required: true},
				&cli.StringFlag{Name: "id", Required: true},
			},
			Action: func(ctx *cli.Context) error {
				engine, err := buildEngine(ctx)
				if err != nil {
					return err
				}
				proposal, err := engine.GetProposal(ctx.String("group"), ctx.String("id"))
				if err != nil {
					return err
				}
				tally, err := engine.GetTally(ctx.String("group"), ctx.String("id"))
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"proposal": proposal,
					"tally":    tally,
				})
			},
		},
	},
}
