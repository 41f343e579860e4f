package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/leafsii/redis-demo/internal/output"
	"github.com/leafsii/redis-demo/internal/scenario"
)

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List the available scenarios and the keys they touch",
		Action:  listScenarios,
	}
}

// RunCommand returns the run command.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run scenarios (all of them when no name is given)",
		ArgsUsage: "[scenario...]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "parallel",
				Aliases: []string{"p"},
				Usage:   "Number of scenarios run at once",
			},
		},
		Action: runScenarios,
	}
}

// HistoryCommand returns the history command.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent scenario reports, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of reports",
				Value:   20,
			},
		},
		Action: showHistory,
	}
}

// PingCommand returns the ping command.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:   "ping",
		Usage:  "Check that the store answers",
		Action: ping,
	}
}

func listScenarios(c *cli.Context) error {
	rt, err := openRuntime(c, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	return render(c, scenarioList(rt.runner.Scenarios()))
}

func runScenarios(c *cli.Context) error {
	if c.IsSet("parallel") && c.Int("parallel") <= 0 {
		return fmt.Errorf("--parallel must be positive")
	}

	rt, err := openRuntime(c, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	reports, err := rt.runner.Run(c.Context, c.Args().Slice()...)
	if err != nil {
		return err
	}

	if err := render(c, reportList(reports)); err != nil {
		return err
	}
	return exitStatus(reports)
}

// exitStatus turns a run with failed scenarios into exit code 1
func exitStatus(reports []scenario.Report) error {
	if !scenario.AllPassed(reports) {
		return cli.Exit("one or more scenarios failed", 1)
	}
	return nil
}

func showHistory(c *cli.Context) error {
	if c.Int("limit") <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	rt, err := openRuntime(c, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	reports, err := rt.runner.History(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	return render(c, reportList(reports))
}

func ping(c *cli.Context) error {
	rt, err := openRuntime(c, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	start := time.Now()
	if err := rt.runner.Ping(c.Context); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "PONG (%s backend, %s)\n", rt.cfg.Redis.Backend, time.Since(start).Round(time.Microsecond))
	return nil
}

type scenarioList []scenario.Info

func (l scenarioList) Table() *output.Table {
	t := output.NewTable("NAME", "KEYS", "DESCRIPTION")
	for _, info := range l {
		t.AddRow(info.Name, strings.Join(info.Keys, ","), info.Description)
	}
	return t
}

type reportList []scenario.Report

func (l reportList) Table() *output.Table {
	t := output.NewTable("SCENARIO", "RESULT", "CHECKS", "DURATION", "DETAIL")
	for _, r := range l {
		passed := 0
		for _, check := range r.Checks {
			if check.Passed {
				passed++
			}
		}

		detail := r.Error
		if detail == "" {
			detail = strings.Join(r.FailedChecks(), "; ")
		}

		t.AddRow(
			r.Scenario,
			strings.ToUpper(r.Result()),
			strconv.Itoa(passed)+"/"+strconv.Itoa(len(r.Checks)),
			r.Duration.Round(time.Microsecond).String(),
			detail,
		)
	}
	return t
}
