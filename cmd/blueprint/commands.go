package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/services"
	"github.com/dukex/blueprint/pkg/templatefile"
	cli "github.com/urfave/cli/v3"
)

var errUsage = errors.New("invalid arguments")

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Create a workflow template tree from a YAML or JSON document (- reads stdin)",
		ArgsUsage: "<file>",
		Action: withEnv(func(ctx context.Context, command *cli.Command, e *env) error {
			if command.Args().Len() != 1 {
				return fmt.Errorf("%w: import takes exactly one file", errUsage)
			}

			data, err := readInput(command.Args().First())
			if err != nil {
				return err
			}

			tree, err := templatefile.Decode(data)
			if err != nil {
				return err
			}

			imported, err := e.workflows.Import(ctx, tree)
			if err != nil {
				return err
			}

			return e.print(imported)
		}),
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}

	return os.ReadFile(path)
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a workflow template tree as YAML",
		ArgsUsage: "<workflow-template-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "File to write instead of stdout",
			},
		},
		Action: withEnv(func(ctx context.Context, command *cli.Command, e *env) error {
			if command.Args().Len() != 1 {
				return fmt.Errorf("%w: export takes exactly one workflow template id", errUsage)
			}

			tree, err := e.workflows.GetTree(ctx, command.Args().First())
			if err != nil {
				return err
			}

			data, err := templatefile.Encode(tree)
			if err != nil {
				return err
			}

			if output := command.String("output"); output != "" {
				return os.WriteFile(output, data, 0600)
			}

			_, err = e.out.Write(data)

			return err
		}),
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List workflow templates",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "active", Usage: "Only active templates"},
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.IntFlag{Name: "offset"},
			&cli.StringFlag{Name: "sort-by", Value: "name"},
			&cli.StringFlag{Name: "sort-order", Value: "asc"},
		},
		Action: withEnv(func(ctx context.Context, command *cli.Command, e *env) error {
			req := services.ListWorkflowTemplatesRequest{
				Limit:     command.Int("limit"),
				Offset:    command.Int("offset"),
				SortBy:    command.String("sort-by"),
				SortOrder: command.String("sort-order"),
			}

			if command.IsSet("active") {
				active := command.Bool("active")
				req.Active = &active
			}

			result, err := e.workflows.List(ctx, req)
			if err != nil {
				return err
			}

			return e.print(result)
		}),
	}
}

func cloneCommand() *cli.Command {
	return &cli.Command{
		Name:      "clone",
		Usage:     "Copy a workflow template under a new name",
		ArgsUsage: "<workflow-template-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Name of the copy", Required: true},
			&cli.BoolFlag{Name: "milestones", Usage: "Copy milestones"},
			&cli.BoolFlag{Name: "tasks", Usage: "Copy tasks (requires --milestones)"},
		},
		Action: withEnv(func(ctx context.Context, command *cli.Command, e *env) error {
			if command.Args().Len() != 1 {
				return fmt.Errorf("%w: clone takes exactly one workflow template id", errUsage)
			}

			cloned, err := e.cloning.Clone(ctx, services.CloneRequest{
				SourceID:        command.Args().First(),
				NewName:         command.String("name"),
				CloneMilestones: command.Bool("milestones"),
				CloneTasks:      command.Bool("tasks"),
			})
			if err != nil {
				return err
			}

			return e.print(cloned)
		}),
	}
}

func reorderCommand() *cli.Command {
	return &cli.Command{
		Name:      "reorder",
		Usage:     "Assign explicit ordinals to every task of a milestone",
		ArgsUsage: "<milestone-template-id> <task-id>=<ordinal>...",
		Action: withEnv(func(ctx context.Context, command *cli.Command, e *env) error {
			args := command.Args().Slice()
			if len(args) < 2 {
				return fmt.Errorf("%w: reorder takes a milestone id and at least one assignment", errUsage)
			}

			assignments, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			tasks, err := e.tasks.Reorder(ctx, args[0], assignments)
			if err != nil {
				return err
			}

			return e.print(tasks)
		}),
	}
}

func parseAssignments(args []string) ([]models.OrdinalAssignment, error) {
	assignments := make([]models.OrdinalAssignment, 0, len(args))

	for _, arg := range args {
		id, ordinalStr, found := strings.Cut(arg, "=")
		if !found || id == "" {
			return nil, fmt.Errorf("%w: %q is not <task-id>=<ordinal>", errUsage, arg)
		}

		ordinal, err := strconv.Atoi(ordinalStr)
		if err != nil {
			return nil, fmt.Errorf("%w: ordinal of %q: %w", errUsage, id, err)
		}

		assignments = append(assignments, models.OrdinalAssignment{ID: id, Ordinal: ordinal})
	}

	return assignments, nil
}

func moveTaskCommand() *cli.Command {
	return &cli.Command{
		Name:      "move-task",
		Usage:     "Move a task one position up or down",
		ArgsUsage: "<task-template-id> up|down",
		Action: withEnv(func(ctx context.Context, command *cli.Command, e *env) error {
			args := command.Args().Slice()
			if len(args) != 2 {
				return fmt.Errorf("%w: move-task takes a task id and a direction", errUsage)
			}

			tasks, err := e.tasks.Move(ctx, args[0], models.Direction(args[1]))
			if err != nil {
				return err
			}

			return e.print(tasks)
		}),
	}
}

func completionCommand() *cli.Command {
	return &cli.Command{
		Name:      "completion",
		Usage:     "Report milestone completion for a ticket",
		ArgsUsage: "<ticket-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "evaluate", Usage: "Signal ticket generation for newly complete milestones"},
			&cli.StringFlag{Name: "resignal", Usage: "Re-send a failed signal for this milestone id"},
		},
		Action: withEnv(func(ctx context.Context, command *cli.Command, e *env) error {
			if command.Args().Len() != 1 {
				return fmt.Errorf("%w: completion takes exactly one ticket id", errUsage)
			}

			ticketID := command.Args().First()

			completion, err := e.completion(ctx, command)
			if err != nil {
				return err
			}

			switch {
			case command.String("resignal") != "":
				record, err := completion.Resignal(ctx, ticketID, command.String("resignal"))
				if err != nil {
					return err
				}

				return e.print(record)
			case command.Bool("evaluate"):
				result, err := completion.Evaluate(ctx, ticketID)
				if result != nil {
					printErr := e.print(result)
					if err == nil {
						err = printErr
					}
				}

				return err
			default:
				report, err := completion.Status(ctx, ticketID)
				if err != nil {
					return err
				}

				return e.print(report)
			}
		}),
	}
}
