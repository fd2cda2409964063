package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/trellis/pkg/log"
	"github.com/dukex/trellis/pkg/models"
	cli "github.com/urfave/cli/v3"
)

var ErrUnknownTrigger = errors.New("unknown trigger type")

func NewDispatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "dispatch",
		Usage: "Run every workflow matching a single domain event and print the executions",
		Flags: append(engineFlags(),
			&cli.StringFlag{
				Name:     "trigger",
				Aliases:  []string{"t"},
				Usage:    "Trigger type of the event",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "payload",
				Usage: "Event payload as JSON, or @path to read it from a file",
				Value: "{}",
			},
			&cli.StringFlag{
				Name:  "triggered-by",
				Usage: "Actor recorded on the executions",
				Value: "cli",
			},
			&cli.BoolFlag{
				Name:  "simulate-delays",
				Usage: "Sleep through wait_delay actions instead of suspending the execution",
			},
		),
		Action: dispatch,
	}
}

func dispatch(ctx context.Context, command *cli.Command) error {
	log.SetupWithFormat(command.String("log-level"), command.String("log-format"))
	logger := log.WithModule("dispatch")

	triggerType := models.TriggerType(command.String("trigger"))
	if !triggerType.IsValid() || triggerType == models.TriggerScheduledTime {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, triggerType)
	}

	payload, err := readPayload(command.String("payload"))
	if err != nil {
		return err
	}

	runtime, closeRuntime, err := openRuntime(ctx, command, logger, command.Bool("simulate-delays"), nil)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeRuntime(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
		}
	}()

	executions, dispatchErr := runtime.Dispatcher.Dispatch(ctx, triggerType, payload, command.String("triggered-by"))

	encoder := json.NewEncoder(command.Root().Writer)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(executions); err != nil {
		return err
	}

	return dispatchErr
}

// readPayload parses raw as a JSON object. A leading @ names a file.
func readPayload(raw string) (map[string]any, error) {
	data := []byte(raw)

	if path, ok := strings.CutPrefix(raw, "@"); ok {
		var err error

		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	payload := map[string]any{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	return payload, nil
}
