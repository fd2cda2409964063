package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/services"
	cli "github.com/urfave/cli/v3"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidWorkflows = errors.New("invalid workflow definitions")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check workflow definition files without storing them",
		ArgsUsage: "[file...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Workflow JSON file; holds one workflow or an array of workflows",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			files := append(command.StringSlice("file"), command.Args().Slice()...)
			if len(files) == 0 {
				return errors.New("at least one workflow file is required")
			}

			return validateFiles(command.Root().Writer, files)
		},
	}
}

func validateFiles(out io.Writer, files []string) error {
	validator := services.NewValidator()
	failed := 0

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		problems := validateDocument(validator, data)
		if len(problems) == 0 {
			_, _ = fmt.Fprintf(out, "%s: ok\n", path)

			continue
		}

		failed++

		for _, problem := range problems {
			_, _ = fmt.Fprintf(out, "%s: %s\n", path, problem)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files", ErrInvalidWorkflows, failed, len(files))
	}

	return nil
}

// validateDocument returns one line per problem found in data.
func validateDocument(validator *services.Validator, data []byte) []string {
	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return []string{"invalid JSON: " + err.Error()}
	}

	raws := []json.RawMessage{data}
	if _, isArray := document.([]any); isArray {
		if err := json.Unmarshal(data, &raws); err != nil {
			return []string{"invalid JSON: " + err.Error()}
		}
	}

	schema := gojsonschema.NewGoLoader(workflowSchema())

	var problems []string

	for i, raw := range raws {
		prefix := fmt.Sprintf("workflow[%d]", i)

		result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", prefix, err))

			continue
		}

		if !result.Valid() {
			for _, resultErr := range result.Errors() {
				problems = append(problems, fmt.Sprintf("%s: %s", prefix, resultErr.String()))
			}

			continue
		}

		var workflow models.Workflow
		if err := json.Unmarshal(raw, &workflow); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", prefix, err))

			continue
		}

		var validationErr *services.ValidationError
		if err := validator.Validate(&workflow); errors.As(err, &validationErr) {
			for _, field := range validationErr.Fields {
				problems = append(problems, fmt.Sprintf("%s: %s: %s", prefix, field.Field, field.Message))
			}
		}
	}

	return problems
}
