package cmds

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazedsettings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/quickgpt/pkg/archive"
)

type HistorySettings struct {
	ArchiveDB string `glazed:"archive-db"`
	Limit     int    `glazed:"limit"`
}

// HistoryCommand lists finished requests from a SQLite archive written by serve.
type HistoryCommand struct {
	*cmds.CommandDescription
}

func NewHistoryCommand() *cobra.Command {
	historyCmd, err := newHistoryGlazeCommand()
	cobra.CheckErr(err)
	cobraCmd, err := cli.BuildCobraCommand(historyCmd, cli.WithCobraMiddlewaresFunc(quickgptMiddlewares))
	cobra.CheckErr(err)
	return cobraCmd
}

func newHistoryGlazeCommand() (*HistoryCommand, error) {
	glazedSection, err := glazedsettings.NewGlazedSection()
	if err != nil {
		return nil, errors.Wrap(err, "create glazed section")
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, errors.Wrap(err, "create command settings section")
	}

	desc := cmds.NewCommandDescription(
		"history",
		cmds.WithShort("List finished requests from the archive"),
		cmds.WithLong("List the most recent finished requests stored in the SQLite archive, newest first."),
		cmds.WithFlags(
			fields.New("archive-db", fields.TypeString, fields.WithDefault(""), fields.WithHelp("SQLite archive file written by serve --archive-db")),
			fields.New("limit", fields.TypeInteger, fields.WithDefault(20), fields.WithHelp("Maximum rows to return")),
		),
		cmds.WithSections(glazedSection, commandSettingsSection),
	)
	return &HistoryCommand{CommandDescription: desc}, nil
}

func (c *HistoryCommand) RunIntoGlazeProcessor(ctx context.Context, parsedValues *values.Values, gp middlewares.Processor) error {
	s := &HistorySettings{}
	if err := parsedValues.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	if strings.TrimSpace(s.ArchiveDB) == "" {
		return errors.New("--archive-db is required")
	}
	dsn, err := archive.SQLiteDSNForFile(s.ArchiveDB)
	if err != nil {
		return err
	}
	arch, err := archive.NewSQLiteArchive(dsn)
	if err != nil {
		return errors.Wrap(err, "open archive")
	}
	defer func() { _ = arch.Close() }()

	recs, err := arch.Recent(ctx, s.Limit)
	if err != nil {
		return err
	}
	for _, row := range historyRows(recs) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func historyRows(recs []archive.Record) []types.Row {
	rows := make([]types.Row, 0, len(recs))
	for _, rec := range recs {
		detail := rec.Error
		if detail == "" {
			detail = rec.AbortReason
		}
		rows = append(rows, types.NewRow(
			types.MRP("request_id", rec.RequestID),
			types.MRP("parent_id", rec.ParentID),
			types.MRP("prompt_name", rec.PromptName),
			types.MRP("query", rec.Query),
			types.MRP("model", rec.Model),
			types.MRP("status", rec.Status),
			types.MRP("text", rec.Text),
			types.MRP("detail", detail),
			types.MRP("finished_at", time.UnixMilli(rec.FinishedMs).UTC().Format(time.RFC3339)),
		))
	}
	return rows
}

var _ cmds.GlazeCommand = &HistoryCommand{}
