/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/lectern/internal/db"
	"github.com/friendsincode/lectern/internal/models"
	"github.com/friendsincode/lectern/internal/presentation"
	"github.com/friendsincode/lectern/internal/scheduler"
	"github.com/friendsincode/lectern/internal/storage"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage audio schedule presets",
}

var presetsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import presets from a YAML file",
	Long: `Import presets into the configured store. Run while the server is stopped.

File format:
  presets:
    - name: Prelude
      audio_id: hymns/prelude.mp3
      time_type: absolute
      hour: 10
      minute: 25
    - name: Offering
      audio_id: instrumental/offering.mp3
      time_type: relative
      relative_minutes: 3
`,
	Args: cobra.ExactArgs(1),
	RunE: runPresetsImport,
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets",
	RunE:  runPresetsList,
}

func init() {
	presetsCmd.AddCommand(presetsImportCmd, presetsListCmd)
	rootCmd.AddCommand(presetsCmd)
}

// presetFile is the YAML import format.
type presetFile struct {
	Presets []presetEntry `yaml:"presets"`
}

type presetEntry struct {
	Name            string `yaml:"name"`
	AudioID         string `yaml:"audio_id"`
	AudioName       string `yaml:"audio_name"`
	TimeType        string `yaml:"time_type"`
	Hour            *int   `yaml:"hour"`
	Minute          *int   `yaml:"minute"`
	RelativeMinutes *int   `yaml:"relative_minutes"`
}

func parsePresetFile(r io.Reader) ([]scheduler.PresetRequest, error) {
	var file presetFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	reqs := make([]scheduler.PresetRequest, 0, len(file.Presets))
	for _, p := range file.Presets {
		reqs = append(reqs, scheduler.PresetRequest{
			Name:            p.Name,
			AudioID:         p.AudioID,
			AudioName:       p.AudioName,
			TimeType:        models.TimeType(p.TimeType),
			Hour:            p.Hour,
			Minute:          p.Minute,
			RelativeMinutes: p.RelativeMinutes,
		})
	}
	return reqs, nil
}

// openScheduler builds a scheduler over the configured store for offline
// commands. Timers it arms are dropped by the returned close function.
func openScheduler(ctx context.Context) (*scheduler.Service, func(), error) {
	database, err := initDatabase()
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if database != nil {
			_ = db.Close(database)
		}
	}
	repo, err := storage.New(cfg, database)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	display := presentation.NewStore(presentation.DefaultIdle(), logger)
	sched, err := scheduler.New(ctx, clockwork.NewRealClock(), display, repo, nil, logger, scheduler.WithLocation(cfg.Location))
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return sched, func() {
		sched.Close()
		closeDB()
	}, nil
}

func runPresetsImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	reqs, err := parsePresetFile(f)
	if err != nil {
		return err
	}

	sched, closeFn, err := openScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	stored, errs := sched.ImportPresets(cmd.Context(), reqs)
	for _, err := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d presets\n", len(stored), len(reqs))
	return nil
}

func runPresetsList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	sched, closeFn, err := openScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAUDIO\tWHEN")
	for _, p := range sched.Presets() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.AudioName, presetWhen(p))
	}
	return w.Flush()
}

func presetWhen(p models.AudioSchedulePreset) string {
	switch {
	case p.TimeType == models.TimeAbsolute && p.Hour != nil && p.Minute != nil:
		return fmt.Sprintf("at %02d:%02d", *p.Hour, *p.Minute)
	case p.TimeType == models.TimeRelative && p.RelativeMinutes != nil:
		return fmt.Sprintf("in %d min", *p.RelativeMinutes)
	default:
		return "-"
	}
}
