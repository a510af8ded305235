// Package updater downloads a release archive and installs it over the running tree.
package updater

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"volunteerops/logger"
)

type Release struct {
	Version string `json:"version"`
	ZipURL  string `json:"zip_url"`
}

type Feed interface {
	Latest(ctx context.Context) (*Release, error)
}

type Backup interface {
	// Backup snapshots the install directory and returns the archive path.
	Backup(ctx context.Context) (string, error)
}

type Downloader interface {
	Download(ctx context.Context, url string) (string, error)
}

type Extractor interface {
	// Extract unpacks archive into a fresh staging directory and returns it.
	Extract(ctx context.Context, archive string) (string, error)
}

type Applier interface {
	Apply(ctx context.Context, stagingDir string) error
}

type Migrator interface {
	Migrate(ctx context.Context) error
}

type VersionPatcher interface {
	Patch(ctx context.Context, version string) error
}

type Step string

const (
	StepCheck    Step = "check"
	StepBackup   Step = "backup"
	StepDownload Step = "download"
	StepExtract  Step = "extract"
	StepApply    Step = "apply"
	StepMigrate  Step = "migrate"
	StepPatch    Step = "patch_version"
)

type Pipeline struct {
	Current  string
	Feed     Feed
	Backup   Backup
	Download Downloader
	Extract  Extractor
	Apply    Applier
	Migrate  Migrator
	Patch    VersionPatcher
}

// Report describes how far a run got.
type Report struct {
	From       string `json:"from"`
	To         string `json:"to"`
	UpToDate   bool   `json:"upToDate"`
	BackupPath string `json:"backupPath,omitempty"`
	Completed  []Step `json:"completed"`
	FailedStep Step   `json:"failedStep,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StepError names the step a run stopped at.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("update %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Newer reports whether candidate is a valid version above current.
func Newer(candidate, current string) bool {
	c := canonical(candidate)
	if !semver.IsValid(c) {
		return false
	}
	cur := canonical(current)
	if !semver.IsValid(cur) {
		return true
	}
	return semver.Compare(c, cur) > 0
}

// Check asks the feed for the latest release.
func (p *Pipeline) Check(ctx context.Context) (*Release, bool, error) {
	rel, err := p.Feed.Latest(ctx)
	if err != nil {
		return nil, false, &StepError{Step: StepCheck, Err: err}
	}
	return rel, Newer(rel.Version, p.Current), nil
}

// Run executes backup, download, extract, apply, migrate and version patch
// in order. The first failure stops the run; nothing is rolled back and the
// backup stays on disk.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	log := logger.GetLogger(ctx).WithField("component", "updater")
	rep := &Report{From: p.Current}

	rel, newer, err := p.Check(ctx)
	if err != nil {
		return rep.fail(StepCheck, err)
	}
	rep.To = rel.Version
	rep.Completed = append(rep.Completed, StepCheck)
	if !newer {
		rep.UpToDate = true
		log.Infof("already on %s (feed has %s)", p.Current, rel.Version)
		return rep, nil
	}

	var archive, staging string
	steps := []struct {
		step Step
		run  func() error
	}{
		{StepBackup, func() (err error) { rep.BackupPath, err = p.Backup.Backup(ctx); return }},
		{StepDownload, func() (err error) { archive, err = p.Download.Download(ctx, rel.ZipURL); return }},
		{StepExtract, func() (err error) { staging, err = p.Extract.Extract(ctx, archive); return }},
		{StepApply, func() error { return p.Apply.Apply(ctx, staging) }},
		{StepMigrate, func() error { return p.Migrate.Migrate(ctx) }},
		{StepPatch, func() error { return p.Patch.Patch(ctx, rel.Version) }},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return rep.fail(s.step, err)
		}
		log.Infof("step %s", s.step)
		if err := s.run(); err != nil {
			log.WithError(err).Errorf("step %s failed, aborting", s.step)
			return rep.fail(s.step, err)
		}
		rep.Completed = append(rep.Completed, s.step)
	}
	log.Infof("updated %s -> %s", rep.From, rep.To)
	return rep, nil
}

func (r *Report) fail(step Step, err error) (*Report, error) {
	var se *StepError
	if e, ok := err.(*StepError); ok {
		se = e
	} else {
		se = &StepError{Step: step, Err: err}
	}
	r.FailedStep = se.Step
	r.Error = se.Err.Error()
	return r, se
}
