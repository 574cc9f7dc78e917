package datafiles

import (
	"context"
	"os"

	"github.com/sardine-ai/spritecollab-server/model"
	"github.com/sirupsen/logrus"
)

// Validator checks the AnimData.xml file of every form whose sprites are
// marked as complete.
type Validator struct {
	Root     string                            // Root of the working copy
	ReadFile func(path string) ([]byte, error) // Defaults to os.ReadFile
}

// NewValidator returns a Validator reading files below root.
func NewValidator(root string) *Validator {
	return &Validator{Root: root, ReadFile: os.ReadFile}
}

// Validate visits every form of tracker and collects all failures instead of
// stopping at the first one. If any form fails, a single aggregate Report is
// sent to reporter and returned as the error. Forms with incomplete sprites
// are skipped.
func (v *Validator) Validate(ctx context.Context, tracker model.Tracker, reporter Reporter) error {
	var failures []AnimDataFailure
	checked := 0
	for _, id := range tracker.MonsterIDs() {
		forms, _ := tracker.Forms(id)
		for _, form := range forms {
			if form.Group.SpriteComplete == model.PhaseIncomplete {
				continue
			}
			checked++
			if err := v.check(id, form.FormPath); err != nil {
				failures = append(failures, AnimDataFailure{MonsterID: id, FormPath: form.FormPath, Err: err})
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"checked": checked,
		"failed":  len(failures),
	}).Debug("validated animation data")

	if len(failures) > 0 {
		report := NewAnimDataReport(failures)
		reporter.Report(ctx, report)
		return report
	}
	return nil
}

func (v *Validator) check(monsterID int, formPath []int) error {
	readFile := v.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	data, err := readFile(AnimDataPath(v.Root, monsterID, formPath))
	if err != nil {
		return &AnimDataError{Kind: AnimDataIO, Err: err}
	}
	_, err = ParseAnimData(data)
	return err
}
