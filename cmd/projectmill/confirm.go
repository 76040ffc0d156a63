package main

import (
	"context"

	"github.com/pterm/pterm"
	"gitlab.com/tozd/go/errors"
)

// 🙋 promptConfirmer asks on the terminal. The default answer is no.
type promptConfirmer struct{}

func (promptConfirmer) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := pterm.DefaultInteractiveConfirm.WithDefaultValue(false).Show(question)
	if err != nil {
		return false, errors.Errorf("reading answer: %w", err)
	}
	return ok, nil
}
