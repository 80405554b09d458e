package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/permadrive/permadrive/internal/downloader"
	"github.com/permadrive/permadrive/internal/store"
)

// promptResolver asks the user what to do when a download lands on a path
// whose local content differs. Without a terminal every conflict is
// skipped and raised again on the next sweep.
type promptResolver struct{}

func (promptResolver) Resolve(localPath string, remote *store.CompletedRecord) (downloader.Decision, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return downloader.DecisionSkip, nil
	}

	choice := downloader.DecisionSkip
	err := huh.NewSelect[downloader.Decision]().
		Title(fmt.Sprintf("Local file %s differs from the remote version", localPath)).
		Description(fmt.Sprintf("Remote: %s, version %d", remote.FileName, remote.FileVersion)).
		Options(
			huh.NewOption("Keep both (set the local file aside as a copy)", downloader.DecisionRename),
			huh.NewOption("Overwrite the local file", downloader.DecisionOverwrite),
			huh.NewOption("Keep the local file, ignore the remote one permanently", downloader.DecisionIgnore),
			huh.NewOption("Decide later", downloader.DecisionSkip),
		).
		Value(&choice).
		Run()
	if err != nil {
		return downloader.DecisionSkip, err
	}
	return choice, nil
}
