package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/constants"
	"github.com/joseph-ayodele/invoice-attestor/internal/ingest"
	"github.com/joseph-ayodele/invoice-attestor/internal/workflow"
)

var errDeclined = errors.New("declined by user")

// runner drives one workflow per document from the terminal.
type runner struct {
	loader      *ingest.Loader
	newWorkflow func(opts ...workflow.Option) *workflow.Workflow
	in          *bufio.Reader
	out         io.Writer
	yes         bool
}

var stepMessages = map[constants.WorkflowState]string{
	constants.StateHashing:    "Step 1/3: Hashing original document...",
	constants.StateExtracting: "Step 2/3: Extracting invoice fields...",
	constants.StateSubmitting: "Step 3/3: Recording attestation...",
}

func (r *runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *runner) stepHook(_ uuid.UUID, _, to constants.WorkflowState) {
	if msg, ok := stepMessages[to]; ok {
		r.printf("%s\n", msg)
	}
}

// run attests a single file. Workflow failures come back as errors wrapping
// the adapter error so callers can tell duplicates from other failures.
func (r *runner) run(ctx context.Context, path string) error {
	doc, err := r.loader.LoadFile(path)
	if err != nil {
		return err
	}
	r.printf("\n== %s (%s, %d bytes)\n", doc.Name, doc.MediaType, doc.Size())

	w := r.newWorkflow(workflow.WithTransitionHook(r.stepHook))
	if err := w.SelectDocument(doc); err != nil {
		return err
	}
	if _, err := w.StartExtraction(ctx); err != nil {
		return err
	}
	snap := w.Snapshot()
	if snap.Failure != nil {
		return failed(snap.Failure)
	}

	r.printPreview(snap)
	if !r.yes && !r.ask("Record this invoice? [y/N]: ") {
		_ = w.Reset()
		return errDeclined
	}

	if err := w.Confirm(ctx); err != nil {
		return err
	}
	snap = w.Snapshot()
	if snap.Failure != nil {
		return failed(snap.Failure)
	}
	r.printf("Recorded on %s: %s\n", snap.Receipt.Backend, snap.Receipt.ID)
	if snap.Receipt.ExplorerURL != "" {
		r.printf("View: %s\n", snap.Receipt.ExplorerURL)
	}
	return nil
}

func (r *runner) printPreview(snap workflow.Snapshot) {
	r.printf("File fingerprint: 0x%s\n", snap.FileFingerprint)
	if snap.Record == nil || snap.Record.IsEmpty() {
		r.printf("No fields extracted.\n")
		return
	}
	for _, k := range snap.Record.Keys() {
		v, _ := snap.Record.Get(k)
		r.printf("  %-16s %s\n", k+":", v.String())
	}
}

func (r *runner) ask(prompt string) bool {
	r.printf("%s", prompt)
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func failed(f *workflow.Failure) error {
	if f.Err == nil {
		return errors.New(f.Message)
	}
	return fmt.Errorf("%s: %w", f.Message, f.Err)
}
