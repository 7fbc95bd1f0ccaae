package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"github.com/markahope-aag/hazardos-sub008/internal/syncer"
)

// Engine is the command surface the shell needs. *syncer.Engine satisfies it.
type Engine interface {
	Status() models.Snapshot
	Refresh(ctx context.Context) models.Snapshot
	Subscribe(l syncer.Listener) func()
	SyncNow(ctx context.Context) bool
	RetryFailed(ctx context.Context) (int, error)
	FailedPhotos(ctx context.Context) ([]*models.PhotoQueueItem, error)
	DiscardPhoto(ctx context.Context, id string) error
	SaveDraft(ctx context.Context, id string, content []byte) (*models.SurveyDraft, error)
	Draft(ctx context.Context, id string) (*models.SurveyDraft, error)
	SetEditing(editing bool)
	CapturePhoto(ctx context.Context, surveyID, filename, contentType string, data []byte) (*models.PhotoQueueItem, error)
}

// readFile is a test seam for the photo command.
var readFile = os.ReadFile

type REPL struct {
	eng         Engine
	in          *bufio.Scanner
	interactive bool
	now         func() time.Time

	mu  sync.Mutex
	out io.Writer
}

// NewREPL creates a shell reading commands from in. Prompts and live status
// changes are only printed when interactive is set.
func NewREPL(eng Engine, in io.Reader, out io.Writer, interactive bool) *REPL {
	return &REPL{
		eng:         eng,
		in:          bufio.NewScanner(in),
		out:         out,
		interactive: interactive,
		now:         time.Now,
	}
}

func (r *REPL) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// Run reads and executes commands until EOF, exit or ctx is done.
func (r *REPL) Run(ctx context.Context) {
	if r.interactive {
		r.printf("fieldsync shell (type 'help' for commands)\n")
		last := r.eng.Status().Status
		unsubscribe := r.eng.Subscribe(func(s models.Snapshot) {
			if s.Status != last {
				last = s.Status
				r.printf("[%s]\n", s.Status)
			}
		})
		defer unsubscribe()
	}

	for ctx.Err() == nil {
		if r.interactive {
			r.printf("fs (%s)> ", r.eng.Status().Status)
		}
		if !r.in.Scan() {
			return
		}
		parts := strings.Fields(r.in.Text())
		if len(parts) == 0 {
			continue
		}
		if !r.exec(ctx, parts[0], parts[1:]) {
			return
		}
	}
}

// exec runs one command and reports whether the shell should continue.
func (r *REPL) exec(ctx context.Context, cmd string, args []string) bool {
	switch cmd {
	case "help":
		r.printf("Available commands: status, sync, retry, failed, discard <id>, edit <survey> <text>, show <survey>, photo <survey> <file>, exit\n")

	case "status", "st":
		r.printf("%s", RenderStatus(r.eng.Refresh(ctx), r.now()))

	case "sync":
		r.sync(ctx)

	case "retry":
		n, err := r.eng.RetryFailed(ctx)
		if err != nil {
			r.printf("retry failed: %v\n", err)
			break
		}
		r.printf("%d photo(s) queued for retry\n", n)

	case "failed":
		items, err := r.eng.FailedPhotos(ctx)
		if err != nil {
			r.printf("error: %v\n", err)
			break
		}
		r.mu.Lock()
		renderFailed(r.out, items)
		r.mu.Unlock()

	case "discard":
		if len(args) != 1 {
			r.printf("Usage: discard <photo id>\n")
			break
		}
		if err := r.eng.DiscardPhoto(ctx, args[0]); err != nil {
			r.printf("discard failed: %v\n", err)
			break
		}
		r.printf("photo %s discarded\n", args[0])

	case "edit":
		if len(args) < 2 {
			r.printf("Usage: edit <survey id> <text>\n")
			break
		}
		r.edit(ctx, args[0], strings.Join(args[1:], " "))

	case "show":
		if len(args) != 1 {
			r.printf("Usage: show <survey id>\n")
			break
		}
		r.show(ctx, args[0])

	case "photo":
		if len(args) != 2 {
			r.printf("Usage: photo <survey id> <file>\n")
			break
		}
		r.photo(ctx, args[0], args[1])

	case "exit", "quit":
		r.printf("Bye!\n")
		return false

	default:
		r.printf("Unknown command: %s\n", cmd)
	}
	return true
}

func (r *REPL) sync(ctx context.Context) {
	if !r.eng.Status().IsOnline {
		r.printf("offline: changes are saved and will sync when the connection returns\n")
		return
	}
	if r.eng.SyncNow(ctx) {
		r.printf("sync complete\n")
		return
	}
	if msg := r.eng.Status().LastSyncError; msg != "" {
		r.printf("sync failed: %s\n", msg)
		return
	}
	r.printf("sync did not complete\n")
}

func (r *REPL) edit(ctx context.Context, id, text string) {
	r.eng.SetEditing(true)
	defer r.eng.SetEditing(false)

	d, err := r.eng.SaveDraft(ctx, id, []byte(text))
	if err != nil {
		if errors.Is(err, common.ErrStorageUnavailable) {
			r.printf("could not save: local storage is unavailable\n")
			return
		}
		r.printf("could not save: %v\n", err)
		return
	}
	r.printf("survey %s saved (version %d)\n", d.ID, d.Version)
}

func (r *REPL) show(ctx context.Context, id string) {
	d, err := r.eng.Draft(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			r.printf("no draft for survey %s\n", id)
			return
		}
		r.printf("error: %v\n", err)
		return
	}
	state := "synced"
	if d.Dirty {
		state = "pending sync"
	}
	r.printf("survey %s  version %d  %s\n%s\n", d.ID, d.Version, state, d.Content)
}

func (r *REPL) photo(ctx context.Context, surveyID, path string) {
	data, err := readFile(path)
	if err != nil {
		r.printf("could not read %s: %v\n", path, err)
		return
	}
	name := filepath.Base(path)
	it, err := r.eng.CapturePhoto(ctx, surveyID, name, mime.TypeByExtension(filepath.Ext(name)), data)
	if err != nil {
		r.printf("could not capture photo: %v\n", err)
		return
	}
	r.printf("photo %s queued for survey %s\n", it.ID, surveyID)
}
