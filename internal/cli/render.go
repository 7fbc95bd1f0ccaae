package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
)

// RenderStatus formats a snapshot for the status command. now anchors the
// relative last-sync time.
func RenderStatus(s models.Snapshot, now time.Time) string {
	var b strings.Builder
	line := func(k, v string) { fmt.Fprintf(&b, "%-11s %s\n", k+":", v) }

	line("status", string(s.Status))
	if s.IsOnline {
		line("network", "online")
	} else {
		line("network", "offline")
	}
	line("surveys", fmt.Sprintf("%d pending", s.PendingSurveys))

	photos := fmt.Sprintf("%d pending", s.PendingPhotos)
	if s.FailedPhotos > 0 {
		photos += fmt.Sprintf(", %d failed (type \"retry\" to retry)", s.FailedPhotos)
	}
	line("photos", photos)

	switch {
	case s.StorageUnavailable:
		line("storage", "unavailable")
	case s.StorageQuota > 0:
		line("storage", fmt.Sprintf("%s of %s (%.1f%%)",
			humanize.Bytes(uint64(s.StorageUsed)), humanize.Bytes(uint64(s.StorageQuota)), s.StoragePercentUsed))
	default:
		line("storage", humanize.Bytes(uint64(s.StorageUsed))+" used")
	}

	if s.LastSyncAt.IsZero() {
		line("last sync", "never")
	} else {
		line("last sync", humanize.RelTime(s.LastSyncAt, now, "ago", "from now"))
	}
	if s.LastSyncError != "" {
		line("last error", s.LastSyncError)
	}
	return b.String()
}

func renderFailed(w io.Writer, items []*models.PhotoQueueItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no failed photos")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSURVEY\tFILE\tSIZE\tATTEMPTS\tRETRY\tERROR")
	for _, it := range items {
		retry := "manual"
		if it.Retryable {
			retry = "auto"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			it.ID, it.SurveyID, it.Filename, humanize.Bytes(uint64(it.Size)), it.Attempts, retry, it.LastError)
	}
	_ = tw.Flush()
}
