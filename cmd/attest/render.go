package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/pkg/formatting"
)

func documentRows(docs []documents.Document) [][]string {
	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		pages := ""
		if d.PageCount != nil {
			pages = strconv.Itoa(*d.PageCount)
		}
		rows = append(rows, []string{
			d.ID.String(),
			d.Name,
			string(d.Status),
			formatting.FormatBytes(d.SizeBytes, 1),
			pages,
			d.Error,
		})
	}
	return rows
}

func renderDocuments(w io.Writer, docs []documents.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents")
		return
	}
	fmt.Fprint(w, renderTable(
		[]string{"ID", "Name", "Status", "Size", "Pages", "Error"},
		documentRows(docs),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func renderState(w io.Writer, state *orchestration.State) {
	rows := make([][]string, 0, len(state.Stages))
	for _, s := range state.Stages {
		rows = append(rows, []string{
			s.Name,
			string(s.Status),
			strconv.Itoa(s.Attempts),
			formatTime(s.FinishedAt),
			s.LastError,
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"Stage", "Status", "Attempts", "Finished", "Last Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))

	cfg := state.Configuration
	lock := "unlocked"
	if cfg.Locked {
		lock = "locked " + formatTime(cfg.LockedAt)
	}
	fmt.Fprintf(w, "Configuration: %s\n", lock)
	if cfg.CompanyDescription != "" {
		fmt.Fprintf(w, "Company: %s\n", cfg.CompanyDescription)
	} else if cfg.Draft != "" {
		fmt.Fprintf(w, "Draft: %s\n", cfg.Draft)
	}
	if cfg.Regulation != "" {
		fmt.Fprintf(w, "Regulation: %s\n", cfg.Regulation)
	}

	counts := make(map[documents.Status]int)
	for _, d := range state.Documents {
		counts[d.Status]++
	}
	fmt.Fprintf(w, "Documents: %d total", len(state.Documents))
	for _, s := range []documents.Status{
		documents.StatusUploading,
		documents.StatusUploaded,
		documents.StatusProcessing,
		documents.StatusProcessed,
		documents.StatusFailed,
	} {
		if n := counts[s]; n > 0 {
			fmt.Fprintf(w, ", %d %s", n, s)
		}
	}
	fmt.Fprintln(w)
}

func renderReport(w io.Writer, report *orchestration.UploadReport) {
	rows := make([][]string, 0, len(report.Items))
	for _, it := range report.Items {
		rows = append(rows, []string{it.ID.String(), it.Name, string(it.Status), it.Error})
	}
	fmt.Fprint(w, renderTable(
		[]string{"ID", "Name", "Status", "Error"},
		rows,
		nil,
	))
	fmt.Fprintf(w, "Uploaded %d, failed %d\n", report.Uploaded, report.Failed)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format(time.DateTime)
}
