package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/storage"
)

func printSources(w io.Writer, sources []models.SourceOption) {
	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources available")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name")
	for _, s := range sources {
		table.Append(s.ID, s.DisplayName)
	}
	table.Render()
}

func printResults(w io.Writer, rows []models.ResultRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("#", "Tender", "Description", "Deadline", "Forms")
	for i, r := range rows {
		table.Append(strconv.Itoa(i+1), r.Title, r.Description, r.Deadline, strconv.Itoa(r.AttachmentCount))
	}
	table.Render()
}

func printEntry(w io.Writer, e models.LogEntry) {
	fmt.Fprintf(w, "[%s] %-8s %s\n", e.Timestamp, e.Level, e.Message)
}

func printSaved(w io.Writer, dir string, files []*storage.FileInfo) {
	if len(files) == 0 {
		fmt.Fprintf(w, "No archives in %s\n", dir)
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Archive", "Size", "Saved")
	for _, f := range files {
		table.Append(f.Name, strconv.FormatInt(f.Size, 10), f.SavedAt.Format(time.DateTime))
	}
	table.Render()
}
