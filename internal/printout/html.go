package printout

import (
	"fmt"
	"html/template"
	"io"

	"examdesk/internal/model"
	"examdesk/internal/timecalc"
)

// BlocksDocument is the grouped printout: one entry per time block.
type BlocksDocument struct {
	ExamName     string
	AcademicYear string
	Scope        string // class name, or a label for all classes
	Blocks       []model.ScheduleBlock
}

// RowsDocument is the flat printout: one entry per slot.
type RowsDocument struct {
	ExamName     string
	AcademicYear string
	Scope        string
	Rows         []model.SlotRow
}

type pageEntry struct {
	Time     string
	Duration string
	Members  []model.BlockMember
}

type page struct {
	key     string
	Date    string
	Entries []pageEntry
}

type view struct {
	Opts         Options
	ExamName     string
	AcademicYear string
	Scope        string
	Grouped      bool
	Pages        []page
}

var documentTmpl = template.Must(template.New("schedule").Parse(`<!DOCTYPE html>
<html lang="{{.Opts.Locale}}" dir="{{.Opts.Direction}}">
<head>
<meta charset="utf-8">
<title>{{.Opts.Title}}</title>
<style>
body { font-family: sans-serif; margin: 0; }
.page { padding: 24px; page-break-after: always; }
.page:last-child { page-break-after: auto; }
header h1 { margin: 0 0 4px; font-size: 20px; }
header p { margin: 0 0 12px; color: #444; }
table { width: 100%; border-collapse: collapse; }
th, td { border: 1px solid #999; padding: 6px 8px; text-align: start; vertical-align: top; }
td.concurrent { background: #fff6e0; }
</style>
</head>
<body>
{{- range .Pages}}
<section class="page">
<header>
{{- if $.Opts.SchoolName}}<p class="school">{{$.Opts.SchoolName}}</p>{{end}}
<h1>{{$.Opts.Title}}</h1>
<p>{{$.ExamName}}{{if $.AcademicYear}} &middot; {{$.AcademicYear}}{{end}}{{if $.Scope}} &middot; {{$.Scope}}{{end}}</p>
<h2 class="date">{{.Date}}</h2>
</header>
{{- if .Entries}}
<table>
<thead><tr><th>Time</th><th>Duration</th>{{if $.Grouped}}<th>Exams</th>{{else}}<th>Class</th><th>Subject</th>{{end}}</tr></thead>
<tbody>
{{- range .Entries}}
<tr>
<td class="time">{{.Time}}</td>
<td>{{.Duration}}</td>
{{- if $.Grouped}}
<td{{if gt (len .Members) 1}} class="concurrent"{{end}}>{{range $i, $m := .Members}}{{if $i}}<br>{{end}}{{$m.ClassName}}: {{$m.SubjectName}}{{end}}</td>
{{- else}}
{{- with index .Members 0}}
<td>{{.ClassName}}</td>
<td>{{.SubjectName}}</td>
{{- end}}
{{- end}}
</tr>
{{- end}}
</tbody>
</table>
{{- else}}
<p class="empty">No exams scheduled.</p>
{{- end}}
</section>
{{- end}}
</body>
</html>
`))

// RenderBlocks writes the grouped document, one page per exam date.
func RenderBlocks(w io.Writer, doc BlocksDocument, opts Options) error {
	opts = opts.withDefaults()
	v := view{Opts: opts, ExamName: doc.ExamName, AcademicYear: doc.AcademicYear, Scope: doc.Scope, Grouped: true}

	for _, b := range doc.Blocks {
		v.Pages = appendEntry(v.Pages, b.ExamDate, opts, pageEntry{
			Time:     opts.FormatRange(b.StartTime, b.EndTime),
			Duration: duration(b.StartTime, b.EndTime),
			Members:  b.Members,
		})
	}
	return execute(w, v)
}

// RenderRows writes the flat document, one page per exam date.
func RenderRows(w io.Writer, doc RowsDocument, opts Options) error {
	opts = opts.withDefaults()
	v := view{Opts: opts, ExamName: doc.ExamName, AcademicYear: doc.AcademicYear, Scope: doc.Scope}

	for _, r := range doc.Rows {
		v.Pages = appendEntry(v.Pages, r.ExamDate, opts, pageEntry{
			Time:     opts.FormatRange(r.StartTime, r.EndTime),
			Duration: duration(r.StartTime, r.EndTime),
			Members: []model.BlockMember{{
				ClassName:   r.ClassName,
				SubjectName: r.SubjectName,
				SlotIDs:     []string{r.ID},
			}},
		})
	}
	return execute(w, v)
}

// appendEntry adds e to the last page when it carries the same date,
// otherwise it opens a new page. Input is expected in date order.
func appendEntry(pages []page, date string, opts Options, e pageEntry) []page {
	if n := len(pages); n > 0 && pages[n-1].key == date {
		pages[n-1].Entries = append(pages[n-1].Entries, e)
		return pages
	}
	return append(pages, page{key: date, Date: opts.FormatDate(date), Entries: []pageEntry{e}})
}

func execute(w io.Writer, v view) error {
	if len(v.Pages) == 0 {
		v.Pages = []page{{}}
	}
	if err := documentTmpl.Execute(w, v); err != nil {
		return fmt.Errorf("render schedule: %w", err)
	}
	return nil
}

func duration(start, end string) string {
	d, ok := timecalc.DurationBetween(start, end)
	if !ok {
		return ""
	}
	return timecalc.FormatDuration(d)
}
