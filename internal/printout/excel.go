package printout

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"examdesk/internal/model"
)

const maxSheetName = 31

var errNoSheet = errors.New("no active sheet")

// sheetWriter appends rows to an excelize workbook one sheet at a time.
type sheetWriter struct {
	file  *excelize.File
	sheet string
	row   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns ...string) error {
	cells := make([]interface{}, len(columns))
	for i, c := range columns {
		cells[i] = c
	}
	row := w.row
	if err := w.writeRow(cells...); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(columns), row)
	return w.file.SetCellStyle(w.sheet, first, last, style)
}

func (w *sheetWriter) writeRow(values ...interface{}) error {
	if w.sheet == "" {
		return errNoSheet
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, v); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

// ExportBlocks writes the grouped schedule as an xlsx workbook with one
// sheet. Each (class, subject) pair of a block gets its own row.
func ExportBlocks(out io.Writer, doc BlocksDocument, opts Options) error {
	opts = opts.withDefaults()
	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet(sheetName(doc)); err != nil {
		return err
	}
	if opts.Direction == "rtl" {
		rtl := true
		if err := w.file.SetSheetView(w.sheet, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
			return fmt.Errorf("sheet view: %w", err)
		}
	}
	if err := w.writeHeader("Date", "Start", "End", "Duration", "Class", "Subject", "Concurrent"); err != nil {
		return err
	}

	for _, b := range doc.Blocks {
		concurrent := "no"
		if b.Concurrent() {
			concurrent = "yes"
		}
		for _, m := range b.Members {
			if err := w.writeRow(
				opts.FormatDate(b.ExamDate),
				opts.FormatTime(b.StartTime),
				opts.FormatTime(b.EndTime),
				duration(b.StartTime, b.EndTime),
				m.ClassName,
				m.SubjectName,
				concurrent,
			); err != nil {
				return fmt.Errorf("write block %s: %w", b.ExamDate, err)
			}
		}
	}

	if err := w.file.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetName strips characters Excel rejects in sheet names.
func sheetName(doc BlocksDocument) string {
	name := doc.ExamName
	if name == "" {
		name = "Schedule"
	}
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, name)
	return name
}

// Slots counts the slots represented in a set of blocks.
func Slots(blocks []model.ScheduleBlock) int {
	n := 0
	for _, b := range blocks {
		for _, m := range b.Members {
			n += len(m.SlotIDs)
		}
	}
	return n
}
