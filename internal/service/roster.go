package service

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"kinship/internal/agegroup"
	"kinship/internal/models"
	"kinship/internal/security"
)

const rosterSheet = "People"

var rosterColumns = []struct {
	header string
	width  float64
}{
	{"Username", 20},
	{"Full name", 30},
	{"Gender", 10},
	{"Date of birth", 14},
	{"Age", 8},
	{"Age category", 16},
	{"Account", 10},
	{"Recorded", 20},
}

// WriteRoster writes people as a spreadsheet with one row per person and
// their age information on today
func WriteRoster(w io.Writer, people []models.Person, brackets agegroup.Brackets, today time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), rosterSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range rosterColumns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(rosterSheet, name, name, col.width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
		if err := setRosterCell(f, i+1, 1, col.header); err != nil {
			return err
		}
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(rosterColumns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(rosterSheet, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, p := range people {
		summary := models.Summarize(p, brackets, today)
		values := []interface{}{
			p.Username,
			p.FullName,
			string(p.Gender),
			"",
			"",
			string(summary.AgeCategory),
			"no",
			p.CreatedAt.Format("2006-01-02 15:04"),
		}
		if p.DateOfBirth != nil {
			values[3] = p.DateOfBirth.Format(models.DateLayout)
		}
		if summary.Age != nil {
			values[4] = *summary.Age
		}
		if p.UserID != nil {
			values[6] = "yes"
		}
		for col, v := range values {
			if err := setRosterCell(f, col+1, i+2, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetPanes(rosterSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write roster: %w", err)
	}
	return nil
}

func setRosterCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(rosterSheet, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}

// ExportRoster writes every person as a spreadsheet
func (s *PersonService) ExportRoster(actor *models.User, w io.Writer) error {
	if err := authorize(actor, security.PermViewPerson); err != nil {
		return err
	}
	people, err := s.people.ListAllPeople()
	if err != nil {
		return err
	}
	return WriteRoster(w, people, s.brackets, s.now())
}
