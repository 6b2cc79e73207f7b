package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
)

const (
	sheetRequirements = "Requirements"
	sheetSummary      = "Summary"
)

// Service produces XLSX bytes for compliance reports.
type Service struct {
	store  *repository.Store
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Service)

// WithClock replaces the clock used for the days-until-due column.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store *repository.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, now: time.Now, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ComplianceXLSX returns a workbook with one row per requirement of the account, sorted
// by entity then due date, and a Summary sheet of counts by persisted status.
func (s *Service) ComplianceXLSX(ctx context.Context, accountID uuid.UUID, entityID *uuid.UUID) ([]byte, error) {
	start := time.Now()
	reqs, err := s.store.Requirements.List(ctx, repository.RequirementFilter{AccountID: &accountID, EntityID: entityID})
	if err != nil {
		return nil, fmt.Errorf("query requirements: %w", err)
	}
	ents, err := s.store.Entities.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	names := make(map[uuid.UUID]string, len(ents))
	for _, e := range ents {
		names[e.ID] = e.Name
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		a, b := reqs[i], reqs[j]
		if names[a.EntityID] != names[b.EntityID] {
			return names[a.EntityID] < names[b.EntityID]
		}
		switch {
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		}
		return a.DueDate.Before(*b.DueDate)
	})

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheetRequirements); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	s.writeRequirements(f, reqs, names)
	writeSummary(f, reqs)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.compliance.ok", "account_id", accountID, "rows", len(reqs), "bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func (s *Service) writeRequirements(f *excelize.File, reqs []*entity.Requirement, names map[uuid.UUID]string) {
	headers := []string{
		"Entity",
		"Requirement",
		"Type",
		"Status",
		"Due Date",
		"Days Until Due",
		"Priority",
		"Document Linked",
		"Manual Override",
		"Completed Date",
	}
	setRow(f, sheetRequirements, 1, toAny(headers)...)

	today := requirement.Day(s.now())
	for i, r := range reqs {
		due, days := "", any("")
		if r.DueDate != nil {
			due = r.DueDate.Format(niche.DateLayout)
			days = requirement.DaysUntil(*r.DueDate, today)
		}
		completed := ""
		if r.CompletedDate != nil {
			completed = r.CompletedDate.Format(niche.DateLayout)
		}
		setRow(f, sheetRequirements, i+2,
			names[r.EntityID],
			r.Name,
			r.RequirementTypeCode,
			string(r.Status),
			due,
			days,
			r.Priority,
			yesNo(r.DocumentID != nil),
			yesNo(r.ManualOverride),
			completed,
		)
	}

	_ = f.SetColWidth(sheetRequirements, "A", "B", 30)
	_ = f.SetColWidth(sheetRequirements, "C", "C", 22)
	_ = f.SetColWidth(sheetRequirements, "D", "J", 16)
	_ = f.SetPanes(sheetRequirements, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeSummary(f *excelize.File, reqs []*entity.Requirement) {
	counts := make(map[constants.RequirementStatus]int, len(constants.RequirementStatuses))
	for _, r := range reqs {
		counts[r.Status]++
	}
	setRow(f, sheetSummary, 1, "Status", "Count")
	row := 2
	for _, st := range constants.RequirementStatuses {
		setRow(f, sheetSummary, row, string(st), counts[st])
		row++
	}
	setRow(f, sheetSummary, row, "total", len(reqs))
	_ = f.SetColWidth(sheetSummary, "A", "A", 18)
}

func setRow(f *excelize.File, sheet string, row int, values ...any) {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
