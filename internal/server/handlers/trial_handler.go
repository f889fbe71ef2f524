package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/domain/feed"
	"github.com/mamadbah2/lambtrial/internal/domain/incidents"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/service/export"
	"github.com/mamadbah2/lambtrial/internal/service/records"
	"github.com/mamadbah2/lambtrial/internal/service/reporting"
)

// RecordsService is the data capture surface used by the API.
type RecordsService interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
	ListAnimals(ctx context.Context) ([]models.Animal, error)
	RegisterAnimal(ctx context.Context, in records.AnimalInput) (models.Animal, error)
	UpdateAnimal(ctx context.Context, id string, in records.AnimalInput) (models.Animal, error)
	ToggleAnimal(ctx context.Context, id string) (models.Animal, error)
	DeleteAnimal(ctx context.Context, id string) error
	RecordWeighing(ctx context.Context, in records.WeighingInput) (records.WeighingResult, error)
	DeleteWeighing(ctx context.Context, id string) error
	RecordFeed(ctx context.Context, in records.FeedInput) (models.FeedRecord, bool, error)
	DeleteFeed(ctx context.Context, id string) error
	RecordIncident(ctx context.Context, req incidents.Request) ([]models.Incident, error)
	DeleteIncident(ctx context.Context, id string) error
	Restore(ctx context.Context, snap models.Snapshot) error
}

// ReportingService is the read-only reporting surface used by the API.
type ReportingService interface {
	Today() models.CivilDate
	WeekLabel(d models.CivilDate) string
	AnimalGrowth(ctx context.Context, asOf models.CivilDate) ([]models.AnimalGrowth, error)
	WeighingHistory(ctx context.Context, filter reporting.HistoryFilter) ([]models.WeighingRow, error)
	GroupSummaries(ctx context.Context, asOf models.CivilDate) ([]models.GroupSummary, error)
	ConversionTable(ctx context.Context) ([]models.ConversionRow, error)
	Overview(ctx context.Context) (models.Overview, error)
	Day(ctx context.Context, d models.CivilDate) (models.DayOverview, error)
	Month(ctx context.Context, year int, month time.Month) ([]models.DayOverview, error)
}

// ExportService produces backups and the spreadsheet copy.
type ExportService interface {
	Backup(ctx context.Context) (models.Backup, error)
	ExportSheets(ctx context.Context) (export.SheetsResult, error)
}

// TrialHandler serves the trial REST API.
type TrialHandler struct {
	records   RecordsService
	reporting ReportingService
	export    ExportService
	logger    *zap.Logger
}

// NewTrialHandler constructs the REST handler.
func NewTrialHandler(rec RecordsService, rep ReportingService, exp ExportService, logger *zap.Logger) *TrialHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrialHandler{records: rec, reporting: rep, export: exp, logger: logger}
}

type incidentBody struct {
	Scope       models.Scope        `json:"scope"`
	Tag         string              `json:"tag"`
	Date        models.CivilDate    `json:"date"`
	Kind        models.IncidentKind `json:"kind"`
	Description string              `json:"description"`
	Medication  *models.Medication  `json:"medication"`
}

// ListAnimals returns every registered animal.
func (h *TrialHandler) ListAnimals(c *gin.Context) {
	animals, err := h.records.ListAnimals(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, animals)
}

// RegisterAnimal adds an animal.
func (h *TrialHandler) RegisterAnimal(c *gin.Context) {
	var in records.AnimalInput
	if !h.bind(c, &in) {
		return
	}
	animal, err := h.records.RegisterAnimal(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, animal)
}

// UpdateAnimal edits an animal.
func (h *TrialHandler) UpdateAnimal(c *gin.Context) {
	var in records.AnimalInput
	if !h.bind(c, &in) {
		return
	}
	animal, err := h.records.UpdateAnimal(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, animal)
}

// ToggleAnimal flips the active flag of an animal.
func (h *TrialHandler) ToggleAnimal(c *gin.Context) {
	animal, err := h.records.ToggleAnimal(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, animal)
}

// DeleteAnimal removes an animal with its weighings and incidents.
func (h *TrialHandler) DeleteAnimal(c *gin.Context) {
	if err := h.records.DeleteAnimal(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListWeighings returns the weighing history, filtered by tag, date or week.
func (h *TrialHandler) ListWeighings(c *gin.Context) {
	filter := reporting.HistoryFilter{Tag: c.Query("tag")}
	if raw := c.Query("date"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		filter.Date = d
	}
	if raw := c.Query("week"); raw != "" {
		week, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "week must be an integer")
			return
		}
		filter.Week = &week
	}

	rows, err := h.reporting.WeighingHistory(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// RecordWeighing stores a weighing. An unconfirmed abnormal loss answers
// 409 with the check result so the client can ask for confirmation.
func (h *TrialHandler) RecordWeighing(c *gin.Context) {
	var in records.WeighingInput
	if !h.bind(c, &in) {
		return
	}
	res, err := h.records.RecordWeighing(c.Request.Context(), in)
	if errors.Is(err, records.ErrConfirmationRequired) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "result": res})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// DeleteWeighing removes a weighing.
func (h *TrialHandler) DeleteWeighing(c *gin.Context) {
	if err := h.records.DeleteWeighing(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListFeed returns feed records oldest first, optionally for one group.
func (h *TrialHandler) ListFeed(c *gin.Context) {
	snap, err := h.records.Snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	recs := snap.FeedRecords
	if raw := c.Query("group"); raw != "" {
		group, ok := models.ParseGroup(raw)
		if !ok {
			badRequest(c, "group must be A or B")
			return
		}
		recs = feed.ForGroup(group, recs)
	}
	c.JSON(http.StatusOK, feed.SortedByDate(recs))
}

// RecordFeed stores or replaces the feed record of a group for a day.
func (h *TrialHandler) RecordFeed(c *gin.Context) {
	var in records.FeedInput
	if !h.bind(c, &in) {
		return
	}
	rec, replaced, err := h.records.RecordFeed(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if replaced {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"record": rec, "replaced": replaced})
}

// DeleteFeed removes a feed record.
func (h *TrialHandler) DeleteFeed(c *gin.Context) {
	if err := h.records.DeleteFeed(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListIncidents returns incidents, optionally for one tag.
func (h *TrialHandler) ListIncidents(c *gin.Context) {
	snap, err := h.records.Snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	tag := models.NormalizeTag(c.Query("tag"))
	out := make([]models.Incident, 0, len(snap.Incidents))
	for _, inc := range snap.Incidents {
		if tag == "" || inc.Tag == tag {
			out = append(out, inc)
		}
	}
	c.JSON(http.StatusOK, out)
}

// RecordIncident fans an incident out to the animals of its scope.
func (h *TrialHandler) RecordIncident(c *gin.Context) {
	var body incidentBody
	if !h.bind(c, &body) {
		return
	}
	created, err := h.records.RecordIncident(c.Request.Context(), incidents.Request{
		Scope:       body.Scope,
		Tag:         body.Tag,
		Date:        body.Date,
		Kind:        body.Kind,
		Description: body.Description,
		Medication:  body.Medication,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// DeleteIncident removes an incident.
func (h *TrialHandler) DeleteIncident(c *gin.Context) {
	if err := h.records.DeleteIncident(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Overview returns dataset counters.
func (h *TrialHandler) Overview(c *gin.Context) {
	out, err := h.reporting.Overview(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// AnimalReport returns the per-animal growth table.
func (h *TrialHandler) AnimalReport(c *gin.Context) {
	asOf, ok := h.dateQuery(c, "asOf")
	if !ok {
		return
	}
	rows, err := h.reporting.AnimalGrowth(c.Request.Context(), asOf)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GroupReport returns the group summaries.
func (h *TrialHandler) GroupReport(c *gin.Context) {
	asOf, ok := h.dateQuery(c, "asOf")
	if !ok {
		return
	}
	rows, err := h.reporting.GroupSummaries(c.Request.Context(), asOf)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ConversionReport returns the feed conversion table.
func (h *TrialHandler) ConversionReport(c *gin.Context) {
	rows, err := h.reporting.ConversionTable(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CalendarWeek classifies a date against the trial weeks.
func (h *TrialHandler) CalendarWeek(c *gin.Context) {
	d, ok := h.dateQuery(c, "date")
	if !ok {
		return
	}
	day, err := h.reporting.Day(c.Request.Context(), d)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":    d,
		"week":    day.Week,
		"label":   h.reporting.WeekLabel(d),
		"inStudy": day.InStudy,
	})
}

// CalendarDay returns the indicators of one day.
func (h *TrialHandler) CalendarDay(c *gin.Context) {
	d, ok := h.dateQuery(c, "date")
	if !ok {
		return
	}
	day, err := h.reporting.Day(c.Request.Context(), d)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}

// CalendarMonth returns the indicators of every day of a month.
func (h *TrialHandler) CalendarMonth(c *gin.Context) {
	today := h.reporting.Today().Time()
	year, month := today.Year(), today.Month()

	if raw := c.Query("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "year must be an integer")
			return
		}
		year = v
	}
	if raw := c.Query("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 12 {
			badRequest(c, "month must be between 1 and 12")
			return
		}
		month = time.Month(v)
	}

	days, err := h.reporting.Month(c.Request.Context(), year, month)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

// DownloadBackup returns the dataset as a backup file.
func (h *TrialHandler) DownloadBackup(c *gin.Context) {
	backup, err := h.export.Backup(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	name := "backup_lambtrial_" + backup.CreatedAt.Format("2006-01-02") + ".json"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "application/json")
	if err := export.EncodeBackup(c.Writer, backup); err != nil {
		h.logger.Error("failed writing backup", zap.Error(err))
	}
}

// RestoreBackup replaces the dataset with an uploaded backup file.
func (h *TrialHandler) RestoreBackup(c *gin.Context) {
	snap, version, err := export.DecodeBackup(c.Request.Body)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.records.Restore(c.Request.Context(), snap); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version":   version,
		"animals":   len(snap.Animals),
		"weighings": len(snap.Weighings),
		"feed":      len(snap.FeedRecords),
		"incidents": len(snap.Incidents),
	})
}

// ExportSheets rewrites the spreadsheet copy.
func (h *TrialHandler) ExportSheets(c *gin.Context) {
	result, err := h.export.ExportSheets(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TrialHandler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.Debug("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		badRequest(c, "invalid request body")
		return false
	}
	return true
}

func (h *TrialHandler) dateQuery(c *gin.Context, key string) (models.CivilDate, bool) {
	raw := c.Query(key)
	if raw == "" {
		return h.reporting.Today(), true
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		badRequest(c, key+" must be YYYY-MM-DD")
		return models.CivilDate{}, false
	}
	return d, true
}

func (h *TrialHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, records.ErrAnimalNotFound),
		errors.Is(err, records.ErrWeighingNotFound),
		errors.Is(err, records.ErrFeedRecordNotFound),
		errors.Is(err, records.ErrIncidentNotFound):
		return http.StatusNotFound
	case errors.Is(err, records.ErrDuplicateTag):
		return http.StatusConflict
	case errors.Is(err, records.ErrInvalidWeight),
		errors.Is(err, records.ErrRefusedExceedsOffered),
		errors.Is(err, records.ErrInvalidInput),
		errors.Is(err, incidents.ErrNoActiveAnimals),
		errors.Is(err, incidents.ErrMissingMedication),
		errors.Is(err, incidents.ErrInvalidKind),
		errors.Is(err, incidents.ErrInvalidScope),
		errors.Is(err, incidents.ErrMissingDate),
		errors.Is(err, export.ErrInvalidBackup),
		errors.Is(err, export.ErrNothingToExport):
		return http.StatusUnprocessableEntity
	case errors.Is(err, export.ErrSheetsDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
