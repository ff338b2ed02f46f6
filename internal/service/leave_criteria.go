package service

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

// Accepted layouts for from/to query values. Date-only values cover the
// whole day.
var criteriaDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

const criteriaDateOnly = "2006-01-02"

// NewLeaveValidator returns a validator aware of the leave_status and
// leave_date tags used on criteria payloads.
func NewLeaveValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("leave_status", func(fl validator.FieldLevel) bool {
		_, ok := models.NormalizeStatusFilter(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("leave_date", func(fl validator.FieldLevel) bool {
		if strings.TrimSpace(fl.Field().String()) == "" {
			return true
		}
		_, err := parseCriteriaTime(fl.Field().String(), time.UTC, false)
		return err == nil
	})
	return v
}

// ApplyCriteriaPatch merges patch into current. Changing anything but the
// page resets the page to 1; a page in the same patch is then ignored.
func ApplyCriteriaPatch(current models.FilterCriteria, patch models.CriteriaPatch, validate *validator.Validate, loc *time.Location) (models.FilterCriteria, error) {
	if validate == nil {
		validate = NewLeaveValidator()
	}
	if loc == nil {
		loc = time.Local
	}
	if err := validate.Struct(patch); err != nil {
		return current, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave criteria")
	}

	next := current
	if patch.Status != nil {
		status, _ := models.NormalizeStatusFilter(*patch.Status)
		next.Status = status
	}
	if patch.Search != nil {
		next.Search = strings.TrimSpace(*patch.Search)
	}
	if patch.Grade != nil {
		next.Grade = strings.TrimSpace(*patch.Grade)
	}
	if patch.LeaveType != nil {
		next.LeaveType = strings.TrimSpace(*patch.LeaveType)
	}
	if patch.From != nil {
		from, err := optionalCriteriaTime(*patch.From, loc, false)
		if err != nil {
			return current, err
		}
		next.From = from
	}
	if patch.To != nil {
		to, err := optionalCriteriaTime(*patch.To, loc, true)
		if err != nil {
			return current, err
		}
		next.To = to
	}
	if patch.PageSize != nil {
		next.PageSize = models.NormalizePageSize(*patch.PageSize)
	}

	if !next.SameFilter(current) {
		next.Page = 1
		return next, nil
	}
	if patch.Page != nil {
		next.Page = *patch.Page
		if next.Page < 1 {
			next.Page = 1
		}
	}
	return next, nil
}

func optionalCriteriaTime(raw string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := parseCriteriaTime(raw, loc, endOfDay)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date "+raw)
	}
	return &t, nil
}

func parseCriteriaTime(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(criteriaDateOnly, trimmed, loc); err == nil {
		if endOfDay {
			return t.Add(24*time.Hour - time.Nanosecond), nil
		}
		return t, nil
	}
	var lastErr error
	for _, layout := range criteriaDateLayouts {
		t, err := time.ParseInLocation(layout, trimmed, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// CriteriaFromQuery builds standalone criteria for a one-off listing. Unlike
// ApplyCriteriaPatch there is no previous state, so the page is always taken
// as given.
func CriteriaFromQuery(query models.CriteriaPatch, defaultPageSize int, validate *validator.Validate, loc *time.Location) (models.FilterCriteria, error) {
	page := query.Page
	query.Page = nil
	criteria, err := ApplyCriteriaPatch(models.DefaultFilterCriteria(defaultPageSize), query, validate, loc)
	if err != nil {
		return criteria, err
	}
	if page != nil && *page > 1 {
		criteria.Page = *page
	}
	return criteria, nil
}
