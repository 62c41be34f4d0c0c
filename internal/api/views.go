package api

import (
	"github.com/btmullin/supertl2/internal/domain"
	"github.com/btmullin/supertl2/internal/localtime"
	"github.com/btmullin/supertl2/internal/projection"
	"github.com/btmullin/supertl2/internal/reconcile"
	"github.com/btmullin/supertl2/internal/summary"
)

// ActivityView is the list/detail representation of a canonical activity.
// Display fields come from the best-value projection across linked sources;
// the local timestamp is derived from the canonical UTC start and the
// activity's own zone.
type ActivityView struct {
	ActivityID         int64    `json:"activity_id"`
	Name               string   `json:"name"`
	Sport              string   `json:"sport"`
	StartTimeUTC       string   `json:"start_time_utc"`
	StartTimeLocal     string   `json:"start_time_local"`
	LocalDate          string   `json:"local_date"`
	TimezoneName       string   `json:"timezone_name"`
	TimezoneLowConf    bool     `json:"timezone_low_confidence"`
	DistanceM          *float64 `json:"distance_m,omitempty"`
	ElapsedTimeS       *int     `json:"elapsed_time_s,omitempty"`
	MovingTimeS        *int     `json:"moving_time_s,omitempty"`
	HasStrava          bool     `json:"has_strava"`
	HasSportTracks     bool     `json:"has_sporttracks"`
	StravaActivityID   string   `json:"strava_activity_id,omitempty"`
	SportTracksID      string   `json:"sporttracks_activity_id,omitempty"`
}

// SourceView is one source link on the activity detail page.
type SourceView struct {
	Source           string   `json:"source"`
	SourceActivityID string   `json:"source_activity_id"`
	StartTimeUTC     *string  `json:"start_time_utc,omitempty"`
	StartTimeLocal   string   `json:"start_time_local,omitempty"`
	ElapsedTimeS     *int     `json:"elapsed_time_s,omitempty"`
	DistanceM        *float64 `json:"distance_m,omitempty"`
	Sport            string   `json:"sport,omitempty"`
	MatchConfidence  string   `json:"match_confidence"`
	IngestedAtUTC    string   `json:"ingested_at_utc"`
}

// ActivityDetailResponse combines the projected view with its source links.
type ActivityDetailResponse struct {
	Activity ActivityView `json:"activity"`
	Sources  []SourceView `json:"sources"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// AnnotationView is the read/write representation of a training-log entry.
type AnnotationView struct {
	SourceActivityID    string   `json:"source_activity_id"`
	WorkoutTypeID       *int64   `json:"workout_type_id,omitempty"`
	CategoryID          *int64   `json:"category_id,omitempty"`
	CanonicalActivityID *int64   `json:"canonical_activity_id,omitempty"`
	Notes               string   `json:"notes"`
	Tags                []string `json:"tags"`
	Training            int      `json:"training"`
}

// MergeRequest is the payload for POST /v1/activities/merge.
type MergeRequest struct {
	KeepID int64 `json:"keep_id"`
	DropID int64 `json:"drop_id"`
}

// CategoryView mirrors one category-tree node.
type CategoryView struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Name     string `json:"name"`
}

// WorkoutTypeView mirrors one workout-type row.
type WorkoutTypeView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SeasonView mirrors one season definition.
type SeasonView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsActive  bool   `json:"is_active"`
}

// DayView is one calendar-day cell.
type DayView struct {
	Date          string  `json:"date"`
	Hours         float64 `json:"hours"`
	DistanceM     float64 `json:"distance_m"`
	Activities    int     `json:"activities"`
	LowConfidence bool    `json:"low_confidence,omitempty"`
}

// MonthView is one month tile of the year overview.
type MonthView struct {
	Month      int       `json:"month"`
	Hours      float64   `json:"hours"`
	DistanceM  float64   `json:"distance_m"`
	Activities int       `json:"activities"`
	Days       []DayView `json:"days"`
}

// CalendarResponse is the year-overview payload.
type CalendarResponse struct {
	Year         int         `json:"year"`
	Hours        float64     `json:"hours"`
	DistanceM    float64     `json:"distance_m"`
	Activities   int         `json:"activities"`
	TrainingDays int         `json:"training_days"`
	Months       []MonthView `json:"months"`
}

// WeekView is one weekly bucket in a season summary.
type WeekView struct {
	WeekStart  string  `json:"week_start"`
	Hours      float64 `json:"hours"`
	DistanceM  float64 `json:"distance_m"`
	Activities int     `json:"activities"`
}

// SeasonSummaryResponse is the season weekly-summary payload.
type SeasonSummaryResponse struct {
	Season     SeasonView `json:"season"`
	Hours      float64    `json:"hours"`
	DistanceM  float64    `json:"distance_m"`
	Activities int        `json:"activities"`
	Weeks      []WeekView `json:"weeks"`
}

// ImportSummaryView reports one source's reconciliation batch outcome.
type ImportSummaryView struct {
	BatchID          string `json:"batch_id"`
	Source           string `json:"source"`
	Processed        int    `json:"processed"`
	Created          int    `json:"created"`
	Linked           int    `json:"linked"`
	Refreshed        int    `json:"refreshed"`
	Unchanged        int    `json:"unchanged"`
	SkippedTimestamp int    `json:"skipped_timestamp"`
	Ambiguous        int    `json:"ambiguous"`
	Failed           int    `json:"failed"`
}

// ImportResponse reports the outcome of an import run.
type ImportResponse struct {
	Batches []ImportSummaryView `json:"batches"`
}

const utcLayout = "2006-01-02T15:04:05Z"
const localLayout = "2006-01-02T15:04:05"
const dateLayout = "2006-01-02"

func toActivityView(activity domain.Activity, sources []domain.ActivitySource, priority []domain.Source, fallbackZone string) ActivityView {
	display := projection.Project(activity, sources, priority)
	res := localtime.ActivityDateTime(activity, fallbackZone)

	view := ActivityView{
		ActivityID:      activity.ID,
		Name:            display.Name,
		Sport:           display.Sport,
		StartTimeUTC:    activity.StartTimeUTC.UTC().Format(utcLayout),
		StartTimeLocal:  res.Local.Format(localLayout),
		LocalDate:       res.Date().String(),
		TimezoneName:    res.ZoneName,
		TimezoneLowConf: res.LowConfidence,
		DistanceM:       display.DistanceM,
		ElapsedTimeS:    display.ElapsedTimeS,
		MovingTimeS:     activity.MovingTimeS,
		HasStrava:       display.HasStrava,
		HasSportTracks:  display.HasSportTracks,
	}
	for _, src := range sources {
		switch src.Source {
		case domain.SourceStrava:
			view.StravaActivityID = src.SourceActivityID
		case domain.SourceSportTracks:
			view.SportTracksID = src.SourceActivityID
		}
	}
	return view
}

func toSourceView(src domain.ActivitySource) SourceView {
	view := SourceView{
		Source:           string(src.Source),
		SourceActivityID: src.SourceActivityID,
		StartTimeLocal:   src.StartTimeLocal,
		ElapsedTimeS:     src.ElapsedTimeS,
		DistanceM:        src.DistanceM,
		Sport:            src.Sport,
		MatchConfidence:  src.MatchConfidence,
		IngestedAtUTC:    src.IngestedAtUTC.UTC().Format(utcLayout),
	}
	if src.StartTimeUTC != nil {
		utc := src.StartTimeUTC.UTC().Format(utcLayout)
		view.StartTimeUTC = &utc
	}
	return view
}

func toAnnotationView(a domain.Annotation) AnnotationView {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return AnnotationView{
		SourceActivityID:    a.SourceActivityID,
		WorkoutTypeID:       a.WorkoutTypeID,
		CategoryID:          a.CategoryID,
		CanonicalActivityID: a.CanonicalActivityID,
		Notes:               a.Notes,
		Tags:                tags,
		Training:            int(a.Training),
	}
}

func toSeasonView(s domain.Season) SeasonView {
	return SeasonView{
		ID:        s.ID,
		Name:      s.Name,
		StartDate: s.StartDate.Format(dateLayout),
		EndDate:   s.EndDate.Format(dateLayout),
		IsActive:  s.IsActive,
	}
}

func toCalendarResponse(overview summary.YearOverview) CalendarResponse {
	resp := CalendarResponse{
		Year:         overview.Year,
		Hours:        overview.Hours,
		DistanceM:    overview.DistanceM,
		Activities:   overview.Activities,
		TrainingDays: overview.TrainingDays,
		Months:       make([]MonthView, 0, len(overview.Months)),
	}
	for _, month := range overview.Months {
		tile := MonthView{
			Month:      int(month.Month),
			Hours:      month.Hours,
			DistanceM:  month.DistanceM,
			Activities: month.Activities,
			Days:       make([]DayView, 0, len(month.Days)),
		}
		for _, day := range month.Days {
			tile.Days = append(tile.Days, DayView{
				Date:          day.Day.String(),
				Hours:         day.Hours,
				DistanceM:     day.DistanceM,
				Activities:    day.Activities,
				LowConfidence: day.LowConfidence,
			})
		}
		resp.Months = append(resp.Months, tile)
	}
	return resp
}

func toSeasonSummaryResponse(s summary.SeasonSummary) SeasonSummaryResponse {
	resp := SeasonSummaryResponse{
		Season:     toSeasonView(s.Season),
		Hours:      s.Hours,
		DistanceM:  s.DistanceM,
		Activities: s.Activities,
		Weeks:      make([]WeekView, 0, len(s.Weeks)),
	}
	for _, week := range s.Weeks {
		resp.Weeks = append(resp.Weeks, WeekView{
			WeekStart:  week.WeekStart.String(),
			Hours:      week.Hours,
			DistanceM:  week.DistanceM,
			Activities: week.Activities,
		})
	}
	return resp
}

func toImportSummaryView(s reconcile.Summary) ImportSummaryView {
	return ImportSummaryView{
		BatchID:          s.BatchID,
		Source:           string(s.Source),
		Processed:        s.Processed,
		Created:          s.Created,
		Linked:           s.Linked,
		Refreshed:        s.Refreshed,
		Unchanged:        s.Unchanged,
		SkippedTimestamp: s.SkippedTimestamp,
		Ambiguous:        s.Ambiguous,
		Failed:           s.Failed,
	}
}
