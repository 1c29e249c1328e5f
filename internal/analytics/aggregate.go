package analytics

import (
	"sort"
	"time"

	"github.com/radiusdt/dynaq/internal/models"
)

const (
	TimelineDays = 7
	HeatmapDays  = 30
	TopN         = 5
	RecentN      = 10

	dateLayout = "2006-01-02"
)

// Overview is the dashboard summary of one project's events.
type Overview struct {
	ProjectID   string    `json:"projectId"`
	GeneratedAt time.Time `json:"generatedAt"`

	TotalEvents       int `json:"totalEvents"`
	UniqueSessions    int `json:"uniqueSessions"`
	AdImpressions     int `json:"adImpressions"`
	AdClicks          int `json:"adClicks"`
	SurveyImpressions int `json:"surveyImpressions"`
	SurveySubmissions int `json:"surveySubmissions"`

	// percentages, 0 when the denominator is 0
	ClickRate      float64 `json:"clickRate"`
	CompletionRate float64 `json:"completionRate"`

	EventTypeDistribution []TypeCount     `json:"eventTypeDistribution"`
	Timeline              []TimelinePoint `json:"timeline"`
	Heatmap               []HeatmapCell   `json:"heatmap"`
	TopAds                []AdStats       `json:"topAds"`
	TopSurveys            []SurveyStats   `json:"topSurveys"`
	RecentActivity        []Activity      `json:"recentActivity"`
	Funnel                []FunnelStage   `json:"funnel"`
	Countries             []CountryCount  `json:"countries"`
}

type TypeCount struct {
	EventType models.EventType `json:"eventType"`
	Count     int              `json:"count"`
}

type TimelinePoint struct {
	Date         string `json:"date"`
	AdEvents     int    `json:"adEvents"`
	SurveyEvents int    `json:"surveyEvents"`
	TotalEvents  int    `json:"totalEvents"`
}

type HeatmapCell struct {
	Date  string `json:"date"`
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type AdStats struct {
	AdID        string  `json:"adId"`
	Title       string  `json:"title"`
	IsActive    bool    `json:"isActive"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	ClickRate   float64 `json:"clickRate"`
}

type SurveyStats struct {
	SurveyID       string  `json:"surveyId"`
	Title          string  `json:"title"`
	IsActive       bool    `json:"isActive"`
	Impressions    int     `json:"impressions"`
	Submissions    int     `json:"submissions"`
	CompletionRate float64 `json:"completionRate"`
}

type Activity struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"` // "Ad" or "Survey"
	Content   string           `json:"content"`
	EventType models.EventType `json:"eventType"`
	SessionID string           `json:"sessionId,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type FunnelStage struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// Rate returns num/den as a percentage, or 0 when den is 0.
func Rate(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

// Aggregate reduces events and the project's catalog into an Overview.
// Day buckets are UTC calendar days of the trailing windows ending on
// asOf's day. Aggregate does not modify its inputs.
func Aggregate(projectID string, events []*models.TrackingEvent, ads []*models.Ad, surveys []*models.Survey, asOf time.Time) *Overview {
	o := &Overview{
		ProjectID:   projectID,
		GeneratedAt: asOf.UTC(),
		TotalEvents: len(events),
	}

	sessions := make(map[string]struct{})
	byType := make(map[models.EventType]int)
	countries := make(map[string]int)
	for _, e := range events {
		if e.SessionID != "" {
			sessions[e.SessionID] = struct{}{}
		}
		byType[e.EventType]++
		if e.Country != "" {
			countries[e.Country]++
		}
	}

	o.UniqueSessions = len(sessions)
	o.AdImpressions = byType[models.EventAdImpression]
	o.AdClicks = byType[models.EventAdClick]
	o.SurveyImpressions = byType[models.EventSurveyImpression]
	o.SurveySubmissions = byType[models.EventSurveySubmit]
	o.ClickRate = Rate(o.AdClicks, o.AdImpressions)
	o.CompletionRate = Rate(o.SurveySubmissions, o.SurveyImpressions)

	o.EventTypeDistribution = make([]TypeCount, 0, len(models.EventTypes))
	for _, et := range models.EventTypes {
		if n := byType[et]; n > 0 {
			o.EventTypeDistribution = append(o.EventTypeDistribution, TypeCount{EventType: et, Count: n})
		}
	}

	o.Timeline = timeline(events, asOf, TimelineDays)
	o.Heatmap = heatmap(events, asOf, HeatmapDays)

	adStats := AdPerformance(events, ads)
	sort.SliceStable(adStats, func(i, j int) bool { return adStats[i].Clicks > adStats[j].Clicks })
	o.TopAds = truncate(adStats, TopN)

	surveyStats := SurveyPerformance(events, surveys)
	sort.SliceStable(surveyStats, func(i, j int) bool { return surveyStats[i].Submissions > surveyStats[j].Submissions })
	o.TopSurveys = truncate(surveyStats, TopN)

	o.RecentActivity = recentActivity(events, ads, surveys, RecentN)

	o.Funnel = make([]FunnelStage, 0, 3)
	for _, st := range []FunnelStage{
		{Stage: "Impressions", Count: o.AdImpressions + o.SurveyImpressions},
		{Stage: "Interactions", Count: o.AdClicks},
		{Stage: "Conversions", Count: o.SurveySubmissions},
	} {
		if st.Count > 0 {
			o.Funnel = append(o.Funnel, st)
		}
	}

	o.Countries = make([]CountryCount, 0, len(countries))
	for c, n := range countries {
		o.Countries = append(o.Countries, CountryCount{Country: c, Count: n})
	}
	sort.Slice(o.Countries, func(i, j int) bool {
		if o.Countries[i].Count != o.Countries[j].Count {
			return o.Countries[i].Count > o.Countries[j].Count
		}
		return o.Countries[i].Country < o.Countries[j].Country
	})

	return o
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// dayKeys returns the n UTC dates ending on asOf's day, oldest first.
func dayKeys(asOf time.Time, n int) []time.Time {
	t := asOf.UTC()
	today := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	days := make([]time.Time, n)
	for i := 0; i < n; i++ {
		days[i] = today.AddDate(0, 0, i-(n-1))
	}
	return days
}

func dateKey(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func timeline(events []*models.TrackingEvent, asOf time.Time, n int) []TimelinePoint {
	days := dayKeys(asOf, n)
	points := make([]TimelinePoint, n)
	index := make(map[string]int, n)
	for i, d := range days {
		points[i].Date = d.Format(dateLayout)
		index[points[i].Date] = i
	}

	for _, e := range events {
		i, ok := index[dateKey(e.Timestamp)]
		if !ok {
			continue
		}
		points[i].TotalEvents++
		switch {
		case e.EventType.IsAd():
			points[i].AdEvents++
		case e.EventType.IsSurvey():
			points[i].SurveyEvents++
		}
	}
	return points
}

func heatmap(events []*models.TrackingEvent, asOf time.Time, n int) []HeatmapCell {
	days := dayKeys(asOf, n)
	cells := make([]HeatmapCell, n)
	index := make(map[string]int, n)
	for i, d := range days {
		cells[i].Date = d.Format(dateLayout)
		cells[i].Day = d.Weekday().String()[:3]
		index[cells[i].Date] = i
	}

	for _, e := range events {
		if i, ok := index[dateKey(e.Timestamp)]; ok {
			cells[i].Count++
		}
	}
	return cells
}

// AdPerformance counts impressions and clicks per ad. Catalog ads come first
// in catalog order, followed by ads seen only in events, sorted by id.
func AdPerformance(events []*models.TrackingEvent, ads []*models.Ad) []AdStats {
	stats := make([]AdStats, 0, len(ads))
	index := make(map[string]int, len(ads))
	for _, a := range ads {
		index[a.ID] = len(stats)
		stats = append(stats, AdStats{AdID: a.ID, Title: a.Title, IsActive: a.IsActive})
	}

	for _, e := range events {
		if e.AdID == "" {
			continue
		}
		i, ok := index[e.AdID]
		if !ok {
			i = len(stats)
			index[e.AdID] = i
			stats = append(stats, AdStats{AdID: e.AdID, Title: fallbackTitle("Ad", e.AdID)})
		}
		switch e.EventType {
		case models.EventAdImpression:
			stats[i].Impressions++
		case models.EventAdClick:
			stats[i].Clicks++
		}
	}

	for i := range stats {
		stats[i].ClickRate = Rate(stats[i].Clicks, stats[i].Impressions)
	}
	tail := stats[len(ads):]
	sort.Slice(tail, func(i, j int) bool { return tail[i].AdID < tail[j].AdID })
	return stats
}

// SurveyPerformance counts impressions and submissions per survey, ordered
// like AdPerformance.
func SurveyPerformance(events []*models.TrackingEvent, surveys []*models.Survey) []SurveyStats {
	stats := make([]SurveyStats, 0, len(surveys))
	index := make(map[string]int, len(surveys))
	for _, s := range surveys {
		index[s.ID] = len(stats)
		stats = append(stats, SurveyStats{SurveyID: s.ID, Title: s.Title, IsActive: s.IsActive})
	}

	for _, e := range events {
		if e.SurveyID == "" {
			continue
		}
		i, ok := index[e.SurveyID]
		if !ok {
			i = len(stats)
			index[e.SurveyID] = i
			stats = append(stats, SurveyStats{SurveyID: e.SurveyID, Title: fallbackTitle("Survey", e.SurveyID)})
		}
		switch e.EventType {
		case models.EventSurveyImpression:
			stats[i].Impressions++
		case models.EventSurveySubmit:
			stats[i].Submissions++
		}
	}

	for i := range stats {
		stats[i].CompletionRate = Rate(stats[i].Submissions, stats[i].Impressions)
	}
	tail := stats[len(surveys):]
	sort.Slice(tail, func(i, j int) bool { return tail[i].SurveyID < tail[j].SurveyID })
	return stats
}

func fallbackTitle(kind, id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return kind + " " + id + "..."
}

func recentActivity(events []*models.TrackingEvent, ads []*models.Ad, surveys []*models.Survey, n int) []Activity {
	sorted := make([]*models.TrackingEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	sorted = truncate(sorted, n)

	adTitles := make(map[string]string, len(ads))
	for _, a := range ads {
		adTitles[a.ID] = a.Title
	}
	surveyTitles := make(map[string]string, len(surveys))
	for _, s := range surveys {
		surveyTitles[s.ID] = s.Title
	}

	out := make([]Activity, 0, len(sorted))
	for _, e := range sorted {
		a := Activity{
			ID:        e.ID,
			Kind:      "Survey",
			Content:   "Unknown",
			EventType: e.EventType,
			SessionID: e.SessionID,
			Timestamp: e.Timestamp,
		}
		if e.EventType.IsAd() {
			a.Kind = "Ad"
		}

		switch {
		case e.AdID != "":
			if title, ok := adTitles[e.AdID]; ok {
				a.Content = title
			} else {
				a.Content = fallbackTitle("Ad", e.AdID)
			}
		case e.SurveyID != "":
			if title, ok := surveyTitles[e.SurveyID]; ok {
				a.Content = title
			} else {
				a.Content = fallbackTitle("Survey", e.SurveyID)
			}
		}
		out = append(out, a)
	}
	return out
}
