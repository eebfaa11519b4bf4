package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/vitals-app/vitals/internal/metric"
)

// Client talks to a Connect-style wellness REST API over HTTPS with a
// bearer token. One GET per kind per sync; the caller bounds each call
// with a context deadline.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

// endpoint paths per metric kind. Start and end dates go in the query
// string as ISO dates.
var kindPaths = map[metric.Kind]string{
	metric.KindSteps:       "/wellness-service/wellness/dailySummaries",
	metric.KindSleep:       "/sleep-service/sleep/dailySleep",
	metric.KindWeight:      "/weight-service/weight/range",
	metric.KindActivity:    "/activitylist-service/activities/search",
	metric.KindBodyBattery: "/wellness-service/wellness/bodyBattery/daily",
	metric.KindStress:      "/wellness-service/wellness/dailyStress",
}

// NewClient builds a Client. The token file holds the session bearer
// token; credential acquisition itself is outside this tool.
func NewClient(baseURL, tokenFile string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", tokenFile, err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return nil, fmt.Errorf("token file %s is empty", tokenFile)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// Fetch implements Source.
func (c *Client) Fetch(ctx context.Context, kind metric.Kind, start, end time.Time) ([]metric.Record, error) {
	path, ok := kindPaths[kind]
	if !ok {
		return nil, fmt.Errorf("invalid kind %q", kind)
	}

	q := url.Values{}
	q.Set("startDate", start.UTC().Format("2006-01-02"))
	q.Set("endDate", end.UTC().Format("2006-01-02"))

	body, err := c.get(ctx, kind, path, q)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(kind, body)
	if err != nil {
		return nil, &Error{Reason: ReasonNetwork, Kind: kind, Err: err}
	}
	return records, nil
}

func (c *Client) get(ctx context.Context, kind metric.Kind, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Reason: ReasonNetwork, Kind: kind, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reason := ReasonNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		return nil, &Error{Reason: reason, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Reason: ReasonAuth, Kind: kind, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Reason: ReasonRateLimited, Kind: kind, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{Reason: ReasonNetwork, Kind: kind, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		reason := ReasonNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		return nil, &Error{Reason: reason, Kind: kind, Err: err}
	}
	return body, nil
}

// The service returns deeply nested summaries with frequent nulls. Wire
// structs below keep the null handling at the boundary, the way the
// upstream API demands; everything past decodeRecords is clean.

type dailySummaryWire struct {
	CalendarDate    string   `json:"calendarDate"`
	UpdatedAt       string   `json:"updatedAt"`
	TotalSteps      *int     `json:"totalSteps"`
	TotalKilocal    *int     `json:"totalKilocalories"`
	ActiveKilocal   *int     `json:"activeKilocalories"`
	ActiveSeconds   *int     `json:"activeSeconds"`
	RestingHR       *int     `json:"restingHeartRate"`
	DistanceMeters  *float64 `json:"totalDistanceMeters"`
	FloorsAscended  *float64 `json:"floorsAscended"`
	AvgStressLevel  *int     `json:"averageStressLevel"`
	MaxStressLevel  *int     `json:"maxStressLevel"`
	BatteryCharged  *int     `json:"bodyBatteryChargedValue"`
	BatteryDrained  *int     `json:"bodyBatteryDrainedValue"`
}

type sleepWire struct {
	CalendarDate string `json:"calendarDate"`
	UpdatedAt    string `json:"updatedAt"`
	DailySleep   *struct {
		SleepTimeSeconds *int `json:"sleepTimeSeconds"`
		DeepSeconds      *int `json:"deepSleepSeconds"`
		LightSeconds     *int `json:"lightSleepSeconds"`
		RemSeconds       *int `json:"remSleepSeconds"`
		AwakeSeconds     *int `json:"awakeSleepSeconds"`
		SleepScores      *struct {
			Overall *struct {
				Value *int `json:"value"`
			} `json:"overall"`
		} `json:"sleepScores"`
	} `json:"dailySleepDTO"`
}

type weightWire struct {
	SummaryDate string `json:"summaryDate"`
	UpdatedAt   string `json:"updatedAt"`
	// Grams on the wire.
	Weight     *float64 `json:"weight"`
	MaxWeight  *float64 `json:"maxWeight"`
	BMI        *float64 `json:"bmi"`
	BodyFat    *float64 `json:"bodyFat"`
	MuscleMass *float64 `json:"muscleMass"`
	BoneMass   *float64 `json:"boneMass"`
	BodyWater  *float64 `json:"bodyWater"`
}

type weightEnvelopeWire struct {
	DailyWeightSummaries []weightWire `json:"dailyWeightSummaries"`
}

type activityWire struct {
	ActivityName   string `json:"activityName"`
	StartTimeLocal string `json:"startTimeLocal"`
	UpdatedAt      string `json:"updatedAt"`
	ActivityType   *struct {
		TypeKey string `json:"typeKey"`
	} `json:"activityType"`
	Duration *float64 `json:"duration"`
	Distance *float64 `json:"distance"`
	Calories *float64 `json:"calories"`
}

func decodeRecords(kind metric.Kind, body []byte) ([]metric.Record, error) {
	switch kind {
	case metric.KindSteps, metric.KindBodyBattery, metric.KindStress:
		var wire []dailySummaryWire
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("failed to parse %s response: %w", kind, err)
		}
		return dailySummaryRecords(kind, wire)

	case metric.KindSleep:
		var wire []sleepWire
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("failed to parse sleep response: %w", err)
		}
		return sleepRecords(wire)

	case metric.KindWeight:
		var env weightEnvelopeWire
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("failed to parse weight response: %w", err)
		}
		return weightRecords(env.DailyWeightSummaries)

	case metric.KindActivity:
		var wire []activityWire
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("failed to parse activities response: %w", err)
		}
		return activityRecords(wire)
	}
	return nil, fmt.Errorf("invalid kind %q", kind)
}

func dailySummaryRecords(kind metric.Kind, wire []dailySummaryWire) ([]metric.Record, error) {
	records := make([]metric.Record, 0, len(wire))
	for _, w := range wire {
		day, ok := parseDate(w.CalendarDate)
		if !ok {
			continue
		}

		var payload metric.Payload
		switch kind {
		case metric.KindSteps:
			payload = &metric.Steps{
				TotalSteps:     intOr(w.TotalSteps, 0),
				TotalCalories:  intOr(w.TotalKilocal, 0),
				ActiveCalories: intOr(w.ActiveKilocal, 0),
				ActiveSeconds:  intOr(w.ActiveSeconds, 0),
				RestingHR:      intOr(w.RestingHR, 0),
				DistanceMeters: floatOr(w.DistanceMeters, 0),
				FloorsClimbed:  floatOr(w.FloorsAscended, 0),
			}
		case metric.KindBodyBattery:
			payload = &metric.BodyBattery{
				Charged: intOr(w.BatteryCharged, 0),
				Drained: intOr(w.BatteryDrained, 0),
			}
		case metric.KindStress:
			payload = &metric.Stress{
				AvgLevel: intOr(w.AvgStressLevel, 0),
				MaxLevel: intOr(w.MaxStressLevel, 0),
			}
		}

		records = append(records, metric.Record{
			Kind:      kind,
			Timestamp: day,
			Revision:  revision(w.UpdatedAt, payload),
			Payload:   payload,
		})
	}
	return records, nil
}

func sleepRecords(wire []sleepWire) ([]metric.Record, error) {
	records := make([]metric.Record, 0, len(wire))
	for _, w := range wire {
		day, ok := parseDate(w.CalendarDate)
		if !ok || w.DailySleep == nil {
			continue
		}
		dto := w.DailySleep

		score := 0
		if dto.SleepScores != nil && dto.SleepScores.Overall != nil {
			score = intOr(dto.SleepScores.Overall.Value, 0)
		}

		payload := &metric.Sleep{
			DurationSeconds: intOr(dto.SleepTimeSeconds, 0),
			Score:           score,
			DeepSeconds:     intOr(dto.DeepSeconds, 0),
			LightSeconds:    intOr(dto.LightSeconds, 0),
			RemSeconds:      intOr(dto.RemSeconds, 0),
			AwakeSeconds:    intOr(dto.AwakeSeconds, 0),
		}
		records = append(records, metric.Record{
			Kind:      metric.KindSleep,
			Timestamp: day,
			Revision:  revision(w.UpdatedAt, payload),
			Payload:   payload,
		})
	}
	return records, nil
}

func weightRecords(wire []weightWire) ([]metric.Record, error) {
	records := make([]metric.Record, 0, len(wire))
	for _, w := range wire {
		day, ok := parseDate(w.SummaryDate)
		if !ok {
			continue
		}

		grams := floatOr(w.MaxWeight, floatOr(w.Weight, 0))
		if grams <= 0 {
			continue
		}

		payload := &metric.Weight{
			WeightKg:     grams / 1000,
			BMI:          w.BMI,
			BodyFatPct:   w.BodyFat,
			MuscleMassKg: gramsToKg(w.MuscleMass),
			BoneMassKg:   gramsToKg(w.BoneMass),
			BodyWaterPct: w.BodyWater,
		}
		records = append(records, metric.Record{
			Kind:      metric.KindWeight,
			Timestamp: day,
			Revision:  revision(w.UpdatedAt, payload),
			Payload:   payload,
		})
	}
	return records, nil
}

func activityRecords(wire []activityWire) ([]metric.Record, error) {
	records := make([]metric.Record, 0, len(wire))
	for _, w := range wire {
		start, err := time.Parse("2006-01-02 15:04:05", w.StartTimeLocal)
		if err != nil {
			continue
		}

		typeKey := "unknown"
		if w.ActivityType != nil && w.ActivityType.TypeKey != "" {
			typeKey = w.ActivityType.TypeKey
		}

		payload := &metric.Activity{
			Name:            w.ActivityName,
			Type:            typeKey,
			DurationSeconds: int(floatOr(w.Duration, 0)),
			DistanceMeters:  floatOr(w.Distance, 0),
			Calories:        int(floatOr(w.Calories, 0)),
		}
		records = append(records, metric.Record{
			Kind:      metric.KindActivity,
			Timestamp: start.UTC(),
			Revision:  revision(w.UpdatedAt, payload),
			Payload:   payload,
		})
	}
	return records, nil
}

// revision prefers the service's update marker; a payload hash stands in
// when the marker is missing so change detection still works.
func revision(updatedAt string, payload metric.Payload) string {
	if updatedAt != "" {
		return updatedAt
	}
	return metric.HashRevision(payload)
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return metric.Day(t), true
}

func intOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

func floatOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

func gramsToKg(p *float64) *float64 {
	if p == nil || *p == 0 {
		return nil
	}
	kg := *p / 1000
	return &kg
}
