package metric

// Payload is the kind-specific value carried by a Record. The set of
// implementations is closed: one shape per metric kind, so a switch over
// payload types covers every supported kind at compile time.
type Payload interface {
	Kind() Kind
}

// Steps is one day of activity totals.
type Steps struct {
	TotalSteps     int     `json:"total_steps"`
	TotalCalories  int     `json:"total_calories"`
	ActiveCalories int     `json:"active_calories"`
	ActiveSeconds  int     `json:"active_seconds"`
	RestingHR      int     `json:"resting_hr,omitempty"`
	DistanceMeters float64 `json:"distance_meters"`
	FloorsClimbed  float64 `json:"floors_climbed,omitempty"`
}

func (*Steps) Kind() Kind { return KindSteps }

// ActiveMinutes returns active time in whole minutes.
func (s *Steps) ActiveMinutes() int { return s.ActiveSeconds / 60 }

// Sleep is one night's sleep session.
type Sleep struct {
	DurationSeconds int `json:"duration_seconds"`
	Score           int `json:"score,omitempty"`
	DeepSeconds     int `json:"deep_seconds"`
	LightSeconds    int `json:"light_seconds"`
	RemSeconds      int `json:"rem_seconds"`
	AwakeSeconds    int `json:"awake_seconds"`
}

func (*Sleep) Kind() Kind { return KindSleep }

// DurationHours returns sleep duration in hours.
func (s *Sleep) DurationHours() float64 { return float64(s.DurationSeconds) / 3600 }

// DeepPct returns deep sleep as a percentage of total sleep.
func (s *Sleep) DeepPct() float64 {
	if s.DurationSeconds == 0 {
		return 0
	}
	return float64(s.DeepSeconds) / float64(s.DurationSeconds) * 100
}

// RemPct returns REM sleep as a percentage of total sleep.
func (s *Sleep) RemPct() float64 {
	if s.DurationSeconds == 0 {
		return 0
	}
	return float64(s.RemSeconds) / float64(s.DurationSeconds) * 100
}

// Weight is one day's weight sample. Optional body-composition fields are
// pointers: the scale does not always report them.
type Weight struct {
	WeightKg     float64  `json:"weight_kg"`
	BMI          *float64 `json:"bmi,omitempty"`
	BodyFatPct   *float64 `json:"body_fat_pct,omitempty"`
	MuscleMassKg *float64 `json:"muscle_mass_kg,omitempty"`
	BoneMassKg   *float64 `json:"bone_mass_kg,omitempty"`
	BodyWaterPct *float64 `json:"body_water_pct,omitempty"`
}

func (*Weight) Kind() Kind { return KindWeight }

// Activity is one recorded workout.
type Activity struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	DurationSeconds int     `json:"duration_seconds"`
	DistanceMeters  float64 `json:"distance_meters,omitempty"`
	Calories        int     `json:"calories,omitempty"`
}

func (*Activity) Kind() Kind { return KindActivity }

// BodyBattery is one day's energy charge/drain totals.
type BodyBattery struct {
	Charged int `json:"charged"`
	Drained int `json:"drained"`
}

func (*BodyBattery) Kind() Kind { return KindBodyBattery }

// NetChange returns charged minus drained; positive means energy gained.
func (b *BodyBattery) NetChange() int { return b.Charged - b.Drained }

// Stress is one day's stress summary.
type Stress struct {
	AvgLevel int `json:"avg_level"`
	MaxLevel int `json:"max_level"`
}

func (*Stress) Kind() Kind { return KindStress }
