package fidelity

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/store"
)

// Check statuses.
const (
	StatusPass = "PASS"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

// Decisions.
const (
	DecisionGo   = "GO"
	DecisionNoGo = "NO-GO"
)

// Check methods.
const (
	MethodCritical  = "critical"
	MethodRelative  = "relative"
	MethodChiSquare = "chi_square"
	MethodKS        = "ks_max_relative"
	MethodPresence  = "presence"
)

// CatastrophicDeviation is the relative deviation above which a failed
// check forces NO-GO on its own.
const CatastrophicDeviation = 1.0

// MaxWarnings is the largest warning count that still allows GO.
const MaxWarnings = 3

// Check is one comparison with its literal inputs.
type Check struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	Band   Band   `json:"band,omitempty"`
	// Limit is the tolerance for relative checks and the critical value for
	// chi-square checks.
	Limit    float64 `json:"limit"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	// Deviation is relative for relative and ks checks, the statistic for
	// chi-square checks and actual minus expected for critical checks.
	Deviation float64 `json:"deviation"`
	Status    string  `json:"status"`
	Critical  bool    `json:"critical,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// Summary tallies check outcomes.
type Summary struct {
	Pass             int `json:"pass"`
	Warn             int `json:"warn"`
	Fail             int `json:"fail"`
	Skip             int `json:"skip"`
	CriticalFailures int `json:"critical_failures"`
	Catastrophic     int `json:"catastrophic"`
}

// ShapeSource identifies the expected shape.
type ShapeSource struct {
	ExtractedAt time.Time `json:"extracted_at"`
	WindowDays  int       `json:"window_days"`
	Fingerprint string    `json:"fingerprint"`
}

// Report is the fidelity verdict with every check it was based on.
type Report struct {
	Version        int         `json:"version"`
	RunID          string      `json:"run_id"`
	CreatedAt      time.Time   `json:"created_at"`
	Shape          ShapeSource `json:"shape"`
	Tolerance      Tolerance   `json:"tolerance"`
	HeavyRoomFloor int64       `json:"heavy_room_floor"`
	Checks         []Check     `json:"checks"`
	Summary        Summary     `json:"summary"`
	Decision       string      `json:"decision"`
	Reasons        []string    `json:"reasons"`
}

// Check returns the named check, or nil.
func (r *Report) Check(name string) *Check {
	for i := range r.Checks {
		if r.Checks[i].Name == name {
			return &r.Checks[i]
		}
	}
	return nil
}

// Observations are the integrity and presence counts measured on the
// generated dataset alongside its shape.
type Observations struct {
	NonSyntheticEmails int64            `json:"non_synthetic_emails"`
	Orphans            map[string]int64 `json:"orphans"`
	OutOfOrderMessages int64            `json:"out_of_order_messages"`
	// HeavyRooms counts conversations above the heavy-room floor.
	HeavyRooms int64 `json:"heavy_rooms"`
}

// Evaluate compares actual against expected and decides GO or NO-GO.
// It does no I/O.
func Evaluate(expected, actual *artifact.ShapeMetrics, obs Observations, tol Tolerance, floor int64) *Report {
	r := &Report{
		Version:        artifact.Version,
		Tolerance:      tol,
		HeavyRoomFloor: floor,
		Shape: ShapeSource{
			ExtractedAt: expected.ExtractedAt,
			WindowDays:  expected.WindowDays,
		},
	}
	e := evaluator{r: r, tol: tol}

	e.critical("pii_email_marker", obs.NonSyntheticEmails, "users without the synthetic email marker")
	for _, name := range store.OrphanCheckNames() {
		e.critical("orphans_"+name, obs.Orphans[name], "")
	}
	e.critical("out_of_order_messages", obs.OutOfOrderMessages, "messages older than their predecessor")

	// (a) conversation-size mix
	expConv := shares(expected.Conversations.TypeDistribution, artifact.ConversationTypes)
	actConv := shares(actual.Conversations.TypeDistribution, artifact.ConversationTypes)
	e.relative("conversation_share_direct", BandNormal, expConv[artifact.ConversationDirect], actConv[artifact.ConversationDirect])
	e.relative("conversation_share_group", BandNormal, expConv[artifact.ConversationGroup], actConv[artifact.ConversationGroup])
	e.relative("conversation_share_channel", BandRelaxed, expConv[artifact.ConversationChannel], actConv[artifact.ConversationChannel])
	e.chiSquare("conversation_type_mix", actual.Conversations.TypeDistribution, expConv, artifact.ConversationTypes)

	// (b) messages per conversation
	expPer := expected.Messages.PerConversation.Percentiles
	actPer := actual.Messages.PerConversation.Percentiles
	e.relative("messages_per_conversation_p50", BandNormal, expPer.P50, actPer.P50)
	e.relative("messages_per_conversation_p95", BandRelaxed, expPer.P95, actPer.P95)
	e.relative("messages_per_conversation_p99", BandRelaxed, expPer.P99, actPer.P99)
	e.ks("messages_per_conversation_ladder", BandRelaxed, ladder(expPer), ladder(actPer))

	// (c) content length
	expLen := expected.Messages.ContentLength
	actLen := actual.Messages.ContentLength
	e.relative("content_length_mean", BandNormal, expLen.Mean, actLen.Mean)
	e.relative("content_length_median", BandNormal, expLen.Percentiles.P50, actLen.Percentiles.P50)

	// (d) media
	e.relative("media_ratio", BandStrict, expected.Messages.MediaRatio, actual.Messages.MediaRatio)
	e.chiSquare("media_type_mix", actual.Messages.TypeDistribution,
		shares(expected.Messages.TypeDistribution, artifact.MediaTypes), artifact.MediaTypes)

	// (e) diurnal modulation, measured over the expected peak hours
	peaks := artifact.DerivePeakHours(expected.Messages.HourlyDistribution)
	expRatio, okExp := peakTroughRatio(expected.Messages.HourlyDistribution, peaks)
	actRatio, okAct := peakTroughRatio(actual.Messages.HourlyDistribution, peaks)
	if okExp && okAct {
		e.relative("diurnal_peak_trough_ratio", BandRelaxed, expRatio, actRatio)
	} else {
		e.skip("diurnal_peak_trough_ratio", MethodRelative, "no peak/trough split available")
	}

	// (f) heavy rooms
	e.relative("heavy_room_share", BandRelaxed, expected.Messages.HeavyRoomShare, actual.Messages.HeavyRoomShare)
	e.presence("heavy_room_presence", expPer.Max, floor, obs.HeavyRooms)

	e.decide()
	return r
}

func ladder(p artifact.Percentiles) []float64 {
	return []float64{p.P50, p.P75, p.P90, p.P95, p.P99}
}

type evaluator struct {
	r   *Report
	tol Tolerance
}

func (e *evaluator) add(c Check) {
	e.r.Checks = append(e.r.Checks, c)
}

func (e *evaluator) skip(name, method, detail string) {
	e.add(Check{Name: name, Method: method, Status: StatusSkip, Detail: detail})
}

func (e *evaluator) critical(name string, count int64, detail string) {
	c := Check{
		Name:      name,
		Method:    MethodCritical,
		Actual:    float64(count),
		Deviation: float64(count),
		Status:    StatusPass,
		Critical:  true,
		Detail:    detail,
	}
	if count != 0 {
		c.Status = StatusFail
	}
	e.add(c)
}

// relative checks |actual - expected| / expected against the band limit.
// Beyond the limit the check warns; beyond CatastrophicDeviation it fails.
func (e *evaluator) relative(name string, band Band, expected, actual float64) {
	if expected == 0 {
		e.skip(name, MethodRelative, "expected value unavailable")
		return
	}
	dev := RelativeDeviation(expected, actual)
	e.add(Check{
		Name:      name,
		Method:    MethodRelative,
		Band:      band,
		Limit:     e.tol.Of(band),
		Expected:  expected,
		Actual:    actual,
		Deviation: dev,
		Status:    grade(dev, e.tol.Of(band)),
	})
}

func (e *evaluator) ks(name string, band Band, expected, actual []float64) {
	d, ok := MaxRelativeDifference(expected, actual)
	if !ok {
		e.skip(name, MethodKS, "expected percentiles unavailable")
		return
	}
	e.add(Check{
		Name:      name,
		Method:    MethodKS,
		Band:      band,
		Limit:     e.tol.Of(band),
		Deviation: d,
		Status:    grade(d, e.tol.Of(band)),
		Detail:    "max relative difference over p50/p75/p90/p95/p99",
	})
}

// chiSquare rejects at alpha = 0.05 as a warning only.
func (e *evaluator) chiSquare(name string, observed map[string]int64, expectedShare map[string]float64, keys []string) {
	stat, df := ChiSquare(observed, expectedShare, keys)
	if df < 1 {
		e.skip(name, MethodChiSquare, "fewer than two categories with expected counts")
		return
	}
	crit := ChiSquareCritical(df)
	c := Check{
		Name:      name,
		Method:    MethodChiSquare,
		Limit:     crit,
		Expected:  crit,
		Actual:    stat,
		Deviation: stat,
		Status:    StatusPass,
		Detail:    fmt.Sprintf("df=%d alpha=0.05 (table lookup)", df),
	}
	if stat > crit {
		c.Status = StatusWarn
	}
	e.add(c)
}

// presence requires at least one conversation above floor when the
// expected shape has one.
func (e *evaluator) presence(name string, expectedMax float64, floor, found int64) {
	if floor <= 0 || expectedMax <= float64(floor) {
		e.skip(name, MethodPresence, fmt.Sprintf("expected shape has no conversation above %d messages", floor))
		return
	}
	c := Check{
		Name:     name,
		Method:   MethodPresence,
		Limit:    float64(floor),
		Expected: 1,
		Actual:   float64(found),
		Status:   StatusPass,
		Detail:   fmt.Sprintf("conversations with more than %d messages", floor),
	}
	if found == 0 {
		c.Status = StatusWarn
		c.Deviation = 1
	}
	e.add(c)
}

func grade(dev, limit float64) string {
	switch {
	case dev <= limit:
		return StatusPass
	case dev > CatastrophicDeviation:
		return StatusFail
	default:
		return StatusWarn
	}
}

func (e *evaluator) decide() {
	r := e.r
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPass:
			r.Summary.Pass++
		case StatusWarn:
			r.Summary.Warn++
		case StatusSkip:
			r.Summary.Skip++
		case StatusFail:
			r.Summary.Fail++
			if c.Critical {
				r.Summary.CriticalFailures++
			} else {
				r.Summary.Catastrophic++
			}
		}
	}

	r.Reasons = []string{}
	for _, c := range r.Checks {
		if c.Status != StatusFail {
			continue
		}
		if c.Critical {
			r.Reasons = append(r.Reasons, fmt.Sprintf("critical check %s failed: count %g", c.Name, c.Actual))
		} else {
			r.Reasons = append(r.Reasons, fmt.Sprintf("%s deviates %.1f%% (over %.0f%%)", c.Name, 100*c.Deviation, 100*CatastrophicDeviation))
		}
	}
	if r.Summary.Warn > MaxWarnings {
		warned := make([]string, 0, r.Summary.Warn)
		for _, c := range r.Checks {
			if c.Status == StatusWarn {
				warned = append(warned, c.Name)
			}
		}
		slices.Sort(warned)
		r.Reasons = append(r.Reasons, fmt.Sprintf("%d warnings exceed the limit of %d: %v", r.Summary.Warn, MaxWarnings, warned))
	}

	r.Decision = DecisionGo
	if len(r.Reasons) > 0 {
		r.Decision = DecisionNoGo
	}
}
