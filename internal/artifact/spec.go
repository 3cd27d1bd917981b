package artifact

import (
	"math"
	"time"

	"github.com/roach88/chatshape/internal/dist"
)

// PeakThreshold marks an hour as peak when its weight is at least this
// multiple of the uniform weight 1/24.
const PeakThreshold = 1.25

// SpecSource records which ShapeMetrics a calibrated spec was fitted from.
type SpecSource struct {
	ExtractedAt time.Time `json:"extracted_at"`
	WindowDays  int       `json:"window_days"`
	Fingerprint string    `json:"fingerprint"`
}

// NormalParams parameterizes a truncated normal.
type NormalParams struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
}

// ExponentialParams parameterizes a bounded exponential offset from Min.
type ExponentialParams struct {
	Lambda float64 `json:"lambda"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
}

// PowerLawParams parameterizes a bounded power law.
type PowerLawParams struct {
	Alpha float64 `json:"alpha"`
	Min   int     `json:"min"`
	Max   int     `json:"max"`
}

// LogNormalParams parameterizes a log-normal truncated at Max.
type LogNormalParams struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
	Max   int64   `json:"max"`
}

// InterArrivalParams holds exponential rates in events per second.
type InterArrivalParams struct {
	PeakLambda   float64 `json:"peak_lambda"`
	TroughLambda float64 `json:"trough_lambda"`
}

// ReadReceiptParams is the three-part read-delay mixture plus the
// never-read fraction. The three band weights are relative to each other.
type ReadReceiptParams struct {
	NeverRead           float64 `json:"never_read"`
	Immediate           float64 `json:"immediate"`
	NearTerm            float64 `json:"near_term"`
	Delayed             float64 `json:"delayed"`
	NearTermMeanSeconds float64 `json:"near_term_mean_seconds"`
	DelayedMu           float64 `json:"delayed_mu"`
	DelayedSigma        float64 `json:"delayed_sigma"`
}

// Spec is the distribution spec the generator reproduces. It is either the
// calibrated config (Source set) or the static default (Source nil).
type Spec struct {
	Version                 int                 `json:"version"`
	Source                  *SpecSource         `json:"source"`
	UsernameLength          NormalParams        `json:"username_length"`
	ConversationTypeMix     map[string]float64  `json:"conversation_type_mix"`
	SmallGroup              ExponentialParams   `json:"small_group"`
	LargeGroup              PowerLawParams      `json:"large_group"`
	MessagesPerConversation PowerLawParams      `json:"messages_per_conversation"`
	ContentLength           LogNormalParams     `json:"content_length"`
	MediaRatio              float64             `json:"media_ratio"`
	MediaTypeMix            map[string]float64  `json:"media_type_mix"`
	HourlyWeights           []float64           `json:"hourly_weights"`
	DayOfWeekWeights        []float64           `json:"day_of_week_weights"`
	PeakHours               []int               `json:"peak_hours"`
	InterArrival            InterArrivalParams  `json:"inter_arrival"`
	ReadReceipts            ReadReceiptParams   `json:"read_receipts"`
	ProfileCompleteness     ProfileCompleteness `json:"profile_completeness"`
	AttachmentSize          LogNormalParams     `json:"attachment_size"`
	Epoch                   time.Time           `json:"epoch"`
	WindowDays              int                 `json:"window_days"`
}

// DefaultSpec returns the static default distribution spec.
func DefaultSpec() *Spec {
	hourly := dist.Normalize([]float64{
		0.8, 0.5, 0.4, 0.3, 0.3, 0.5, 1.0, 2.0, 3.0, 4.0, 4.5, 4.5,
		4.2, 4.3, 4.5, 4.5, 4.3, 4.0, 3.8, 3.8, 3.5, 3.0, 2.2, 1.3,
	})
	return &Spec{
		Version:        Version,
		UsernameLength: NormalParams{Mean: 10, StdDev: 3, Min: 3, Max: 32},
		ConversationTypeMix: map[string]float64{
			ConversationDirect:  0.70,
			ConversationGroup:   0.27,
			ConversationChannel: 0.03,
		},
		SmallGroup:              ExponentialParams{Lambda: 0.25, Min: SmallGroupMin, Max: SmallGroupMax},
		LargeGroup:              PowerLawParams{Alpha: 2.2, Min: LargeGroupMin, Max: 500},
		MessagesPerConversation: PowerLawParams{Alpha: 1.8, Min: 1, Max: 5000},
		ContentLength:           LogNormalParams{Mu: math.Log(60), Sigma: 0.9, Max: 4000},
		MediaRatio:              0.15,
		MediaTypeMix: map[string]float64{
			MessageImage: 0.6,
			MessageFile:  0.2,
			MessageAudio: 0.1,
			MessageVideo: 0.1,
		},
		HourlyWeights:    hourly,
		DayOfWeekWeights: dist.Normalize([]float64{0.10, 0.16, 0.16, 0.16, 0.16, 0.15, 0.11}),
		PeakHours:        DerivePeakHours(hourly),
		InterArrival:     InterArrivalParams{PeakLambda: 1.0 / 120, TroughLambda: 1.0 / 1800},
		ReadReceipts: ReadReceiptParams{
			NeverRead:           0.10,
			Immediate:           0.40,
			NearTerm:            0.35,
			Delayed:             0.25,
			NearTermMeanSeconds: 600,
			DelayedMu:           math.Log(14400),
			DelayedSigma:        1.0,
		},
		ProfileCompleteness: ProfileCompleteness{HasAvatar: 0.6, HasBio: 0.35, HasDisplayName: 0.8},
		AttachmentSize:      LogNormalParams{Mu: math.Log(250000), Sigma: 1.2, Max: 100 << 20},
		Epoch:               time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowDays:          30,
	}
}

// DerivePeakHours returns the hours whose normalized weight reaches
// PeakThreshold times the uniform weight.
func DerivePeakHours(weights []float64) []int {
	if len(weights) == 0 {
		return nil
	}
	norm := dist.Normalize(weights)
	threshold := PeakThreshold / float64(len(norm))
	var peaks []int
	for h, w := range norm {
		// Tolerate rounding from normalization right at the boundary.
		if w >= threshold-1e-12 {
			peaks = append(peaks, h)
		}
	}
	return peaks
}

// IsPeak reports whether hour is one of the spec's peak hours.
func (s *Spec) IsPeak(hour int) bool {
	for _, h := range s.PeakHours {
		if h == hour {
			return true
		}
	}
	return false
}

// ConversationWeights returns the conversation mix in ConversationTypes order.
func (s *Spec) ConversationWeights() []float64 {
	return orderedWeights(s.ConversationTypeMix, ConversationTypes)
}

// MediaWeights returns the media mix in MediaTypes order.
func (s *Spec) MediaWeights() []float64 {
	return orderedWeights(s.MediaTypeMix, MediaTypes)
}

// Fingerprint returns the spec's content address.
func (s *Spec) Fingerprint() (string, error) {
	return Fingerprint(DomainSpec, s)
}

// orderedWeights reads a mix in a fixed key order so categorical draws never
// depend on map iteration.
func orderedWeights(mix map[string]float64, keys []string) []float64 {
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = mix[k]
	}
	return out
}
