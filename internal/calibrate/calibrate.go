// Package calibrate fits a generator spec to sampled ShapeMetrics.
//
// Calibration is pure: no I/O, no clock. Fields with no supporting data
// keep their DefaultSpec values. Out-of-range fits are emitted as-is and
// caught later by fidelity validation.
package calibrate

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/dist"
)

// Power-law alpha is clamped to this range to avoid degenerate tails.
const (
	MinAlpha = 1.1
	MaxAlpha = 3.0
)

// Survival probabilities at the median and p90.
const (
	survivalP50 = 0.5
	survivalP90 = 0.1
)

// maxSmallGroupLambda bounds the small-group rate when the observed mean
// sits at the minimum group size.
const maxSmallGroupLambda = 10.0

// Calibrate fits a Spec to m. The returned spec carries m's fingerprint as
// its source.
func Calibrate(m *artifact.ShapeMetrics) (*artifact.Spec, error) {
	fp, err := artifact.Fingerprint(artifact.DomainShape, m)
	if err != nil {
		return nil, err
	}
	spec := artifact.DefaultSpec()
	spec.Source = &artifact.SpecSource{
		ExtractedAt: m.ExtractedAt.UTC(),
		WindowDays:  m.WindowDays,
		Fingerprint: fp,
	}
	if m.WindowDays > 0 {
		spec.WindowDays = m.WindowDays
		spec.Epoch = m.ExtractedAt.UTC().Add(-time.Duration(m.WindowDays) * 24 * time.Hour).Truncate(24 * time.Hour)
	}

	fitUsers(spec, &m.Users)
	fitConversations(spec, &m.Conversations)
	fitMessages(spec, &m.Messages)
	fitReadReceipts(spec, &m.ReadReceipts)
	fitAttachments(spec, &m.Attachments)
	return spec, nil
}

func fitUsers(spec *artifact.Spec, u *artifact.UserShape) {
	if u.TotalCount > 0 {
		spec.ProfileCompleteness = u.ProfileCompleteness
	}
	d := u.UsernameLength
	if d.Count == 0 {
		return
	}
	if mean, std, ok := histogramMoments(d.Histogram); ok {
		spec.UsernameLength.Mean = mean
		spec.UsernameLength.StdDev = std
	}
	spec.UsernameLength.Min = max(1, int(d.Percentiles.Min))
	spec.UsernameLength.Max = max(spec.UsernameLength.Min, int(d.Percentiles.Max))
}

func fitConversations(spec *artifact.Spec, c *artifact.ConversationShape) {
	if mix, ok := normalizedMix(c.TypeDistribution, artifact.ConversationTypes); ok {
		spec.ConversationTypeMix = mix
	}
	if g := c.GroupMemberCount; g.Count > 0 {
		spec.SmallGroup.Lambda = maxSmallGroupLambda
		if excess := g.Mean - artifact.SmallGroupMin; excess > 1/maxSmallGroupLambda {
			spec.SmallGroup.Lambda = 1 / excess
		}
	}
	if ch := c.ChannelMemberCount; ch.Count > 0 {
		if alpha, ok := PowerLawAlpha(ch.Percentiles.P50, ch.Percentiles.P90); ok {
			spec.LargeGroup.Alpha = alpha
		}
		spec.LargeGroup.Max = max(artifact.LargeGroupMin, int(ch.Percentiles.Max))
	}
}

func fitMessages(spec *artifact.Spec, msg *artifact.MessageShape) {
	if pc := msg.PerConversation; pc.Count > 0 {
		if alpha, ok := PowerLawAlpha(pc.Percentiles.P50, pc.Percentiles.P90); ok {
			spec.MessagesPerConversation.Alpha = alpha
		}
		spec.MessagesPerConversation.Min = max(1, int(pc.Percentiles.Min))
		spec.MessagesPerConversation.Max = max(spec.MessagesPerConversation.Min, int(pc.Percentiles.Max))
	}
	if cl := msg.ContentLength; cl.Count > 0 {
		if mu, sigma, ok := LogNormalFit(cl.Percentiles.P50, cl.Mean); ok {
			spec.ContentLength.Mu = mu
			spec.ContentLength.Sigma = sigma
		}
		if cl.Percentiles.Max >= 1 {
			spec.ContentLength.Max = int64(cl.Percentiles.Max)
		}
	}
	if msg.TotalCount > 0 {
		spec.MediaRatio = msg.MediaRatio
		if mix, ok := normalizedMix(msg.TypeDistribution, artifact.MediaTypes); ok {
			spec.MediaTypeMix = mix
		}
	}
	if w, ok := normalizedVector(msg.HourlyDistribution, 24); ok {
		spec.HourlyWeights = w
		spec.PeakHours = artifact.DerivePeakHours(w)
	}
	if w, ok := normalizedVector(msg.DayOfWeekDistribution, 7); ok {
		spec.DayOfWeekWeights = w
	}
	if mean := msg.InterArrivalSeconds.Mean; msg.InterArrivalSeconds.Count > 0 && mean > 0 {
		spec.InterArrival = InterArrivalRates(mean, spec.HourlyWeights, spec.PeakHours)
	}
}

func fitReadReceipts(spec *artifact.Spec, r *artifact.ReadReceiptShape) {
	if r.TotalCount == 0 {
		return
	}
	rr := &spec.ReadReceipts
	rr.NeverRead = clamp01(1 - r.ReadFraction)
	bands := dist.Normalize([]float64{
		float64(r.DelayBands[artifact.DelayImmediate]),
		float64(r.DelayBands[artifact.DelayNearTerm]),
		float64(r.DelayBands[artifact.DelayLong]),
	})
	rr.Immediate, rr.NearTerm, rr.Delayed = bands[0], bands[1], bands[2]
}

func fitAttachments(spec *artifact.Spec, a *artifact.AttachmentShape) {
	sz := a.SizeBytes
	if sz.Count == 0 {
		return
	}
	if mu, sigma, ok := LogNormalFit(sz.Percentiles.P50, sz.Mean); ok {
		spec.AttachmentSize.Mu = mu
		spec.AttachmentSize.Sigma = sigma
	}
	if sz.Percentiles.Max >= 1 {
		spec.AttachmentSize.Max = int64(sz.Percentiles.Max)
	}
}

// PowerLawAlpha estimates a power-law exponent from the median and p90
// using P(X > p50) = 0.5 and P(X > p90) = 0.1, clamped to
// [MinAlpha, MaxAlpha]. ok is false when the ratio is undefined.
func PowerLawAlpha(p50, p90 float64) (float64, bool) {
	if p50 <= 0 || p90 <= p50 {
		return 0, false
	}
	alpha := 1 - math.Log(survivalP90/survivalP50)/math.Log(p90/p50)
	return math.Min(MaxAlpha, math.Max(MinAlpha, alpha)), true
}

// LogNormalFit recovers mu and sigma from a median and a mean. Sigma is 0
// when the mean does not exceed the median.
func LogNormalFit(median, mean float64) (mu, sigma float64, ok bool) {
	if median <= 0 {
		return 0, 0, false
	}
	mu = math.Log(median)
	if mean > median {
		sigma = math.Sqrt(2 * (math.Log(mean) - mu))
	}
	return mu, sigma, true
}

// InterArrivalRates splits the overall arrival rate 1/mean into peak and
// trough rates whose ratio matches the average peak-to-trough hourly
// weight ratio, keeping the daily average rate at 1/mean.
func InterArrivalRates(meanSeconds float64, hourly []float64, peaks []int) artifact.InterArrivalParams {
	overall := 1 / meanSeconds
	peak := make(map[int]bool, len(peaks))
	for _, h := range peaks {
		peak[h] = true
	}
	var peakW, troughW []float64
	for h, w := range hourly {
		if peak[h] {
			peakW = append(peakW, w)
		} else {
			troughW = append(troughW, w)
		}
	}
	if len(peakW) == 0 || len(troughW) == 0 {
		return artifact.InterArrivalParams{PeakLambda: overall, TroughLambda: overall}
	}
	troughMean := stat.Mean(troughW, nil)
	if troughMean <= 0 {
		return artifact.InterArrivalParams{PeakLambda: overall, TroughLambda: overall}
	}
	ratio := stat.Mean(peakW, nil) / troughMean
	n := float64(len(hourly))
	p := float64(len(peakW))
	trough := n * overall / (p*ratio + n - p)
	return artifact.InterArrivalParams{PeakLambda: ratio * trough, TroughLambda: trough}
}

// histogramMoments treats bucket midpoints as samples weighted by count.
// Buckets are visited in start order so the result is reproducible.
func histogramMoments(hist map[string]int64) (mean, std float64, ok bool) {
	type bucket struct {
		mid    float64
		weight float64
		start  int64
	}
	buckets := make([]bucket, 0, len(hist))
	for key, n := range hist {
		start, end, err := dist.ParseBucketKey(key)
		if err != nil || n <= 0 {
			continue
		}
		buckets = append(buckets, bucket{mid: float64(start+end) / 2, weight: float64(n), start: start})
	}
	if len(buckets) == 0 {
		return 0, 0, false
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].start < buckets[j].start })
	xs := make([]float64, len(buckets))
	ws := make([]float64, len(buckets))
	for i, b := range buckets {
		xs[i], ws[i] = b.mid, b.weight
	}
	if len(xs) == 1 {
		return xs[0], 0, true
	}
	mean, std = stat.MeanStdDev(xs, ws)
	return mean, std, true
}

// normalizedMix reads counts in key order and rescales them to sum to 1.
// ok is false when every count is zero.
func normalizedMix(counts map[string]int64, keys []string) (map[string]float64, bool) {
	w := make([]float64, len(keys))
	for i, k := range keys {
		w[i] = float64(counts[k])
	}
	if floats.Sum(w) <= 0 {
		return nil, false
	}
	w = dist.Normalize(w)
	out := make(map[string]float64, len(keys))
	for i, k := range keys {
		out[k] = w[i]
	}
	return out, true
}

func normalizedVector(v []float64, n int) ([]float64, bool) {
	if len(v) != n || floats.Sum(v) <= 0 {
		return nil, false
	}
	return dist.Normalize(v), true
}

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}
