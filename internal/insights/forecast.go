package insights

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/yohanns/storefront/internal/store"
)

// Forecast ranges.
const (
	RangeNextMonth  = "nextMonth"
	RangeRestOfYear = "restOfYear"
	RangeNextYear   = "nextYear"
)

var rangeLabels = map[string]string{
	RangeNextMonth:  "Next Month",
	RangeRestOfYear: "Rest of Year",
	RangeNextYear:   "Next 12 Months",
}

const (
	fourierHarmonics  = 6
	recencyDecay      = 0.55
	minSampleWeight   = 0.35
	minTrainingPoints = 18
	seasonLength      = 12
	ridgeEpsilon      = 1e-6
	pivotThreshold    = 1e-8
)

var historyStart = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

// MonthPoint is one month of actual or projected revenue.
type MonthPoint struct {
	Month      string   `json:"month"`
	MonthISO   string   `json:"monthIso,omitempty"`
	Label      string   `json:"label"`
	Revenue    float64  `json:"revenue"`
	Orders     int      `json:"orders"`
	Type       string   `json:"type"`
	Confidence int      `json:"confidence,omitempty"`
	GrowthRate *float64 `json:"growthRate,omitempty"`
}

// ForecastSummary holds the totals over the projected months.
type ForecastSummary struct {
	Range                 string   `json:"range"`
	RangeLabel            string   `json:"rangeLabel"`
	Months                int      `json:"months"`
	ProjectedRevenue      float64  `json:"projectedRevenue"`
	ProjectedOrders       int      `json:"projectedOrders"`
	AverageMonthlyRevenue float64  `json:"averageMonthlyRevenue"`
	BaselineRevenue       float64  `json:"baselineRevenue"`
	ExpectedGrowthRate    *float64 `json:"expectedGrowthRate"`
	Confidence            *int     `json:"confidence"`
}

// ForecastModel describes how the projection was made.
type ForecastModel struct {
	Type         string   `json:"type"`
	Harmonics    int      `json:"harmonics"`
	RecencyDecay float64  `json:"recencyDecay"`
	MinWeight    float64  `json:"minWeight"`
	TrainingMAPE *float64 `json:"trainingMape"`
	FallbackUsed bool     `json:"fallbackUsed"`
	Description  string   `json:"description"`
}

// TrainingWindow bounds the historical months the model saw.
type TrainingWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SalesForecast is the revenue projection for a range.
type SalesForecast struct {
	Range          string          `json:"range"`
	RangeLabel     string          `json:"rangeLabel"`
	GeneratedAt    time.Time       `json:"generatedAt"`
	Historical     []MonthPoint    `json:"historical"`
	Forecast       []MonthPoint    `json:"forecast"`
	Combined       []MonthPoint    `json:"combined"`
	Summary        ForecastSummary `json:"summary"`
	Model          ForecastModel   `json:"model"`
	TrainingWindow TrainingWindow  `json:"trainingWindow"`
}

type monthRevenue struct {
	month   time.Time
	revenue float64
	orders  int
}

// Forecast projects monthly revenue over rangeKey. Unknown ranges fall back
// to the rest of the year. Only completed months before the current one are
// used for training.
func (s *Service) Forecast(ctx context.Context, sc Scope, rangeKey string) (*SalesForecast, error) {
	if _, ok := rangeLabels[rangeKey]; !ok {
		rangeKey = RangeRestOfYear
	}
	orders, err := s.orders(ctx, sc, store.OrderFilter{})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	current := monthStart(now)

	byMonth := map[time.Time]*monthRevenue{}
	for i := range orders {
		o := &orders[i]
		if isCancelled(o) || !o.CreatedAt.Before(current) {
			continue
		}
		m := monthStart(o.CreatedAt)
		p, ok := byMonth[m]
		if !ok {
			p = &monthRevenue{month: m}
			byMonth[m] = p
		}
		p.revenue += o.TotalAmount
		p.orders++
	}
	history := padHistory(byMonth)
	return buildForecast(history, forecastMonths(rangeKey, current), rangeKey, now), nil
}

// padHistory fills every month from January 2022 (or the first order, if
// earlier) through the last month with sales.
func padHistory(byMonth map[time.Time]*monthRevenue) []monthRevenue {
	if len(byMonth) == 0 {
		return []monthRevenue{{month: historyStart}}
	}
	first, last := historyStart, time.Time{}
	for m := range byMonth {
		if m.Before(first) {
			first = m
		}
		if m.After(last) {
			last = m
		}
	}
	var out []monthRevenue
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		if p, ok := byMonth[m]; ok {
			out = append(out, *p)
			continue
		}
		out = append(out, monthRevenue{month: m})
	}
	return out
}

func forecastMonths(rangeKey string, current time.Time) []time.Time {
	var months []time.Time
	switch rangeKey {
	case RangeNextMonth:
		return []time.Time{current.AddDate(0, 1, 0)}
	case RangeRestOfYear:
		for m := current; m.Year() == current.Year(); m = m.AddDate(0, 1, 0) {
			months = append(months, m)
		}
	default:
		for i := range 12 {
			months = append(months, current.AddDate(0, i, 0))
		}
	}
	return months
}

func buildForecast(history []monthRevenue, months []time.Time, rangeKey string, now time.Time) *SalesForecast {
	f := &SalesForecast{
		Range:       rangeKey,
		RangeLabel:  rangeLabels[rangeKey],
		GeneratedAt: now,
		Historical:  make([]MonthPoint, 0, len(history)),
		Forecast:    make([]MonthPoint, 0, len(months)),
	}

	revenues := make([]float64, len(history))
	var totalRevenue, positiveRevenue float64
	totalOrders, positive := 0, 0
	for i, h := range history {
		revenues[i] = h.revenue
		totalRevenue += h.revenue
		totalOrders += h.orders
		if h.revenue > 0 {
			positiveRevenue += h.revenue
			positive++
		}
		f.Historical = append(f.Historical, MonthPoint{
			Month:    monthLabel(h.month),
			MonthISO: h.month.Format(time.RFC3339),
			Label:    monthLabel(h.month),
			Revenue:  round2(h.revenue),
			Orders:   h.orders,
			Type:     "historical",
		})
	}
	average := 0.0
	switch {
	case positive > 0:
		average = positiveRevenue / float64(positive)
	case len(history) > 0:
		average = totalRevenue / float64(len(history))
	}
	aov := 0.0
	if totalOrders > 0 {
		aov = totalRevenue / float64(totalOrders)
	}
	recentAverage := average
	if n := min(len(history), seasonLength); n > 0 {
		sum := 0.0
		for _, h := range history[len(history)-n:] {
			sum += h.revenue
		}
		recentAverage = sum / float64(n)
	}

	model := ForecastModel{
		Type:         "seasonal_naive",
		Harmonics:    fourierHarmonics,
		RecencyDecay: recencyDecay,
		MinWeight:    minSampleWeight,
	}

	var values []float64
	base, step, floor, ceil := 0.65, 0.12, 45.0, 95.0
	if fit := fitFourier(history, months); fit != nil && len(months) > 0 {
		values = fit.values
		base = fit.confidence
		model.Type = "weighted_fourier_regression"
		model.TrainingMAPE = fit.mape
	} else if len(months) > 0 {
		values = seasonalNaive(revenues, len(months))
		if values == nil {
			values = make([]float64, len(months))
			for i := range values {
				values[i] = average
			}
		}
		base, step, floor, ceil = 0.55, 0.1, 40, 85
		model.FallbackUsed = true
	}
	if model.Type == "weighted_fourier_regression" {
		model.Description = "Recency-weighted Fourier regression on log revenue with seasonal harmonics."
	} else {
		model.Description = "Seasonal naive projection mirroring last year's revenue when the regression model is unavailable."
	}
	f.Model = model

	previous := 0.0
	if len(history) > 0 {
		previous = history[len(history)-1].revenue
	}
	confidenceSum := 0
	for i, m := range months {
		revenue := math.Max(0, values[i])
		orders := 0
		if aov > 0 {
			orders = int(math.Max(0, roundHalfUp(revenue/aov)))
		}
		distance := 0.0
		if len(months) > 1 {
			distance = float64(i) / float64(len(months)-1)
		}
		confidence := int(clamp(roundHalfUp((base-distance*step)*100), floor, ceil))
		var growth *float64
		if previous > 0 {
			g := round2((revenue - previous) / previous * 100)
			growth = &g
		}
		previous = revenue
		confidenceSum += confidence

		p := MonthPoint{
			Month:      monthLabel(m),
			MonthISO:   m.Format(time.RFC3339),
			Label:      monthLabel(m),
			Revenue:    round2(revenue),
			Orders:     orders,
			Type:       "forecast",
			Confidence: confidence,
			GrowthRate: growth,
		}
		f.Forecast = append(f.Forecast, p)
		f.Summary.ProjectedRevenue += p.Revenue
		f.Summary.ProjectedOrders += orders
	}

	f.Combined = make([]MonthPoint, 0, len(f.Historical)+len(f.Forecast))
	for _, series := range [][]MonthPoint{f.Historical, f.Forecast} {
		for _, p := range series {
			f.Combined = append(f.Combined, MonthPoint{Month: p.Label, Label: p.Label, Revenue: p.Revenue, Type: p.Type})
		}
	}

	monthly := recentAverage
	if monthly == 0 {
		monthly = average
	}
	f.Summary.Range = rangeKey
	f.Summary.RangeLabel = f.RangeLabel
	f.Summary.Months = len(f.Forecast)
	f.Summary.ProjectedRevenue = round2(f.Summary.ProjectedRevenue)
	f.Summary.AverageMonthlyRevenue = round2(monthly)
	f.Summary.BaselineRevenue = round2(monthly * float64(len(f.Forecast)))
	if f.Summary.BaselineRevenue > 0 {
		g := round2((f.Summary.ProjectedRevenue - f.Summary.BaselineRevenue) / f.Summary.BaselineRevenue * 100)
		f.Summary.ExpectedGrowthRate = &g
	}
	if n := len(f.Forecast); n > 0 {
		c := int(roundHalfUp(float64(confidenceSum) / float64(n)))
		f.Summary.Confidence = &c
	}
	if n := len(f.Historical); n > 0 {
		f.TrainingWindow = TrainingWindow{Start: f.Historical[0].MonthISO, End: f.Historical[n-1].MonthISO}
	}
	return f
}

func monthLabel(m time.Time) string {
	return m.Format("Jan 2006")
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

func fourierFeatures(idx int) []float64 {
	x := float64(idx)
	features := make([]float64, 0, 2+2*fourierHarmonics)
	features = append(features, 1, x)
	for k := 1; k <= fourierHarmonics; k++ {
		angle := 2 * math.Pi * float64(k) * x / seasonLength
		features = append(features, math.Sin(angle), math.Cos(angle))
	}
	return features
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

type fourierFit struct {
	values     []float64
	confidence float64
	mape       *float64
}

// fitFourier fits log(revenue+1) against a trend plus seasonal harmonics,
// weighting recent months more heavily. It returns nil when there is too
// little history or the normal equations are singular.
func fitFourier(history []monthRevenue, months []time.Time) *fourierFit {
	if len(history) < minTrainingPoints {
		return nil
	}
	base := history[0].month
	n := 2 + 2*fourierHarmonics
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	vector := make([]float64, n)
	weights := make([]float64, len(history))
	logs := make([]float64, len(history))

	for idx, h := range history {
		x := fourierFeatures(monthsBetween(base, h.month))
		y := math.Log(math.Max(0, h.revenue) + 1)
		monthsAgo := float64(len(history) - 1 - idx)
		w := math.Max(minSampleWeight, math.Pow(recencyDecay, monthsAgo/12))
		weights[idx], logs[idx] = w, y
		for i := range n {
			vector[i] += w * x[i] * y
			for j := range n {
				matrix[i][j] += w * x[i] * x[j]
			}
		}
	}

	coef := solveLinear(matrix, vector)
	if coef == nil {
		return nil
	}

	var pctErrSum, rss, wsum float64
	pctErrs := 0
	for idx, h := range history {
		logPred := dot(fourierFeatures(monthsBetween(base, h.month)), coef)
		pred := math.Max(0, math.Exp(logPred)-1)
		if actual := math.Max(0, h.revenue); actual > 0 {
			pctErrSum += math.Abs((actual - pred) / actual)
			pctErrs++
		}
		rss += weights[idx] * (logs[idx] - logPred) * (logs[idx] - logPred)
		wsum += weights[idx]
	}

	fit := &fourierFit{confidence: 0.7}
	switch {
	case pctErrs > 0:
		mape := pctErrSum / float64(pctErrs) * 100
		fit.mape = &mape
		fit.confidence = clamp(1-math.Min(mape/120, 0.6), 0.45, 0.92)
	case wsum > 0:
		fit.confidence = clamp(1-math.Min(math.Sqrt(rss/wsum), 0.6), 0.45, 0.9)
	}
	for _, m := range months {
		logPred := dot(fourierFeatures(monthsBetween(base, m)), coef)
		fit.values = append(fit.values, math.Max(0, math.Exp(logPred)-1))
	}
	return fit
}

// solveLinear solves matrix·x = vector by Gauss-Jordan elimination with
// partial pivoting and a small ridge on the diagonal. It returns nil when
// a pivot vanishes. The inputs are not modified.
func solveLinear(matrix [][]float64, vector []float64) []float64 {
	n := len(vector)
	a := make([][]float64, n)
	for i := range matrix {
		a[i] = append([]float64(nil), matrix[i]...)
		a[i][i] += ridgeEpsilon
	}
	b := append([]float64(nil), vector...)

	for i := range n {
		pivot := i
		for row := i + 1; row < n; row++ {
			if math.Abs(a[row][i]) > math.Abs(a[pivot][i]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][i]) < pivotThreshold {
			return nil
		}
		a[i], a[pivot] = a[pivot], a[i]
		b[i], b[pivot] = b[pivot], b[i]

		pv := a[i][i]
		for j := i; j < n; j++ {
			a[i][j] /= pv
		}
		b[i] /= pv
		for row := range n {
			if row == i || a[row][i] == 0 {
				continue
			}
			factor := a[row][i]
			for col := i; col < n; col++ {
				a[row][col] -= factor * a[i][col]
			}
			b[row] -= factor * b[i]
		}
	}
	return b
}

// seasonalNaive repeats the last full season. It returns nil with less
// than a season of history.
func seasonalNaive(series []float64, horizon int) []float64 {
	if len(series) < seasonLength || horizon <= 0 {
		return nil
	}
	out := make([]float64, horizon)
	for h := range horizon {
		out[h] = series[len(series)-seasonLength+h%seasonLength]
	}
	return out
}

// ParseRange normalizes a user-supplied forecast range.
func ParseRange(s string) string {
	for k := range rangeLabels {
		if strings.EqualFold(k, strings.TrimSpace(s)) {
			return k
		}
	}
	return RangeRestOfYear
}
