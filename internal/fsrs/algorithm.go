package fsrs

import "math"

// retrievability computes R(t, S) = (1 + factor * t / S) ^ decay.
func (s *Scheduler) retrievability(elapsedDays, stability float64) float64 {
	return math.Pow(1+s.factor*elapsedDays/stability, s.decay)
}

// initStability returns S0(G) = w[G-1].
func (s *Scheduler) initStability(g float64) float64 {
	return clampS(s.p.Weights[int(g)-1])
}

// initDifficulty returns D0(G) = w[4] - e^(w[5] * (G - 1)) + 1, clamped.
func (s *Scheduler) initDifficulty(g float64) float64 {
	return clampD(s.rawInitDifficulty(g))
}

func (s *Scheduler) rawInitDifficulty(g float64) float64 {
	w := &s.p.Weights
	return w[4] - math.Exp(w[5]*(g-1)) + 1
}

// shortTermStability handles a second review on the same day.
// SInc = e^(w[17] * (G - 3 + w[18])) * S^(-w[19]); a pass never lowers S.
func (s *Scheduler) shortTermStability(stability, g float64) float64 {
	w := &s.p.Weights
	sInc := math.Exp(w[17]*(g-3+w[18])) * math.Pow(stability, -w[19])
	if g >= gradeGood {
		sInc = math.Max(sInc, 1)
	}
	return clampS(stability * sInc)
}

// nextDifficulty applies the rating delta with linear damping, then
// reverts slightly toward D0(Easy).
func (s *Scheduler) nextDifficulty(d, g float64) float64 {
	w := &s.p.Weights
	delta := -w[6] * (g - 3)
	damped := d + (10-d)*delta/9
	return clampD(w[7]*s.rawInitDifficulty(gradeEasy) + (1-w[7])*damped)
}

func (s *Scheduler) nextStability(d, stability, r, g float64) float64 {
	if g == gradeAgain {
		return s.nextForgetStability(d, stability, r)
	}
	return s.nextRecallStability(d, stability, r)
}

// nextRecallStability: S' = S * (1 + e^w[8] * (11-D) * S^(-w[9]) * (e^((1-R)*w[10]) - 1)).
// R <= 1 so S' >= S.
func (s *Scheduler) nextRecallStability(d, stability, r float64) float64 {
	w := &s.p.Weights
	return clampS(stability * (1 + math.Exp(w[8])*
		(11-d)*
		math.Pow(stability, -w[9])*
		(math.Exp((1-r)*w[10])-1)))
}

// nextForgetStability is the lapse penalty: the smaller of the long-term
// post-lapse stability and S / e^(w[17]*w[18]).
func (s *Scheduler) nextForgetStability(d, stability, r float64) float64 {
	w := &s.p.Weights
	long := w[11] *
		math.Pow(d, -w[12]) *
		(math.Pow(stability+1, w[13]) - 1) *
		math.Exp((1-r)*w[14])
	short := stability / math.Exp(w[17]*w[18])
	return clampS(math.Min(long, short))
}

func clampS(s float64) float64 {
	return math.Min(math.Max(s, minStability), maxStability)
}

func clampD(d float64) float64 {
	return math.Min(math.Max(d, 1), 10)
}
