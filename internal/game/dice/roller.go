package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger to provide labelled, logged draws.
// Every draw is logged at debug level with its label and outcome.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that draws from src and logs each draw to logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Float64 returns a uniform draw in [0, 1).
func (r *Roller) Float64(label string) float64 {
	v := r.src.Float64()
	r.logger.Debug("dice draw", zap.String("label", label), zap.Float64("value", v))
	return v
}

// Uniform returns a uniform draw in [lo, hi].
//
// Precondition: lo <= hi.
func (r *Roller) Uniform(label string, lo, hi float64) float64 {
	return lo + r.Float64(label)*(hi-lo)
}

// Percent returns a uniform draw in [0, 100).
func (r *Roller) Percent(label string) float64 {
	return r.Float64(label) * 100
}

// Intn returns a uniform int in [0, n).
//
// Precondition: n > 0.
func (r *Roller) Intn(label string, n int) int {
	v := Intn(r.src, n)
	r.logger.Debug("dice pick", zap.String("label", label), zap.Int("n", n), zap.Int("value", v))
	return v
}

// Between returns a uniform int in [lo, hi], both inclusive.
//
// Precondition: lo <= hi.
func (r *Roller) Between(label string, lo, hi int) int {
	return lo + r.Intn(label, hi-lo+1)
}

// Roll evaluates expr and logs the result at debug level.
//
// Precondition: expr must come from Parse.
func (r *Roller) Roll(expr Expression) RollResult {
	result := Roll(expr, r.src)
	r.logger.Debug("dice roll",
		zap.String("expression", result.Expression),
		zap.Ints("dice", result.Dice),
		zap.Int("modifier", result.Modifier),
		zap.Int("total", result.Total()),
	)
	return result
}

// RollExpr parses expr and rolls it, logging the result.
//
// Precondition: expr must be a valid dice expression string.
// Postcondition: Returns a RollResult or a parse error.
func (r *Roller) RollExpr(expr string) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return r.Roll(e), nil
}
